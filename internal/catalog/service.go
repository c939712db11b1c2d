package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recentPastLimit = 5

var (
	// ErrElectionNotFound indicates the election id does not exist.
	ErrElectionNotFound = errors.New("catalog: election not found")
	// ErrInvalidReference indicates a create payload failed validation.
	ErrInvalidReference = errors.New("catalog: invalid reference data")
)

// ServiceConfig describes the dependencies for catalog access.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service exposes the election reference data: read paths consumed by the
// voting engine, and create paths consumed by administrative tooling before
// voting opens.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("catalog: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// GetElection loads an election by id.
func (s *Service) GetElection(ctx context.Context, electionID uint) (Election, error) {
	var election Election
	err := s.db.WithContext(ctx).Take(&election, electionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Election{}, ErrElectionNotFound
	}
	if err != nil {
		return Election{}, err
	}
	return election, nil
}

// Listing buckets elections by their window relative to one point in time.
type Listing struct {
	Active   []Election
	Upcoming []Election
	Past     []Election
}

// ListElections returns active, upcoming and the most recent past elections.
func (s *Service) ListElections(ctx context.Context) (Listing, error) {
	now := s.clock().UTC()
	var listing Listing

	err := s.db.WithContext(ctx).
		Where("is_active = ? AND start_time <= ? AND end_time >= ?", true, now, now).
		Order("end_time ASC").
		Find(&listing.Active).Error
	if err != nil {
		return Listing{}, err
	}

	err = s.db.WithContext(ctx).
		Where("is_active = ? AND start_time > ?", true, now).
		Order("start_time ASC").
		Find(&listing.Upcoming).Error
	if err != nil {
		return Listing{}, err
	}

	err = s.db.WithContext(ctx).
		Where("end_time < ?", now).
		Order("end_time DESC").
		Limit(recentPastLimit).
		Find(&listing.Past).Error
	if err != nil {
		return Listing{}, err
	}

	return listing, nil
}

// BallotPosition pairs a contested position with its approved candidates for
// one election.
type BallotPosition struct {
	Position   Position
	Candidates []Candidate
}

// BallotPositions returns, in ballot order, every active position that has at
// least one approved candidate in the election. Positions with no approved
// candidates are not contested and do not appear on the ballot.
func (s *Service) BallotPositions(ctx context.Context, electionID uint) ([]BallotPosition, error) {
	var candidates []Candidate
	err := s.db.WithContext(ctx).
		Where("election_id = ? AND is_approved = ?", electionID, true).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	byPosition := make(map[uint][]Candidate, len(candidates))
	for _, candidate := range candidates {
		byPosition[candidate.PositionID] = append(byPosition[candidate.PositionID], candidate)
	}

	positionIDs := make([]uint, 0, len(byPosition))
	for positionID := range byPosition {
		positionIDs = append(positionIDs, positionID)
	}

	var positions []Position
	err = s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", positionIDs, true).
		Order("ballot_order ASC").
		Find(&positions).Error
	if err != nil {
		return nil, err
	}

	ballot := make([]BallotPosition, 0, len(positions))
	for _, position := range positions {
		ballot = append(ballot, BallotPosition{
			Position:   position,
			Candidates: byPosition[position.ID],
		})
	}
	return ballot, nil
}

// CreateElection persists a new election event.
func (s *Service) CreateElection(ctx context.Context, election Election) (Election, error) {
	if strings.TrimSpace(election.Name) == "" {
		return Election{}, fmt.Errorf("%w: election name required", ErrInvalidReference)
	}
	if !election.EndTime.After(election.StartTime) {
		return Election{}, fmt.Errorf("%w: election window must end after it starts", ErrInvalidReference)
	}
	if err := s.db.WithContext(ctx).Create(&election).Error; err != nil {
		return Election{}, err
	}
	s.logger.Info("election created",
		zap.Uint("election_id", election.ID),
		zap.String("name", election.Name))
	return election, nil
}

// CreatePosition persists a new contested office.
func (s *Service) CreatePosition(ctx context.Context, position Position) (Position, error) {
	if strings.TrimSpace(position.Name) == "" {
		return Position{}, fmt.Errorf("%w: position name required", ErrInvalidReference)
	}
	if position.Winners < 1 {
		return Position{}, fmt.Errorf("%w: position must elect at least one winner", ErrInvalidReference)
	}
	if err := s.db.WithContext(ctx).Create(&position).Error; err != nil {
		return Position{}, err
	}
	return position, nil
}

// CreateParty persists a new party affiliation.
func (s *Service) CreateParty(ctx context.Context, party Party) (Party, error) {
	if strings.TrimSpace(party.Name) == "" || strings.TrimSpace(party.ShortCode) == "" {
		return Party{}, fmt.Errorf("%w: party name and short code required", ErrInvalidReference)
	}
	if err := s.db.WithContext(ctx).Create(&party).Error; err != nil {
		return Party{}, err
	}
	return party, nil
}

// CreateCandidate registers a candidacy. The uniqueness constraint on
// (profile, position, election) rejects duplicate filings.
func (s *Service) CreateCandidate(ctx context.Context, candidate Candidate) (Candidate, error) {
	if candidate.ProfileID == 0 || candidate.PositionID == 0 || candidate.ElectionID == 0 {
		return Candidate{}, fmt.Errorf("%w: candidate requires profile, position and election", ErrInvalidReference)
	}
	if strings.TrimSpace(candidate.FullName) == "" {
		return Candidate{}, fmt.Errorf("%w: candidate name required", ErrInvalidReference)
	}
	if err := s.db.WithContext(ctx).Create(&candidate).Error; err != nil {
		return Candidate{}, err
	}
	return candidate, nil
}

// ApproveCandidate flips the approval flag, admitting the candidate to the
// ballot.
func (s *Service) ApproveCandidate(ctx context.Context, candidateID uint) error {
	result := s.db.WithContext(ctx).
		Model(&Candidate{}).
		Where("id = ?", candidateID).
		Update("is_approved", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: candidate %d not found", ErrInvalidReference, candidateID)
	}
	return nil
}
