package tally

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/ballot"
	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceConfig describes the dependencies of the tally reader.
type ServiceConfig struct {
	Database *gorm.DB
	Catalog  *catalog.Service
	Voters   *voters.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service aggregates anonymous vote rows into per-position results and
// turnout. Pure read path: it never writes, and it may be invoked while voting
// is still open for live partial tallies.
type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	voters  *voters.Service
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService constructs the tally reader.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("tally: database connection required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("tally: catalog service required")
	}
	if cfg.Voters == nil {
		return nil, fmt.Errorf("tally: voters service required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, catalog: cfg.Catalog, voters: cfg.Voters, clock: clock, logger: logger}, nil
}

// CandidateResult is one candidate's share of a position's votes.
type CandidateResult struct {
	Candidate catalog.Candidate
	Votes     int64
	Percent   float64
}

// PositionResult orders a position's candidates by descending vote count;
// equal counts order by candidate insertion order, which is deterministic for
// a fixed snapshot.
type PositionResult struct {
	Position   catalog.Position
	TotalVotes int64
	Candidates []CandidateResult
}

// Result is one election's tally snapshot.
type Result struct {
	Election       catalog.Election
	Status         catalog.ElectionStatus
	Positions      []PositionResult
	BallotsCast    int64
	EligibleVoters int64
	TurnoutPercent float64
}

type voteCount struct {
	PositionID  uint
	CandidateID uint
	Votes       int64
}

// Results computes the per-position, per-candidate counts and turnout for an
// election. Approved candidates with zero votes are included.
func (s *Service) Results(ctx context.Context, electionID uint) (Result, error) {
	election, err := s.catalog.GetElection(ctx, electionID)
	if err != nil {
		return Result{}, err
	}

	ballotPositions, err := s.catalog.BallotPositions(ctx, electionID)
	if err != nil {
		return Result{}, err
	}

	var counts []voteCount
	err = s.db.WithContext(ctx).
		Model(&ballot.Vote{}).
		Select("position_id, candidate_id, COUNT(*) AS votes").
		Where("election_id = ?", electionID).
		Group("position_id, candidate_id").
		Scan(&counts).Error
	if err != nil {
		return Result{}, err
	}

	votesByCandidate := make(map[uint]int64, len(counts))
	for _, count := range counts {
		votesByCandidate[count.CandidateID] = count.Votes
	}

	positions := make([]PositionResult, 0, len(ballotPositions))
	for _, ballotPosition := range ballotPositions {
		positionResult := PositionResult{Position: ballotPosition.Position}
		for _, candidate := range ballotPosition.Candidates {
			votes := votesByCandidate[candidate.ID]
			positionResult.TotalVotes += votes
			positionResult.Candidates = append(positionResult.Candidates, CandidateResult{
				Candidate: candidate,
				Votes:     votes,
			})
		}
		for i := range positionResult.Candidates {
			if positionResult.TotalVotes > 0 {
				positionResult.Candidates[i].Percent = float64(positionResult.Candidates[i].Votes) / float64(positionResult.TotalVotes) * 100
			}
		}
		sort.SliceStable(positionResult.Candidates, func(i, j int) bool {
			left, right := positionResult.Candidates[i], positionResult.Candidates[j]
			if left.Votes != right.Votes {
				return left.Votes > right.Votes
			}
			return left.Candidate.ID < right.Candidate.ID
		})
		positions = append(positions, positionResult)
	}

	var ballotsCast int64
	err = s.db.WithContext(ctx).
		Model(&ballot.VoterReceipt{}).
		Where("election_id = ?", electionID).
		Count(&ballotsCast).Error
	if err != nil {
		return Result{}, err
	}

	eligible, err := s.voters.CountEligible(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Election:       election,
		Status:         election.StatusAt(s.clock().UTC()),
		Positions:      positions,
		BallotsCast:    ballotsCast,
		EligibleVoters: eligible,
	}
	if eligible > 0 {
		result.TurnoutPercent = float64(ballotsCast) / float64(eligible) * 100
	}
	return result, nil
}
