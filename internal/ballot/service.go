package ballot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingCatalog    = errors.New("catalog service is required")
	errMissingGate       = errors.New("eligibility gate is required")
	errMissingSealer     = errors.New("receipt sealer is required")
	errMissingIDProvider = errors.New("correlation id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the ballot engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Catalog    *catalog.Service
	Gate       *Gate
	Sealer     Sealer
	Clock      func() time.Time
	IDProvider CorrelationIDProvider
	Logger     *zap.Logger
}

// Service is the single writer of votes and receipts. CastBallot runs the
// gate, the assembler and the atomic commit transaction; ResetElection is the
// out-of-lifecycle purge tool.
type Service struct {
	db         *gorm.DB
	catalog    *catalog.Service
	gate       *Gate
	sealer     Sealer
	clock      func() time.Time
	idProvider CorrelationIDProvider
	logger     *zap.Logger
}

// NewService constructs the ballot engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("ballot: %w", errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("ballot: %w", errMissingCatalog)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("ballot: %w", errMissingGate)
	}
	if cfg.Sealer == nil {
		return nil, fmt.Errorf("ballot: %w", errMissingSealer)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("ballot: %w", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		catalog:    cfg.Catalog,
		gate:       cfg.Gate,
		sealer:     cfg.Sealer,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Eligibility exposes the advisory gate decision for the voting UI.
func (s *Service) Eligibility(ctx context.Context, voterID, electionID uint) (Decision, error) {
	return s.gate.CanVote(ctx, voterID, electionID)
}

// CastResult summarizes a committed ballot for the voter. It exposes only the
// receipt's correlation id, never the one stamped on the vote rows.
type CastResult struct {
	ReceiptID     uint
	CorrelationID string
	ElectionID    uint
	Selections    int
	CastAt        time.Time
}

// CastBallot validates and atomically commits a ballot: one anonymous vote row
// per selection plus exactly one receipt, or nothing at all. A uniqueness
// violation on the receipt surfaces as ErrAlreadyVoted after the transaction
// rolls back; any other storage failure surfaces as a retryable StoreError.
func (s *Service) CastBallot(ctx context.Context, voterID, electionID uint, selections []Selection, clientIP string) (CastResult, error) {
	decision, err := s.gate.CanVote(ctx, voterID, electionID)
	if err != nil {
		if errors.Is(err, catalog.ErrElectionNotFound) {
			return CastResult{}, err
		}
		return CastResult{}, &StoreError{Op: "eligibility check", Err: err}
	}
	if !decision.Allowed {
		switch decision.Reason {
		case DenialNotEligible:
			return CastResult{}, ErrNotEligible
		case DenialElectionNotOpen:
			return CastResult{}, ErrElectionNotOpen
		case DenialAlreadyVoted:
			return CastResult{}, ErrAlreadyVoted
		default:
			return CastResult{}, ErrNotEligible
		}
	}

	ballotPositions, err := s.catalog.BallotPositions(ctx, electionID)
	if err != nil {
		return CastResult{}, &StoreError{Op: "ballot load", Err: err}
	}
	if len(ballotPositions) == 0 {
		return CastResult{}, &InvalidBallotError{Reason: "election has no contested positions"}
	}

	lines, err := Assemble(ballotPositions, selections)
	if err != nil {
		return CastResult{}, err
	}

	voteCorrelationID, err := s.idProvider.NewCorrelationID()
	if err != nil {
		return CastResult{}, &StoreError{Op: "correlation id", Err: err}
	}
	receiptCorrelationID, err := s.independentCorrelationID(voteCorrelationID)
	if err != nil {
		return CastResult{}, &StoreError{Op: "correlation id", Err: err}
	}

	choicesBlob, err := s.sealChoices(lines)
	if err != nil {
		return CastResult{}, &StoreError{Op: "choices sealing", Err: err}
	}

	castAt := s.clock().UTC()
	votes := make([]Vote, 0, len(lines))
	for _, line := range lines {
		votes = append(votes, Vote{
			ElectionID:    electionID,
			PositionID:    line.Position.ID,
			CandidateID:   line.Candidate.ID,
			CorrelationID: voteCorrelationID,
			CastAt:        castAt,
		})
	}
	receipt := VoterReceipt{
		VoterID:       voterID,
		ElectionID:    electionID,
		CorrelationID: receiptCorrelationID,
		ChoicesBlob:   choicesBlob,
		CastAt:        castAt,
		ClientIP:      clientIP,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&votes).Error; err != nil {
			return err
		}
		return tx.Create(&receipt).Error
	})
	if txErr != nil {
		if isUniqueViolation(txErr) {
			return CastResult{}, ErrAlreadyVoted
		}
		s.logError("ballot.cast", "commit_failed", txErr, zap.Uint("election_id", electionID))
		return CastResult{}, &StoreError{Op: "ballot commit", Err: txErr}
	}

	s.logger.Info("ballot committed",
		zap.Uint("election_id", electionID),
		zap.Int("selections", len(lines)))

	return CastResult{
		ReceiptID:     receipt.ID,
		CorrelationID: receipt.CorrelationID,
		ElectionID:    electionID,
		Selections:    len(lines),
		CastAt:        castAt,
	}, nil
}

// OpenChoices unseals a receipt's private choice record for the voter-history
// collaborator.
func (s *Service) OpenChoices(receipt VoterReceipt) (map[string][]string, error) {
	plaintext, err := s.sealer.Open(receipt.ChoicesBlob)
	if err != nil {
		return nil, err
	}
	choices := make(map[string][]string)
	if err := json.Unmarshal(plaintext, &choices); err != nil {
		return nil, fmt.Errorf("ballot: malformed choices record: %w", err)
	}
	return choices, nil
}

// ResetElection purges all votes and receipts for an election. Refused while
// the election is open: this is data-reset tooling for outside the voting
// lifecycle, not an operational path.
func (s *Service) ResetElection(ctx context.Context, electionID uint) (votesPurged int64, receiptsPurged int64, err error) {
	election, err := s.catalog.GetElection(ctx, electionID)
	if err != nil {
		return 0, 0, err
	}
	if election.OpenAt(s.clock().UTC()) {
		return 0, 0, ErrElectionStillOpen
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		voteResult := tx.Where("election_id = ?", electionID).Delete(&Vote{})
		if voteResult.Error != nil {
			return voteResult.Error
		}
		votesPurged = voteResult.RowsAffected

		receiptResult := tx.Where("election_id = ?", electionID).Delete(&VoterReceipt{})
		if receiptResult.Error != nil {
			return receiptResult.Error
		}
		receiptsPurged = receiptResult.RowsAffected
		return nil
	})
	if txErr != nil {
		return 0, 0, &StoreError{Op: "election reset", Err: txErr}
	}

	s.logger.Warn("election data purged",
		zap.Uint("election_id", electionID),
		zap.Int64("votes", votesPurged),
		zap.Int64("receipts", receiptsPurged))
	return votesPurged, receiptsPurged, nil
}

// independentCorrelationID draws a fresh id until it differs from the vote
// rows' id. Equality would let receipt holders deanonymize tallies.
func (s *Service) independentCorrelationID(voteCorrelationID string) (string, error) {
	for {
		id, err := s.idProvider.NewCorrelationID()
		if err != nil {
			return "", err
		}
		if id != voteCorrelationID {
			return id, nil
		}
	}
}

func (s *Service) sealChoices(lines []Line) (string, error) {
	choices := make(map[string][]string, len(lines))
	for _, line := range lines {
		choices[line.Position.Name] = append(choices[line.Position.Name], line.Candidate.FullName)
	}
	plaintext, err := json.Marshal(choices)
	if err != nil {
		return "", err
	}
	return s.sealer.Seal(plaintext)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("ballot service error", attrs...)
}
