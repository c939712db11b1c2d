package ballot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	"gorm.io/gorm"
)

// DenialReason identifies which eligibility check failed.
type DenialReason string

const (
	// DenialNone accompanies an allowed decision.
	DenialNone DenialReason = ""
	// DenialNotEligible means no verified, vote-cleared profile exists.
	DenialNotEligible DenialReason = "not_eligible"
	// DenialElectionNotOpen means the election window is not open.
	DenialElectionNotOpen DenialReason = "election_not_open"
	// DenialAlreadyVoted means a receipt already exists for this voter.
	DenialAlreadyVoted DenialReason = "already_voted"
)

// Decision is the gate's verdict for one (voter, election) pair.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

// GateConfig describes the dependencies for eligibility checks.
type GateConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Gate answers whether a voter may cast a ballot right now. It is the
// advisory fast path: the authoritative double-vote defense is the receipt
// uniqueness constraint enforced inside the commit transaction, so the gate's
// receipt lookup may race and lose without harm.
type Gate struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGate constructs an eligibility gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("ballot: gate requires a database connection")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{db: cfg.Database, clock: clock}, nil
}

// CanVote runs the eligibility checks in order and reports the first failure:
// profile exists and is cleared to vote, election window open, no receipt yet.
func (g *Gate) CanVote(ctx context.Context, voterID, electionID uint) (Decision, error) {
	var profile voters.Profile
	err := g.db.WithContext(ctx).Take(&profile, voterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Reason: DenialNotEligible}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	if !profile.EligibleToVote {
		return Decision{Reason: DenialNotEligible}, nil
	}

	var election catalog.Election
	err = g.db.WithContext(ctx).Take(&election, electionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{}, catalog.ErrElectionNotFound
	}
	if err != nil {
		return Decision{}, err
	}
	if !election.OpenAt(g.clock().UTC()) {
		return Decision{Reason: DenialElectionNotOpen}, nil
	}

	var receiptCount int64
	err = g.db.WithContext(ctx).
		Model(&VoterReceipt{}).
		Where("voter_id = ? AND election_id = ?", voterID, electionID).
		Count(&receiptCount).Error
	if err != nil {
		return Decision{}, err
	}
	if receiptCount > 0 {
		return Decision{Reason: DenialAlreadyVoted}, nil
	}

	return Decision{Allowed: true}, nil
}
