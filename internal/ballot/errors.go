package ballot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEligible indicates the voter is not cleared to vote. Terminal for
	// the voter until the accounts subsystem verifies them.
	ErrNotEligible = errors.New("ballot: voter not eligible")
	// ErrElectionNotOpen indicates the election window is not currently open.
	ErrElectionNotOpen = errors.New("ballot: election not open for voting")
	// ErrAlreadyVoted indicates a receipt already exists for the voter in this
	// election. Terminal: no ballot from this voter can be accepted again.
	ErrAlreadyVoted = errors.New("ballot: voter already cast a ballot in this election")
	// ErrElectionStillOpen guards data-reset tooling from purging a live
	// election.
	ErrElectionStillOpen = errors.New("ballot: election is still open")
)

// InvalidBallotError rejects a whole submission; nothing is persisted. The
// voter may correct the selections and resubmit.
type InvalidBallotError struct {
	PositionID uint
	Reason     string
}

func (e *InvalidBallotError) Error() string {
	if e.PositionID == 0 {
		return fmt.Sprintf("ballot: invalid ballot: %s", e.Reason)
	}
	return fmt.Sprintf("ballot: invalid ballot for position %d: %s", e.PositionID, e.Reason)
}

// StoreError wraps an infrastructure failure during the commit transaction.
// The transaction rolled back, so retrying the identical ballot is safe.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ballot: store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
