package ballot

import (
	"github.com/campuslabs/ballotbox/backend/internal/catalog"
)

// Selection carries the candidate ids a voter picked for one position.
type Selection struct {
	PositionID   uint
	CandidateIDs []uint
}

// Line is one validated (position, candidate) pair ready to commit.
type Line struct {
	Position  catalog.Position
	Candidate catalog.Candidate
}

// Assemble validates a submission against the ballot rules and returns the
// lines to commit, in ballot order. Rules: every contested position requires
// between 1 and winners selections (abstention is not modeled); every
// candidate id must resolve to an approved candidate of that position and
// election; duplicates reject. Any failure rejects the whole ballot.
func Assemble(ballotPositions []catalog.BallotPosition, selections []Selection) ([]Line, error) {
	selected := make(map[uint][]uint, len(selections))
	for _, selection := range selections {
		if _, ok := selected[selection.PositionID]; ok {
			return nil, &InvalidBallotError{PositionID: selection.PositionID, Reason: "position selected more than once"}
		}
		selected[selection.PositionID] = selection.CandidateIDs
	}

	contested := make(map[uint]struct{}, len(ballotPositions))
	for _, ballotPosition := range ballotPositions {
		contested[ballotPosition.Position.ID] = struct{}{}
	}
	for positionID := range selected {
		if _, ok := contested[positionID]; !ok {
			return nil, &InvalidBallotError{PositionID: positionID, Reason: "position is not on this ballot"}
		}
	}

	lines := make([]Line, 0, len(selections))
	for _, ballotPosition := range ballotPositions {
		position := ballotPosition.Position
		candidateIDs := selected[position.ID]
		if len(candidateIDs) == 0 {
			return nil, &InvalidBallotError{PositionID: position.ID, Reason: "a selection is required for this position"}
		}
		if len(candidateIDs) > position.Winners {
			return nil, &InvalidBallotError{PositionID: position.ID, Reason: "more selections than the position allows"}
		}

		approved := make(map[uint]catalog.Candidate, len(ballotPosition.Candidates))
		for _, candidate := range ballotPosition.Candidates {
			approved[candidate.ID] = candidate
		}

		seen := make(map[uint]struct{}, len(candidateIDs))
		for _, candidateID := range candidateIDs {
			if _, dup := seen[candidateID]; dup {
				return nil, &InvalidBallotError{PositionID: position.ID, Reason: "candidate selected more than once"}
			}
			seen[candidateID] = struct{}{}

			candidate, ok := approved[candidateID]
			if !ok {
				return nil, &InvalidBallotError{PositionID: position.ID, Reason: "candidate is not on this ballot"}
			}
			lines = append(lines, Line{Position: position, Candidate: candidate})
		}
	}

	return lines, nil
}
