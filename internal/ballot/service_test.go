package ballot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/catalog"
)

func TestCastBallotCommitsVotesAndOneReceipt(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)
	voterID := fix.voterIDs[0]

	result := mustCast(t, service, voterID, fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[2].ID, fix.senators[4].ID}},
	})

	if result.Selections != 4 {
		t.Fatalf("expected 4 selections committed, got %d", result.Selections)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 4 {
		t.Fatalf("expected 4 vote rows, got %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 1 {
		t.Fatalf("expected 1 receipt row, got %d", got)
	}

	var receipt VoterReceipt
	if err := db.Where("voter_id = ? AND election_id = ?", voterID, fix.election.ID).Take(&receipt).Error; err != nil {
		t.Fatalf("failed to load receipt: %v", err)
	}
	if receipt.ClientIP != "203.0.113.7" {
		t.Fatalf("expected client ip on receipt, got %q", receipt.ClientIP)
	}
	if receipt.CorrelationID != result.CorrelationID {
		t.Fatalf("cast result correlation id does not match stored receipt")
	}
}

func TestCastBallotUsesIndependentCorrelationIDs(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)

	mustCast(t, service, fix.voterIDs[0], fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	})

	var votes []Vote
	if err := db.Where("election_id = ?", fix.election.ID).Find(&votes).Error; err != nil {
		t.Fatalf("failed to load votes: %v", err)
	}
	var receipt VoterReceipt
	if err := db.Where("election_id = ?", fix.election.ID).Take(&receipt).Error; err != nil {
		t.Fatalf("failed to load receipt: %v", err)
	}

	// All vote rows of one submission share one correlation id, and it never
	// matches the receipt's: the two ids must not join the tables.
	for _, vote := range votes {
		if vote.CorrelationID != votes[0].CorrelationID {
			t.Fatalf("vote rows of one submission carry different correlation ids")
		}
		if vote.CorrelationID == receipt.CorrelationID {
			t.Fatalf("vote correlation id equals receipt correlation id")
		}
	}
}

func TestCastBallotRejectsSecondBallot(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)
	voterID := fix.voterIDs[0]

	selections := []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	}
	mustCast(t, service, voterID, fix.election.ID, selections)

	_, err := service.CastBallot(context.Background(), voterID, fix.election.ID, selections, "203.0.113.7")
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 4 {
		t.Fatalf("rejected resubmission must not add vote rows, have %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 1 {
		t.Fatalf("rejected resubmission must not add receipts, have %d", got)
	}
}

func TestCastBallotUniquenessConstraintBeatsRacingGate(t *testing.T) {
	db := openTestDatabase(t)
	_, _, catalogService := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)
	voterID := fix.voterIDs[0]

	// Simulate a gate check that raced ahead: the gate reads a stale snapshot
	// (a second database seeded with the voter and election but no receipts),
	// so only the receipt uniqueness constraint can stop the commit.
	staleDB := openTestDatabase(t)
	seedFixture(t, staleDB, 1)
	blindGate, err := NewGate(GateConfig{Database: staleDB, Clock: testClock})
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		Gate:       blindGate,
		Sealer:     NewSecretBoxSealer(testSealerKey()),
		Clock:      testClock,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	racingReceipt := VoterReceipt{
		VoterID:       voterID,
		ElectionID:    fix.election.ID,
		CorrelationID: "racing-receipt",
		ChoicesBlob:   "sealed",
		CastAt:        testClockTime,
	}
	if err := db.Create(&racingReceipt).Error; err != nil {
		t.Fatalf("failed to insert racing receipt: %v", err)
	}

	_, err = service.CastBallot(context.Background(), voterID, fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[1].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	}, "203.0.113.7")
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("rolled back submission must leave no vote rows, have %d", got)
	}
}

// flakyIDProvider fails a configurable number of draws before delegating to a
// real provider, standing in for transient infrastructure failure.
type flakyIDProvider struct {
	failures int
	inner    CorrelationIDProvider
}

func (p *flakyIDProvider) NewCorrelationID() (string, error) {
	if p.failures > 0 {
		p.failures--
		return "", errors.New("id generation unavailable")
	}
	return p.inner.NewCorrelationID()
}

func TestCastBallotTransientFailureThenRetryCommitsOnce(t *testing.T) {
	db := openTestDatabase(t)
	_, gate, catalogService := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)
	voterID := fix.voterIDs[0]

	service, err := NewService(ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		Gate:       gate,
		Sealer:     NewSecretBoxSealer(testSealerKey()),
		Clock:      testClock,
		IDProvider: &flakyIDProvider{failures: 1, inner: NewUUIDProvider()},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	selections := []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	}

	_, err = service.CastBallot(context.Background(), voterID, fix.election.ID, selections, "203.0.113.7")
	var storeFailure *StoreError
	if !errors.As(err, &storeFailure) {
		t.Fatalf("expected StoreError on transient failure, got %v", err)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("failed cast must leave no vote rows, have %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("failed cast must leave no receipts, have %d", got)
	}

	// Retrying the identical ballot commits exactly one full submission.
	result := mustCast(t, service, voterID, fix.election.ID, selections)
	if result.Selections != 4 {
		t.Fatalf("expected 4 selections committed on retry, got %d", result.Selections)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 4 {
		t.Fatalf("expected exactly 4 vote rows after retry, have %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 1 {
		t.Fatalf("expected exactly 1 receipt after retry, have %d", got)
	}
}

func TestCastBallotRejectsInvalidBallotWithoutPersisting(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)

	// Two selections for a one-winner office.
	_, err := service.CastBallot(context.Background(), fix.voterIDs[0], fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID, fix.presidents[1].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	}, "203.0.113.7")

	var invalid *InvalidBallotError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidBallotError, got %v", err)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("invalid ballot must not persist votes, have %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("invalid ballot must not persist receipts, have %d", got)
	}

	// A corrected resubmission for the same election succeeds.
	mustCast(t, service, fix.voterIDs[0], fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	})
}

func TestCastBallotOpensSealedChoices(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)

	mustCast(t, service, fix.voterIDs[0], fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[1].ID, fix.senators[3].ID, fix.senators[5].ID}},
	})

	var receipt VoterReceipt
	if err := db.Where("election_id = ?", fix.election.ID).Take(&receipt).Error; err != nil {
		t.Fatalf("failed to load receipt: %v", err)
	}

	choices, err := service.OpenChoices(receipt)
	if err != nil {
		t.Fatalf("failed to open choices: %v", err)
	}
	if len(choices["President"]) != 1 || choices["President"][0] != fix.presidents[0].FullName {
		t.Fatalf("unexpected president choices: %v", choices["President"])
	}
	if len(choices["Senator"]) != 3 {
		t.Fatalf("expected 3 senator choices, got %v", choices["Senator"])
	}
}

func TestResetElectionRefusedWhileOpen(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)

	_, _, err := service.ResetElection(context.Background(), fix.election.ID)
	if !errors.Is(err, ErrElectionStillOpen) {
		t.Fatalf("expected ErrElectionStillOpen, got %v", err)
	}
}

func TestResetElectionPurgesClosedElection(t *testing.T) {
	db := openTestDatabase(t)
	service, _, _ := newTestEngine(t, db)
	fix := seedFixture(t, db, 1)

	mustCast(t, service, fix.voterIDs[0], fix.election.ID, []Selection{
		{PositionID: fix.president.ID, CandidateIDs: []uint{fix.presidents[0].ID}},
		{PositionID: fix.senator.ID, CandidateIDs: []uint{fix.senators[0].ID, fix.senators[1].ID, fix.senators[2].ID}},
	})

	err := db.Model(&catalog.Election{}).
		Where("id = ?", fix.election.ID).
		Updates(map[string]interface{}{
			"start_time": testClockTime.Add(-3 * time.Hour),
			"end_time":   testClockTime.Add(-2 * time.Hour),
		}).Error
	if err != nil {
		t.Fatalf("failed to close election: %v", err)
	}

	votes, receipts, err := service.ResetElection(context.Background(), fix.election.ID)
	if err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}
	if votes != 4 || receipts != 1 {
		t.Fatalf("expected to purge 4 votes and 1 receipt, got %d and %d", votes, receipts)
	}
	if got := countRows(t, db, &Vote{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("expected no votes after purge, have %d", got)
	}
	if got := countRows(t, db, &VoterReceipt{}, "election_id = ?", fix.election.ID); got != 0 {
		t.Fatalf("expected no receipts after purge, have %d", got)
	}
}
