package ballot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testClockTime = time.Unix(1700000000, 0).UTC()

func testClock() time.Time {
	return testClockTime
}

func testSealerKey() [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ballot.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&catalog.Election{},
		&catalog.Position{},
		&catalog.Party{},
		&catalog.Candidate{},
		&voters.Profile{},
		&Vote{},
		&VoterReceipt{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, db *gorm.DB) (*Service, *Gate, *catalog.Service) {
	t.Helper()
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, Clock: testClock})
	if err != nil {
		t.Fatalf("failed to create catalog service: %v", err)
	}
	gate, err := NewGate(GateConfig{Database: db, Clock: testClock})
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		Gate:       gate,
		Sealer:     NewSecretBoxSealer(testSealerKey()),
		Clock:      testClock,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create ballot service: %v", err)
	}
	return service, gate, catalogService
}

type fixture struct {
	election   catalog.Election
	president  catalog.Position
	senator    catalog.Position
	presidents []catalog.Candidate
	senators   []catalog.Candidate
	voterIDs   []uint
}

// seedFixture creates an open election with a one-winner President race (two
// candidates), a three-winner Senator race (six candidates) and the requested
// number of eligible voters.
func seedFixture(t *testing.T, db *gorm.DB, voterCount int) fixture {
	t.Helper()

	election := catalog.Election{
		Name:      "Student Council General Election",
		StartTime: testClockTime.Add(-time.Hour),
		EndTime:   testClockTime.Add(time.Hour),
		IsActive:  true,
	}
	if err := db.Create(&election).Error; err != nil {
		t.Fatalf("failed to create election: %v", err)
	}

	president := catalog.Position{Name: "President", BallotOrder: 1, Winners: 1, IsActive: true}
	if err := db.Create(&president).Error; err != nil {
		t.Fatalf("failed to create position: %v", err)
	}
	senator := catalog.Position{Name: "Senator", BallotOrder: 2, Winners: 3, IsActive: true}
	if err := db.Create(&senator).Error; err != nil {
		t.Fatalf("failed to create position: %v", err)
	}

	fix := fixture{election: election, president: president, senator: senator}

	for i := 0; i < voterCount; i++ {
		profile := voters.Profile{
			StudentNumber:  "2026-" + string(rune('A'+i)),
			FullName:       "Voter " + string(rune('A'+i)),
			EligibleToVote: true,
		}
		if err := db.Create(&profile).Error; err != nil {
			t.Fatalf("failed to create voter: %v", err)
		}
		fix.voterIDs = append(fix.voterIDs, profile.ID)
	}

	candidateProfile := func(name string) uint {
		profile := voters.Profile{StudentNumber: "C-" + name, FullName: name, EligibleToVote: true}
		if err := db.Create(&profile).Error; err != nil {
			t.Fatalf("failed to create candidate profile: %v", err)
		}
		return profile.ID
	}

	for _, name := range []string{"Alice Ang", "Benjamin Cruz"} {
		candidate := catalog.Candidate{
			ProfileID:  candidateProfile(name),
			PositionID: president.ID,
			ElectionID: election.ID,
			FullName:   name,
			IsApproved: true,
		}
		if err := db.Create(&candidate).Error; err != nil {
			t.Fatalf("failed to create candidate: %v", err)
		}
		fix.presidents = append(fix.presidents, candidate)
	}

	senatorNames := []string{
		"Carla Dizon", "Diego Enriquez", "Elena Fernandez",
		"Felipe Garcia", "Gloria Herrera", "Hector Ignacio",
	}
	for _, name := range senatorNames {
		candidate := catalog.Candidate{
			ProfileID:  candidateProfile(name),
			PositionID: senator.ID,
			ElectionID: election.ID,
			FullName:   name,
			IsApproved: true,
		}
		if err := db.Create(&candidate).Error; err != nil {
			t.Fatalf("failed to create candidate: %v", err)
		}
		fix.senators = append(fix.senators, candidate)
	}

	return fix
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func mustCast(t *testing.T, service *Service, voterID, electionID uint, selections []Selection) CastResult {
	t.Helper()
	result, err := service.CastBallot(context.Background(), voterID, electionID, selections, "203.0.113.7")
	if err != nil {
		t.Fatalf("unexpected cast error: %v", err)
	}
	return result
}
