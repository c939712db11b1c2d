package database

import (
	"fmt"

	"github.com/campuslabs/ballotbox/backend/internal/ballot"
	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// TranslateError is enabled so receipt uniqueness violations surface as
// gorm.ErrDuplicatedKey to the commit transaction.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate applies the schema and the named data migrations. Exposed so tests
// can run it against their own connections.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	err := db.AutoMigrate(
		&catalog.Election{},
		&catalog.Position{},
		&catalog.Party{},
		&catalog.Candidate{},
		&voters.Profile{},
		&ballot.Vote{},
		&ballot.VoterReceipt{},
		&migrationRecord{},
	)
	if err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
