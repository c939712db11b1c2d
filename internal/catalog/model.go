package catalog

import "time"

// ElectionStatus is derived from the election window, never stored.
type ElectionStatus string

const (
	// ElectionStatusPending means the voting window has not opened yet.
	ElectionStatusPending ElectionStatus = "pending"
	// ElectionStatusActive means the current time falls inside the window.
	ElectionStatusActive ElectionStatus = "active"
	// ElectionStatusClosed means the voting window has passed.
	ElectionStatusClosed ElectionStatus = "closed"
)

// Election defines a time-bound voting event covering a set of positions.
// Reference data is immutable while voting is open; administrative mutation
// happens outside the voting window.
type Election struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;size:200;uniqueIndex;not null"`
	StartTime time.Time `gorm:"column:start_time;not null"`
	EndTime   time.Time `gorm:"column:end_time;not null"`
	IsActive  bool      `gorm:"column:is_active;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Election) TableName() string {
	return "elections"
}

// StatusAt derives the lifecycle status from the voting window.
func (e Election) StatusAt(now time.Time) ElectionStatus {
	if now.Before(e.StartTime) {
		return ElectionStatusPending
	}
	if now.After(e.EndTime) {
		return ElectionStatusClosed
	}
	return ElectionStatusActive
}

// OpenAt reports whether ballots may be cast: the window must be active and the
// administrative kill switch must be on.
func (e Election) OpenAt(now time.Time) bool {
	return e.IsActive && e.StatusAt(now) == ElectionStatusActive
}

// Position is an office being contested, e.g. President. BallotOrder fixes the
// ballot layout; Winners bounds how many selections a ballot may carry for it.
type Position struct {
	ID          uint   `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name;size:100;uniqueIndex;not null"`
	Description string `gorm:"column:description;type:text"`
	BallotOrder int    `gorm:"column:ballot_order;uniqueIndex;not null"`
	Winners     int    `gorm:"column:winners;not null;default:1"`
	IsActive    bool   `gorm:"column:is_active;not null;default:true"`
}

// TableName provides the explicit table binding for GORM.
func (Position) TableName() string {
	return "positions"
}

// Party groups candidates under a political affiliation.
type Party struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;size:100;uniqueIndex;not null"`
	ShortCode string    `gorm:"column:short_code;size:10;uniqueIndex;not null"`
	Platform  string    `gorm:"column:platform;type:text"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Party) TableName() string {
	return "parties"
}

// Candidate registers a voter profile as running for one position in one
// election. Only approved candidates appear on ballots or may receive votes.
// A profile may file at most once per (position, election) pair.
type Candidate struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	ProfileID  uint      `gorm:"column:profile_id;not null;uniqueIndex:idx_candidates_profile_position_election,priority:1"`
	PositionID uint      `gorm:"column:position_id;not null;uniqueIndex:idx_candidates_profile_position_election,priority:2;index"`
	ElectionID uint      `gorm:"column:election_id;not null;uniqueIndex:idx_candidates_profile_position_election,priority:3;index"`
	PartyID    *uint     `gorm:"column:party_id"`
	FullName   string    `gorm:"column:full_name;size:190;not null"`
	Biography  string    `gorm:"column:biography;type:text"`
	IsApproved bool      `gorm:"column:is_approved;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Candidate) TableName() string {
	return "candidates"
}
