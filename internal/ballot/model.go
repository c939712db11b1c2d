package ballot

import "time"

// Vote is the anonymous tally unit: one row per selection on a committed
// ballot. It deliberately carries no reference to the voter, directly or via
// foreign key. The correlation id groups the rows of one submission for audit
// bookkeeping only; it is generated independently of the receipt's id and must
// never be used to join the two tables.
type Vote struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	ElectionID    uint      `gorm:"column:election_id;not null;index:idx_votes_election_position,priority:1"`
	PositionID    uint      `gorm:"column:position_id;not null;index:idx_votes_election_position,priority:2"`
	CandidateID   uint      `gorm:"column:candidate_id;not null;index"`
	CorrelationID string    `gorm:"column:correlation_id;size:36;not null;index"`
	CastAt        time.Time `gorm:"column:cast_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// VoterReceipt proves that a voter participated in an election without
// revealing their choices to the tally. The unique index on
// (voter_id, election_id) is the sole authoritative defense against double
// voting. ChoicesBlob holds the voter's own selections sealed under a server
// key, readable only through the voter-history collaborator.
type VoterReceipt struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	VoterID       uint      `gorm:"column:voter_id;not null;uniqueIndex:idx_receipts_voter_election,priority:1"`
	ElectionID    uint      `gorm:"column:election_id;not null;uniqueIndex:idx_receipts_voter_election,priority:2"`
	CorrelationID string    `gorm:"column:correlation_id;size:36;not null"`
	ChoicesBlob   string    `gorm:"column:choices_blob;type:text;not null"`
	CastAt        time.Time `gorm:"column:cast_at;not null"`
	ClientIP      string    `gorm:"column:client_ip;size:45"`
}

// TableName provides the explicit table binding for GORM.
func (VoterReceipt) TableName() string {
	return "voter_receipts"
}
