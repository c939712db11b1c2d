package voters

import "time"

// Profile mirrors the voter record owned by the accounts subsystem. The engine
// only reads it: the eligibility flag is set by an external verification
// workflow before voting opens.
type Profile struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	StudentNumber  string    `gorm:"column:student_number;size:30;uniqueIndex;not null"`
	FullName       string    `gorm:"column:full_name;size:190;not null"`
	Course         string    `gorm:"column:course;size:8"`
	YearLevel      int       `gorm:"column:year_level"`
	EligibleToVote bool      `gorm:"column:eligible_to_vote;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "voter_profiles"
}
