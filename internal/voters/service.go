package voters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound indicates the voter id does not resolve to a profile.
	ErrProfileNotFound = errors.New("voters: profile not found")
	// ErrInvalidProfile indicates a registration payload failed validation.
	ErrInvalidProfile = errors.New("voters: invalid profile")
)

// ServiceConfig describes the dependencies for voter profile access.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service exposes read access to voter profiles plus the registration path used
// by fixture tooling. Verification state is owned by the accounts subsystem.
type Service struct {
	db *gorm.DB
}

// NewService constructs the voter profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("voters: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// GetProfile loads a voter profile by id.
func (s *Service) GetProfile(ctx context.Context, voterID uint) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Take(&profile, voterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Register persists a new voter profile and returns it with its assigned id.
func (s *Service) Register(ctx context.Context, profile Profile) (Profile, error) {
	if strings.TrimSpace(profile.StudentNumber) == "" {
		return Profile{}, fmt.Errorf("%w: student number required", ErrInvalidProfile)
	}
	if strings.TrimSpace(profile.FullName) == "" {
		return Profile{}, fmt.Errorf("%w: full name required", ErrInvalidProfile)
	}
	if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// CountEligible returns the number of profiles cleared to vote. The tally
// reader uses it as the turnout denominator.
func (s *Service) CountEligible(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("eligible_to_vote = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
