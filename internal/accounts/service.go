package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidUsername indicates the username was blank.
	ErrInvalidUsername = errors.New("accounts: invalid username")
	// ErrIncompleteProfile indicates a profile field was blank.
	ErrIncompleteProfile = errors.New("accounts: incomplete profile")
)

// ServiceConfig describes the dependencies required for profile persistence.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service remembers hotel profiles per reception account.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("accounts: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// ProfileFor returns the remembered profile for the username, or nil when none exists.
func (s *Service) ProfileFor(ctx context.Context, username string) (*state.HotelProfile, error) {
	key := normalize(username)
	if key == "" {
		return nil, ErrInvalidUsername
	}
	if cached, ok := s.cache.Load(key); ok {
		if profile, ok := cached.(state.HotelProfile); ok {
			return &profile, nil
		}
	}

	var stored StoredProfile
	err := s.db.WithContext(ctx).Where("username = ?", key).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	profile := stored.HotelProfile()
	s.cache.Store(key, profile)
	return &profile, nil
}

// RememberProfile stores the profile for the username, replacing any earlier one.
func (s *Service) RememberProfile(ctx context.Context, username string, profile state.HotelProfile) error {
	key := normalize(username)
	if key == "" {
		return ErrInvalidUsername
	}
	if !profile.Complete() {
		return ErrIncompleteProfile
	}
	now := s.now().UTC()
	stored := StoredProfile{
		Username:         key,
		Name:             normalize(profile.Name),
		Address:          normalize(profile.Address),
		ReceptionistName: normalize(profile.ReceptionistName),
		Phone:            normalize(profile.Phone),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"hotel_name", "hotel_address", "receptionist_name", "phone", "updated_at"}),
		}).
		Create(&stored).Error
	if err != nil {
		return err
	}
	s.cache.Store(key, stored.HotelProfile())
	return nil
}
