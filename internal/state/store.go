package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageKey is the fixed key the application state document is stored under.
const StorageKey = "begu_engeda_final_reports_v1"

var (
	// ErrCorrupt indicates the stored document could not be parsed.
	ErrCorrupt = errors.New("state: stored document is corrupt")
	// ErrUnavailable indicates the backing storage could not be read or written.
	ErrUnavailable = errors.New("state: storage unavailable")

	errMissingDatabase = errors.New("state: database handle is required")
)

// Document is the key/value row holding one serialized ApplicationState.
type Document struct {
	Key              string `gorm:"column:state_key;primaryKey;size:190;not null"`
	Body             string `gorm:"column:document;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "app_state_documents"
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store loads and saves the application state as a single JSON document.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store bound to the document under StorageKey.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Load returns the stored state, or the seeded default when nothing is stored.
// The stored document is returned as parsed, without migration or validation.
func (s *Store) Load(ctx context.Context) (ApplicationState, error) {
	var document Document
	err := s.db.WithContext(ctx).Where("state_key = ?", StorageKey).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Default(s.clock()), nil
	}
	if err != nil {
		s.logger.Error("state load failed", zap.String("key", StorageKey), zap.Error(err))
		return ApplicationState{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var loaded ApplicationState
	if err := json.Unmarshal([]byte(document.Body), &loaded); err != nil {
		s.logger.Error("state document parse failed", zap.String("key", StorageKey), zap.Error(err))
		return ApplicationState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return loaded, nil
}

// Save serializes the full state and writes it under StorageKey.
func (s *Store) Save(ctx context.Context, current ApplicationState) error {
	body, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	document := Document{
		Key:              StorageKey,
		Body:             string(body),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at_s"}),
		}).
		Create(&document).Error
	if err != nil {
		s.logger.Error("state save failed", zap.String("key", StorageKey), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
