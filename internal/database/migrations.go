package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/accounts"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationBackfillSessionProfile = "2026-10-01_backfill_session_hotel_profile"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// dataMigration is a one-off data fix identified by a dated name.
type dataMigration struct {
	name string
	run  func(tx *gorm.DB) error
}

// consoleMigrations run in order. Names are never reused.
var consoleMigrations = []dataMigration{
	{name: migrationBackfillSessionProfile, run: backfillSessionProfile},
}

type migrationRunner struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// run applies every migration that has no record yet. Each migration and its
// record commit in one transaction.
func (r migrationRunner) run(migrations []dataMigration) error {
	for _, migration := range migrations {
		applied, err := r.applied(migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = r.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.run(tx); err != nil {
				return err
			}
			record := migrationRecord{Name: migration.name, AppliedAtSeconds: r.clock().UTC().Unix()}
			return tx.Create(&record).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		r.logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func (r migrationRunner) applied(name string) (bool, error) {
	var record migrationRecord
	err := r.db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// backfillSessionProfile copies the hotel profile of a stored reception
// session into hotel_profiles. Existing rows win. A missing or unreadable
// document is left for the state store to report.
func backfillSessionProfile(tx *gorm.DB) error {
	var document state.Document
	err := tx.Where("state_key = ?", state.StorageKey).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var stored state.ApplicationState
	if json.Unmarshal([]byte(document.Body), &stored) != nil {
		return nil
	}
	current := stored.Session
	if current == nil || current.Role != state.RoleReception {
		return nil
	}
	if current.HotelProfile == nil || !current.HotelProfile.Complete() {
		return nil
	}

	profile := accounts.StoredProfile{
		Username:         current.Username,
		Name:             current.HotelProfile.Name,
		Address:          current.HotelProfile.Address,
		ReceptionistName: current.HotelProfile.ReceptionistName,
		Phone:            current.HotelProfile.Phone,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile).Error
}
