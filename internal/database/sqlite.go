package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/accounts"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingPath = errors.New("database path is required")

// schemaModels are the tables the console owns.
var schemaModels = []any{
	&state.Document{},
	&accounts.StoredProfile{},
	&migrationRecord{},
}

// OpenSQLite opens the console database at path, creates its tables and runs
// pending data migrations. SQLite allows one writer, so the pool holds a
// single connection.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, errMissingPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, err
	}
	runner := migrationRunner{db: db, clock: time.Now, logger: logger}
	if err := runner.run(consoleMigrations); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}
