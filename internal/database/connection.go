package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Connect opens the store named by dsn. A "sqlite://" prefix selects a
// local SQLite file, anything else is handed to the postgres driver.
func Connect(dsn string, verbose bool) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return OpenSQLite(path, cfg)
	}

	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	log.Info().Str("module", "database").Str("driver", "postgres").Msg("connected")
	return NewDatabase(db), nil
}

// OpenSQLite opens a SQLite database. ":memory:" is valid; the pool is
// pinned to one connection so every query sees the same database.
func OpenSQLite(path string, cfg *gorm.Config) (*Database, error) {
	if cfg == nil {
		cfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("module", "database").Str("driver", "sqlite").Str("path", path).Msg("connected")
	return NewDatabase(db), nil
}

func (d *Database) Migrate() error {
	return d.db.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.Meeting{},
		&models.MeetingParticipant{},
	)
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
