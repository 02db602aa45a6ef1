package database

import (
	"errors"

	"github.com/thereayou/classroom-rtc/internal/services"
	"gorm.io/gorm"
)

// Database is the gorm-backed store for users, messages and meetings.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) DB() *gorm.DB {
	return d.db
}

var (
	_ services.MessageStore  = (*Database)(nil)
	_ services.MeetingStore  = (*Database)(nil)
	_ services.UserDirectory = (*Database)(nil)
)

// notFound maps a missing row to the service taxonomy.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.NotFound(what)
	}
	return err
}
