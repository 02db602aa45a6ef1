package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the directory entry the coordinator reads for display names and
// writes last-seen timestamps to. Accounts themselves are managed elsewhere.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;not null" json:"username"`
	Role       string    `gorm:"not null;default:'student'" json:"role"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
