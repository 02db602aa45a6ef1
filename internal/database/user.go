package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/models"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	return d.db.WithContext(ctx).Create(user).Error
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// UpdateLastSeen never moves the timestamp backwards.
func (d *Database) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	return d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", id, at).
		Update("last_seen_at", at).Error
}
