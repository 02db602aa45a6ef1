package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/models"
	"gorm.io/gorm"
)

func (d *Database) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	return d.db.WithContext(ctx).Create(meeting).Error
}

func (d *Database) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	var meeting models.Meeting
	err := d.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		First(&meeting, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "meeting")
	}
	return &meeting, nil
}

// TransitionMeeting moves the meeting from -> to only if it is still in
// from. Reports false when another writer got there first.
func (d *Database) TransitionMeeting(ctx context.Context, id uuid.UUID, from, to models.MeetingStatus, at time.Time) (bool, error) {
	fields := map[string]any{"status": to}
	switch to {
	case models.MeetingOngoing:
		fields["start_time"] = at
	case models.MeetingEnded, models.MeetingCancelled:
		fields["end_time"] = at
	}

	res := d.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (d *Database) AddParticipant(ctx context.Context, participant *models.MeetingParticipant) error {
	return d.db.WithContext(ctx).Create(participant).Error
}

// CloseParticipant stamps left_at on the connection's open records.
func (d *Database) CloseParticipant(ctx context.Context, meetingID uuid.UUID, connectionID string, at time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Model(&models.MeetingParticipant{}).
		Where("meeting_id = ? AND connection_id = ? AND left_at IS NULL", meetingID, connectionID).
		Update("left_at", at)
	return res.RowsAffected, res.Error
}
