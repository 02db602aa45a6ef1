package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/models"
)

// MessageStore is the durable writer-of-record for chat messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ConversationMessages(ctx context.Context, a, b uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkConversationDelivered(ctx context.Context, from, to uuid.UUID, at time.Time) (int64, error)
	MarkSeen(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkAllSeen(ctx context.Context, from, to uuid.UUID, at time.Time) (int64, error)
	UnreadCounts(ctx context.Context, receiver uuid.UUID) (map[uuid.UUID]int64, error)
}

// MeetingStore persists meeting sessions and participant records.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	TransitionMeeting(ctx context.Context, id uuid.UUID, from, to models.MeetingStatus, at time.Time) (bool, error)
	AddParticipant(ctx context.Context, participant *models.MeetingParticipant) error
	CloseParticipant(ctx context.Context, meetingID uuid.UUID, connectionID string, at time.Time) (int64, error)
}

// UserDirectory is the read side of the user store.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}
