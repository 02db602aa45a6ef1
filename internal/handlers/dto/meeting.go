package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateMeetingRequest struct {
	InviteeID   uuid.UUID  `json:"invitee_id" binding:"required"`
	InviteeRole string     `json:"invitee_role"`
	Subject     string     `json:"subject" binding:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}
