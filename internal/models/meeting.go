package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingOngoing   MeetingStatus = "ongoing"
	MeetingEnded     MeetingStatus = "ended"
	MeetingCancelled MeetingStatus = "cancelled"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s MeetingStatus) CanTransition(next MeetingStatus) bool {
	switch s {
	case MeetingScheduled:
		return next == MeetingOngoing || next == MeetingCancelled
	case MeetingOngoing:
		return next == MeetingEnded
	}
	return false
}

// Terminal statuses accept no joins and no transitions.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingEnded || s == MeetingCancelled
}

type Meeting struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizerID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"organizer_id"`
	OrganizerRole string        `json:"organizer_role,omitempty"`
	InviteeID     uuid.UUID     `gorm:"type:uuid;index;not null" json:"invitee_id"`
	InviteeRole   string        `json:"invitee_role,omitempty"`
	Subject       string        `gorm:"not null" json:"subject"`
	ScheduledAt   time.Time     `json:"scheduled_at"`
	Status        MeetingStatus `gorm:"not null;index" json:"status"`
	StartTime     *time.Time    `json:"start_time,omitempty"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`

	Participants []MeetingParticipant `gorm:"foreignKey:MeetingID" json:"participants,omitempty"`
}

func (m *Meeting) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = MeetingScheduled
	}
	return nil
}

// IsParty reports whether the user is the organizer or the invited party.
func (m *Meeting) IsParty(userID uuid.UUID) bool {
	return userID == m.OrganizerID || userID == m.InviteeID
}

// MeetingParticipant records one connection's stay in a meeting.
type MeetingParticipant struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	MeetingID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"meeting_id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null" json:"user_id"`
	Role         string     `json:"role,omitempty"`
	ConnectionID string     `gorm:"index" json:"connection_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
}

func (p *MeetingParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
