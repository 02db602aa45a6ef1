package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageKind string

const (
	KindText    MessageKind = "text"
	KindFile    MessageKind = "file"
	KindVoice   MessageKind = "voice"
	KindMeeting MessageKind = "meeting"
)

// Message is a point-to-point chat message. Delivery state only moves
// forward: Seen implies Delivered, and neither timestamp is ever cleared.
type Message struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationKey string      `gorm:"index;not null" json:"conversation_key"`
	SenderID        uuid.UUID   `gorm:"type:uuid;index;not null" json:"sender_id"`
	SenderRole      string      `json:"sender_role,omitempty"`
	ReceiverID      uuid.UUID   `gorm:"type:uuid;index;not null" json:"receiver_id"`
	ReceiverRole    string      `json:"receiver_role,omitempty"`
	Kind            MessageKind `gorm:"not null" json:"kind"`
	Content         string      `json:"content,omitempty"`
	FileURL         string      `json:"file_url,omitempty"`
	FileName        string      `json:"file_name,omitempty"`
	MeetingID       *uuid.UUID  `gorm:"type:uuid" json:"meeting_id,omitempty"`
	Delivered       bool        `json:"delivered"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
	Seen            bool        `json:"seen"`
	SeenAt          *time.Time  `json:"seen_at,omitempty"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ConversationKey returns the stable key for the pair, independent of
// which side is the sender.
func ConversationKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}
