package dto

import (
	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/models"
)

// SendMessageRequest is the REST body for sending a message. Kind
// defaults to text.
type SendMessageRequest struct {
	ReceiverID      uuid.UUID  `json:"receiver_id" binding:"required"`
	ReceiverRole    string     `json:"receiver_role"`
	ConversationKey string     `json:"conversation_key"`
	Kind            string     `json:"kind"`
	Content         string     `json:"content"`
	FileURL         string     `json:"file_url"`
	FileName        string     `json:"file_name"`
	MeetingID       *uuid.UUID `json:"meeting_id"`
}

type HistoryResponse struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}
