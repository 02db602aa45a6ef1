package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/chat"
	"github.com/thereayou/classroom-rtc/internal/handlers/dto"
	"github.com/thereayou/classroom-rtc/internal/middleware"
	"github.com/thereayou/classroom-rtc/internal/models"
)

// HTTPMessageHandler is the REST face of the message pipeline.
type HTTPMessageHandler struct {
	chat     *chat.Service
	receipts *chat.Receipts
}

func NewHTTPMessageHandler(chatSvc *chat.Service, receipts *chat.Receipts) *HTTPMessageHandler {
	return &HTTPMessageHandler{chat: chatSvc, receipts: receipts}
}

func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), chat.Draft{
		SenderID:        id.UserID,
		SenderRole:      id.Role,
		ReceiverID:      req.ReceiverID,
		ReceiverRole:    req.ReceiverRole,
		ConversationKey: req.ConversationKey,
		Kind:            models.MessageKind(req.Kind),
		Content:         req.Content,
		FileURL:         req.FileURL,
		FileName:        req.FileName,
		MeetingID:       req.MeetingID,
	}, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetConversation returns history with the peer in :id and marks the
// peer's messages delivered.
func (h *HTTPMessageHandler) GetConversation(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	peer, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	limit := 0
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var beforeID *uuid.UUID
	if before := c.Query("before"); before != "" {
		parsed, err := uuid.Parse(before)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before"})
			return
		}
		beforeID = &parsed
	}

	messages, err := h.chat.ListMessages(c.Request.Context(), id.UserID, peer, limit, beforeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{
		Messages: messages,
		HasMore:  len(messages) == h.chat.PageSize(limit),
	})
}

func (h *HTTPMessageHandler) UnreadCounts(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)

	counts, err := h.chat.UnreadCounts(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make(map[string]int64, len(counts))
	for sender, n := range counts {
		out[sender.String()] = n
	}
	c.JSON(http.StatusOK, gin.H{"unread": out})
}

func (h *HTTPMessageHandler) MarkSeen(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.receipts.MarkSeen(c.Request.Context(), id.UserID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *HTTPMessageHandler) MarkAllSeen(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	peer, ok := uuidParam(c, "peerId")
	if !ok {
		return
	}

	n, err := h.receipts.MarkAllSeen(c.Request.Context(), id.UserID, peer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from_user_id": peer, "count": n})
}
