package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/handlers/dto"
	"github.com/thereayou/classroom-rtc/internal/meeting"
	"github.com/thereayou/classroom-rtc/internal/middleware"
	"github.com/thereayou/classroom-rtc/internal/models"
)

type MeetingHandler struct {
	broker *meeting.Broker
}

func NewMeetingHandler(broker *meeting.Broker) *MeetingHandler {
	return &MeetingHandler{broker: broker}
}

func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)

	var req dto.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	m, err := h.broker.CreateMeeting(c.Request.Context(), meeting.NewMeeting{
		Organizer:   id,
		InviteeID:   req.InviteeID,
		InviteeRole: req.InviteeRole,
		Subject:     req.Subject,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	meetingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	m, err := h.broker.Get(c.Request.Context(), id.UserID, meetingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MeetingHandler) StartMeeting(c *gin.Context) {
	h.transition(c, h.broker.Start)
}

func (h *MeetingHandler) EndMeeting(c *gin.Context) {
	h.transition(c, h.broker.End)
}

func (h *MeetingHandler) CancelMeeting(c *gin.Context) {
	h.transition(c, h.broker.Cancel)
}

type transitionFunc func(ctx context.Context, actor, id uuid.UUID) (*models.Meeting, error)

func (h *MeetingHandler) transition(c *gin.Context, fn transitionFunc) {
	id, _ := middleware.IdentityFrom(c)
	meetingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	m, err := fn(c.Request.Context(), id.UserID, meetingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
