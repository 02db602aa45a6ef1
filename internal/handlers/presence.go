package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/classroom-rtc/internal/presence"
)

type PresenceHandler struct {
	presence *presence.Service
}

func NewPresenceHandler(svc *presence.Service) *PresenceHandler {
	return &PresenceHandler{presence: svc}
}

func (h *PresenceHandler) ListOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.presence.Online()})
}

func (h *PresenceHandler) GetStatus(c *gin.Context) {
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	st, err := h.presence.Status(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
