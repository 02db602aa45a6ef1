package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/middleware"
)

type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

type UserDisconnector interface {
	DisconnectUser(userID uuid.UUID) int
}

type AuthHandler struct {
	tokens TokenRevoker
	hub    UserDisconnector
}

func NewAuthHandler(tokens TokenRevoker, hub UserDisconnector) *AuthHandler {
	return &AuthHandler{tokens: tokens, hub: hub}
}

// Logout blacklists the token until it expires and closes every live
// connection of the user.
func (h *AuthHandler) Logout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	token := middleware.TokenFrom(c)

	if err := h.tokens.Revoke(c.Request.Context(), token); err != nil {
		log.Error().Err(err).Str("module", "handlers.auth").Str("user", id.UserID.String()).Msg("revoke token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke token"})
		return
	}

	n := h.hub.DisconnectUser(id.UserID)
	log.Info().Str("module", "handlers.auth").Str("user", id.UserID.String()).Int("connections", n).Msg("logged out")
	c.JSON(http.StatusOK, gin.H{"disconnected": n})
}
