package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/services"
	"github.com/thereayou/classroom-rtc/pkg/auth"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
	TokenKey  = "token"
)

// AuthMiddleware requires a bearer token in the Authorization header.
func AuthMiddleware(resolver services.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		authenticate(c, resolver, token)
	}
}

// WSAuthMiddleware also accepts the token as a query parameter, since
// browsers cannot set headers on a websocket handshake.
func WSAuthMiddleware(resolver services.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(c, resolver, token)
	}
}

func authenticate(c *gin.Context, resolver services.IdentityResolver, token string) {
	id, err := resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		log.Debug().Err(err).Str("module", "middleware.auth").Str("path", c.FullPath()).Msg("token rejected")
		msg := "invalid token"
		if errors.Is(err, ErrTokenRevoked) {
			msg = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	c.Set(UserIDKey, id.UserID)
	c.Set(RoleKey, id.Role)
	c.Set(TokenKey, token)
	c.Next()
}

// IdentityFrom returns the identity set by the auth middleware.
func IdentityFrom(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return services.Identity{}, false
	}
	userID, ok := v.(uuid.UUID)
	if !ok {
		return services.Identity{}, false
	}
	return services.Identity{UserID: userID, Role: c.GetString(RoleKey)}, true
}

func TokenFrom(c *gin.Context) string {
	return c.GetString(TokenKey)
}
