package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/classroom-rtc/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role, "token": TokenFrom(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	resolver := NewTokenResolver(jwtManager, nil)
	r := newRouter(AuthMiddleware(resolver))

	userID := uuid.New()
	token, err := jwtManager.Generate(userID, "teacher")
	require.NoError(t, err)

	cases := map[string]int{
		"Bearer " + token: http.StatusOK,
		"Bearer garbage":  http.StatusUnauthorized,
		"":                http.StatusUnauthorized,
	}
	for header, status := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, status, w.Code, header)
		if status == http.StatusOK {
			assert.Contains(t, w.Body.String(), userID.String())
			assert.Contains(t, w.Body.String(), "teacher")
		}
	}
}

func TestWSAuthMiddleware_QueryToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	r := newRouter(WSAuthMiddleware(NewTokenResolver(jwtManager, nil)))

	token, err := jwtManager.Generate(uuid.New(), "student")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenResolver_RevokeNeedsRedis(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	token, err := jwtManager.Generate(uuid.New(), "student")
	require.NoError(t, err)

	err = NewTokenResolver(jwtManager, nil).Revoke(context.Background(), token)
	assert.Error(t, err)
}

func TestTokenResolver_RevokedTokenIsRejected(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	jwtManager := auth.NewJWTManager("secret", time.Minute)
	resolver := NewTokenResolver(jwtManager, rdb)

	token, err := jwtManager.Generate(uuid.New(), "student")
	require.NoError(t, err)

	_, err = resolver.Resolve(ctx, token)
	require.NoError(t, err)

	require.NoError(t, resolver.Revoke(ctx, token))
	_, err = resolver.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	ttl, err := rdb.TTL(ctx, blacklistPrefix+token).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
