package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/services"
	"github.com/thereayou/classroom-rtc/pkg/auth"
)

const blacklistPrefix = "blacklist:"

var ErrTokenRevoked = errors.New("token is blacklisted")

// TokenResolver resolves bearer tokens into identities and revokes them.
// Without a redis client the blacklist is disabled.
type TokenResolver struct {
	jwt   *auth.JWTManager
	redis *redis.Client
}

var _ services.IdentityResolver = (*TokenResolver)(nil)

func NewTokenResolver(jwtManager *auth.JWTManager, redisClient *redis.Client) *TokenResolver {
	return &TokenResolver{jwt: jwtManager, redis: redisClient}
}

func (r *TokenResolver) Resolve(ctx context.Context, token string) (services.Identity, error) {
	if r.redis != nil {
		exists, err := r.redis.Exists(ctx, blacklistPrefix+token).Result()
		if err != nil {
			return services.Identity{}, fmt.Errorf("check blacklist: %w", err)
		}
		if exists > 0 {
			return services.Identity{}, ErrTokenRevoked
		}
	}

	claims, err := r.jwt.Verify(token)
	if err != nil {
		return services.Identity{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return services.Identity{}, auth.ErrInvalidToken
	}
	return services.Identity{UserID: userID, Role: claims.Role}, nil
}

// Revoke blacklists the token until it would have expired anyway.
func (r *TokenResolver) Revoke(ctx context.Context, token string) error {
	if r.redis == nil {
		return errors.New("token blacklist is not configured")
	}
	exp, err := r.jwt.Expiry(token)
	if err != nil {
		return err
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return r.redis.Set(ctx, blacklistPrefix+token, 1, ttl).Err()
}
