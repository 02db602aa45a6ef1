// Package presence keeps derived copies of the hub's online state: a Redis
// mirror other processes can read, and the users' last-seen column.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/services"
	"github.com/thereayou/classroom-rtc/internal/websocket"
)

const (
	onlineKey      = "presence:online"
	lastSeenPrefix = "presence:last_seen:"
)

// RedisMirror copies presence transitions into Redis.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) PresenceChanged(ctx context.Context, change websocket.PresenceChange) {
	id := change.UserID.String()

	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch change.Status {
		case websocket.StatusOnline:
			pipe.SAdd(ctx, onlineKey, id)
		case websocket.StatusOffline:
			pipe.SRem(ctx, onlineKey, id)
			pipe.Set(ctx, lastSeenPrefix+id, change.At.UTC().Format(time.RFC3339Nano), 0)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "presence.redis").Str("user", id).Msg("mirror presence")
	}
}

// Reset clears the online set. Called at startup, when this process holds
// no connections.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, onlineKey).Err()
}

// LastSeen returns the mirrored last-seen time, or false if none is stored.
func (m *RedisMirror) LastSeen(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	raw, err := m.rdb.Get(ctx, lastSeenPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// LastSeenRecorder writes the offline time to the user directory.
type LastSeenRecorder struct {
	users services.UserDirectory
}

func NewLastSeenRecorder(users services.UserDirectory) *LastSeenRecorder {
	return &LastSeenRecorder{users: users}
}

func (r *LastSeenRecorder) PresenceChanged(ctx context.Context, change websocket.PresenceChange) {
	if change.Status != websocket.StatusOffline {
		return
	}
	if err := r.users.UpdateLastSeen(ctx, change.UserID, change.At); err != nil {
		log.Warn().Err(err).Str("module", "presence.lastseen").Str("user", change.UserID.String()).Msg("update last seen")
	}
}
