package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/services"
	"golang.org/x/sync/singleflight"
)

// Registry is the read side of the hub.
type Registry interface {
	IsOnline(userID uuid.UUID) bool
	ConnectionsFor(userID uuid.UUID) []string
	OnlineUsers() []uuid.UUID
	LastActivity(userID uuid.UUID) (time.Time, bool)
}

type Status struct {
	UserID      uuid.UUID  `json:"user_id"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

// Service answers presence queries. The live registry is authoritative for
// online state; last-seen comes from the mirror when present, else from
// the user directory.
type Service struct {
	registry Registry
	users    services.UserDirectory
	mirror   *RedisMirror

	// collapses concurrent last-seen lookups for one user
	lookups singleflight.Group
}

func NewService(registry Registry, users services.UserDirectory, mirror *RedisMirror) *Service {
	return &Service{registry: registry, users: users, mirror: mirror}
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	conns := s.registry.ConnectionsFor(userID)
	st := Status{UserID: userID, Online: len(conns) > 0, Connections: len(conns)}
	if st.Online {
		if at, ok := s.registry.LastActivity(userID); ok {
			st.LastActive = &at
		}
		return st, nil
	}

	v, err, _ := s.lookups.Do(userID.String(), func() (any, error) {
		return s.lastSeen(ctx, userID)
	})
	if err != nil {
		return st, err
	}
	st.LastSeen = v.(*time.Time)
	return st, nil
}

func (s *Service) lastSeen(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	if s.mirror != nil {
		at, ok, err := s.mirror.LastSeen(ctx, userID)
		if err != nil {
			log.Debug().Err(err).Str("module", "presence").Str("user", userID.String()).Msg("mirror last seen")
		} else if ok {
			return &at, nil
		}
	}

	if s.users == nil {
		return nil, nil
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.LastSeenAt.IsZero() {
		return nil, nil
	}
	at := user.LastSeenAt
	return &at, nil
}

func (s *Service) Online() []uuid.UUID {
	return s.registry.OnlineUsers()
}
