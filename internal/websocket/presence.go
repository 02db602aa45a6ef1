package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceChange is an edge transition: first connection of a user
// appeared, or last connection went away.
type PresenceChange struct {
	UserID uuid.UUID      `json:"user_id"`
	Status PresenceStatus `json:"status"`
	At     time.Time      `json:"at"`
}

// PresenceObserver is told about transitions in the order they happened.
// Observers run on the hub loop, outside the registry lock.
type PresenceObserver interface {
	PresenceChanged(ctx context.Context, change PresenceChange)
}

const (
	presenceQueueSize     = 1024
	presenceNotifyTimeout = 5 * time.Second
)

func (h *Hub) AddPresenceObserver(o PresenceObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// announcePresenceLocked broadcasts a transition to every live connection
// and queues it for observers. Caller holds h.mu for writing.
func (h *Hub) announcePresenceLocked(userID uuid.UUID, status PresenceStatus, at time.Time) {
	change := PresenceChange{UserID: userID, Status: status, At: at}

	data, err := events.New(events.TypeUserStatusChanged, change).From(userID).Encode()
	if err == nil {
		for _, c := range h.clients {
			if err := c.TrySend(data); err != nil {
				log.Debug().Err(err).Str("module", "websocket.presence").Str("conn", c.ID).Msg("presence frame dropped")
			}
		}
	}

	select {
	case h.presence <- change:
	default:
		log.Warn().Str("module", "websocket.presence").Str("user", userID.String()).Str("status", string(status)).Msg("presence queue full, observers skipped")
	}

	log.Info().Str("module", "websocket.presence").Str("user", userID.String()).Str("status", string(status)).Msg("presence changed")
}

func (h *Hub) notifyObservers(change PresenceChange) {
	h.mu.RLock()
	observers := append([]PresenceObserver(nil), h.observers...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), presenceNotifyTimeout)
	defer cancel()
	for _, o := range observers {
		o.PresenceChanged(ctx, change)
	}
}

func (h *Hub) drainPresence() {
	for {
		select {
		case change := <-h.presence:
			h.notifyObservers(change)
		default:
			return
		}
	}
}
