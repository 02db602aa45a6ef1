package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
)

type SeenNotice struct {
	MessageID uuid.UUID `json:"message_id"`
	SeenBy    uuid.UUID `json:"seen_by"`
	SeenAt    time.Time `json:"seen_at"`
}

type SeenAllNotice struct {
	SeenBy uuid.UUID `json:"seen_by"`
	Count  int64     `json:"count"`
	SeenAt time.Time `json:"seen_at"`
}

// Receipts records read acknowledgements and tells the senders.
type Receipts struct {
	store services.MessageStore
	relay Relay
	now   func() time.Time
}

func NewReceipts(store services.MessageStore, relay Relay) *Receipts {
	return &Receipts{store: store, relay: relay, now: time.Now}
}

// MarkSeen acknowledges one message on behalf of its receiver. Marking a
// message that is already seen returns it unchanged and notifies nobody.
func (r *Receipts) MarkSeen(ctx context.Context, viewer, messageID uuid.UUID) (*models.Message, error) {
	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != viewer {
		return nil, services.Forbidden("only the receiver can mark a message as seen")
	}
	if msg.Seen {
		return msg, nil
	}

	at := r.now()
	changed, err := r.store.MarkSeen(ctx, messageID, at)
	if err != nil {
		return nil, err
	}
	if !changed {
		// a concurrent ack won; report the stored state
		return r.store.GetMessage(ctx, messageID)
	}

	msg.Seen = true
	msg.SeenAt = &at
	if !msg.Delivered {
		msg.Delivered = true
		msg.DeliveredAt = &at
	}

	notice := SeenNotice{MessageID: msg.ID, SeenBy: viewer, SeenAt: at}
	r.relay.SendToUser(msg.SenderID, events.New(events.TypeMessageSeen, notice).From(viewer), "")
	return msg, nil
}

// MarkAllSeen acknowledges every unseen message from -> viewer and sends
// one aggregate notice. Returns how many messages changed.
func (r *Receipts) MarkAllSeen(ctx context.Context, viewer, from uuid.UUID) (int64, error) {
	if from == uuid.Nil || from == viewer {
		return 0, services.Validation("invalid from_user_id")
	}

	at := r.now()
	n, err := r.store.MarkAllSeen(ctx, from, viewer, at)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	notice := SeenAllNotice{SeenBy: viewer, Count: n, SeenAt: at}
	r.relay.SendToUser(from, events.New(events.TypeMessagesSeen, notice).From(viewer), "")

	log.Debug().Str("module", "chat.receipts").Str("from", from.String()).Str("to", viewer.String()).Int64("count", n).Msg("marked all seen")
	return n, nil
}
