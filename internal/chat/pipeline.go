// Package chat implements point-to-point message delivery and read
// receipts on top of the hub and the message store.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
)

// Relay is the slice of the hub the pipeline needs.
type Relay interface {
	IsOnline(userID uuid.UUID) bool
	SendToUser(userID uuid.UUID, ev events.Outbound, exclude string) int
}

const (
	defaultPreviewLength = 80
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 200
)

type Options struct {
	PreviewLength int
	HistoryLimit  int
}

// Draft is a message as submitted by its sender.
type Draft struct {
	SenderID        uuid.UUID
	SenderRole      string
	ReceiverID      uuid.UUID
	ReceiverRole    string
	ConversationKey string
	Kind            models.MessageKind
	Content         string
	FileURL         string
	FileName        string
	MeetingID       *uuid.UUID
}

// Notification is the lightweight badge event sent next to the full message.
type Notification struct {
	MessageID  uuid.UUID          `json:"message_id"`
	SenderID   uuid.UUID          `json:"sender_id"`
	SenderName string             `json:"sender_name,omitempty"`
	Kind       models.MessageKind `json:"kind"`
	Preview    string             `json:"preview"`
}

// DeliveredNotice tells a sender that the peer fetched their messages.
type DeliveredNotice struct {
	By          uuid.UUID `json:"by"`
	Count       int64     `json:"count"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type Service struct {
	store services.MessageStore
	users services.UserDirectory
	relay Relay
	opts  Options
	now   func() time.Time
}

func NewService(store services.MessageStore, users services.UserDirectory, relay Relay, opts Options) *Service {
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = defaultPreviewLength
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Service{store: store, users: users, relay: relay, opts: opts, now: time.Now}
}

func (d Draft) validate() error {
	if d.SenderID == uuid.Nil {
		return services.Validation("sender is required")
	}
	if d.ReceiverID == uuid.Nil {
		return services.Validation("receiver_id is required")
	}
	if d.SenderID == d.ReceiverID {
		return services.Validation("cannot send a message to yourself")
	}

	switch d.Kind {
	case models.KindText:
		if strings.TrimSpace(d.Content) == "" {
			return services.Validation("text message requires content")
		}
	case models.KindFile, models.KindVoice:
		if d.FileURL == "" {
			return services.Validation("%s message requires file_url", d.Kind)
		}
	case models.KindMeeting:
		if d.MeetingID == nil && strings.TrimSpace(d.Content) == "" {
			return services.Validation("meeting message requires meeting_id or content")
		}
	default:
		return services.Validation("unknown message kind %q", d.Kind)
	}
	return nil
}

// Send validates and persists the draft, then relays it to the receiver
// if they are online. originConn is the sender's connection, excluded from
// the multi-device echo; it may be empty for REST sends.
func (s *Service) Send(ctx context.Context, d Draft, originConn string) (*models.Message, error) {
	if d.Kind == "" {
		d.Kind = models.KindText
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	key := d.ConversationKey
	if key == "" {
		key = models.ConversationKey(d.SenderID, d.ReceiverID)
	}
	msg := &models.Message{
		ConversationKey: key,
		SenderID:        d.SenderID,
		SenderRole:      d.SenderRole,
		ReceiverID:      d.ReceiverID,
		ReceiverRole:    d.ReceiverRole,
		Kind:            d.Kind,
		Content:         d.Content,
		FileURL:         d.FileURL,
		FileName:        d.FileName,
		MeetingID:       d.MeetingID,
		CreatedAt:       s.now(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	if s.relay.IsOnline(d.ReceiverID) {
		s.relayToReceiver(ctx, msg)
	}

	s.relay.SendToUser(d.SenderID, events.New(events.TypeMessageSent, msg).From(d.SenderID), originConn)

	log.Debug().Str("module", "chat").Str("message", msg.ID.String()).Bool("delivered", msg.Delivered).Msg("message sent")
	return msg, nil
}

func (s *Service) relayToReceiver(ctx context.Context, msg *models.Message) {
	n := s.relay.SendToUser(msg.ReceiverID, events.New(events.TypeReceiveMessage, msg).From(msg.SenderID), "")
	if n == 0 {
		return
	}

	at := s.now()
	ok, err := s.store.MarkDelivered(ctx, msg.ID, at)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("message", msg.ID.String()).Msg("mark delivered after relay")
	} else if ok {
		msg.Delivered = true
		msg.DeliveredAt = &at
	}

	note := Notification{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: s.displayName(ctx, msg.SenderID),
		Kind:       msg.Kind,
		Preview:    s.preview(msg),
	}
	s.relay.SendToUser(msg.ReceiverID, events.New(events.TypeNewMessageNotice, note).From(msg.SenderID), "")
}

func (s *Service) displayName(ctx context.Context, userID uuid.UUID) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("module", "chat").Str("user", userID.String()).Msg("sender name lookup")
		return ""
	}
	return user.Username
}

func (s *Service) preview(msg *models.Message) string {
	switch msg.Kind {
	case models.KindFile:
		if msg.FileName != "" {
			return "[file] " + truncate(msg.FileName, s.opts.PreviewLength)
		}
		return "[file]"
	case models.KindVoice:
		return "[voice message]"
	case models.KindMeeting:
		if msg.Content == "" {
			return "[meeting invitation]"
		}
	}
	return truncate(msg.Content, s.opts.PreviewLength)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// PageSize clamps a requested history page size.
func (s *Service) PageSize(limit int) int {
	switch {
	case limit <= 0:
		return s.opts.HistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return limit
}

// ListMessages returns the viewer's history with peer, oldest first. Every
// message the peer sent the viewer is marked delivered first, and the peer
// is told how many were.
func (s *Service) ListMessages(ctx context.Context, viewer, peer uuid.UUID, limit int, before *uuid.UUID) ([]models.Message, error) {
	if peer == uuid.Nil || peer == viewer {
		return nil, services.Validation("invalid peer")
	}
	limit = s.PageSize(limit)

	at := s.now()
	n, err := s.store.MarkConversationDelivered(ctx, peer, viewer, at)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ConversationMessages(ctx, viewer, peer, limit, before)
	if err != nil {
		return nil, err
	}

	if n > 0 {
		notice := DeliveredNotice{By: viewer, Count: n, DeliveredAt: at}
		s.relay.SendToUser(peer, events.New(events.TypeMessagesDelivered, notice).From(viewer), "")
	}
	return messages, nil
}

func (s *Service) UnreadCounts(ctx context.Context, viewer uuid.UUID) (map[uuid.UUID]int64, error) {
	return s.store.UnreadCounts(ctx, viewer)
}
