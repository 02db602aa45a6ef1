package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/chat"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/meeting"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
	ws "github.com/thereayou/classroom-rtc/internal/websocket"
)

const eventTimeout = 10 * time.Second

// EventHandler dispatches decoded websocket events. Rejections go back to
// the originating connection only.
type EventHandler struct {
	hub      *ws.Hub
	chat     *chat.Service
	receipts *chat.Receipts
	meetings *meeting.Broker
	limiter  *EventRateLimiter
}

func NewEventHandler(hub *ws.Hub, chatSvc *chat.Service, receipts *chat.Receipts, meetings *meeting.Broker, limiter *EventRateLimiter) *EventHandler {
	return &EventHandler{
		hub:      hub,
		chat:     chatSvc,
		receipts: receipts,
		meetings: meetings,
		limiter:  limiter,
	}
}

func (h *EventHandler) HandleMessage(client *ws.Client, raw []byte) {
	d, err := events.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Str("module", "handlers.events").Str("conn", client.ID).Str("type", string(d.Type)).Msg("event rejected")
		client.SendError(d.Ref, err)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(client.ID) {
		client.SendError(d.Ref, services.Validation("rate limit exceeded"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := h.dispatch(ctx, client, d); err != nil {
		ev := log.Debug()
		switch services.KindOf(err) {
		case services.KindForbidden:
			ev = log.Warn()
		case "":
			ev = log.Error()
		}
		ev.Err(err).Str("module", "handlers.events").Str("conn", client.ID).Str("user", client.UserID.String()).Str("type", string(d.Type)).Msg("event failed")
		client.SendError(d.Ref, err)
	}
}

func conn(client *ws.Client) meeting.Conn {
	return meeting.Conn{ID: client.ID, UserID: client.UserID, Role: client.Role}
}

func ack(client *ws.Client, ref string, data any) {
	if err := client.SendEvent(events.New(events.TypeAck, data).WithRef(ref)); err != nil {
		log.Debug().Err(err).Str("module", "handlers.events").Str("conn", client.ID).Msg("ack dropped")
	}
}

func (h *EventHandler) dispatch(ctx context.Context, client *ws.Client, d events.Decoded) error {
	switch ev := d.Event.(type) {
	case events.UserOnline:
		return client.SendEvent(connectedEvent(h.hub, client).WithRef(d.Ref))

	case events.Ping:
		return client.SendEvent(events.New(events.TypePong, nil).WithRef(d.Ref))

	case events.JoinRoom:
		return h.joinRoom(client, ev.Room, d.Ref)

	case events.LeaveRoom:
		return h.leaveRoom(client, ev.Room, d.Ref)

	case events.SendMessage:
		msg, err := h.chat.Send(ctx, chat.Draft{
			SenderID:        client.UserID,
			SenderRole:      client.Role,
			ReceiverID:      ev.ReceiverID,
			ReceiverRole:    ev.ReceiverRole,
			ConversationKey: ev.ConversationKey,
			Kind:            models.MessageKind(ev.Kind),
			Content:         ev.Content,
			FileURL:         ev.FileURL,
			FileName:        ev.FileName,
			MeetingID:       ev.MeetingID,
		}, client.ID)
		if err != nil {
			return err
		}
		ack(client, d.Ref, msg)
		return nil

	case events.MarkSeen:
		msg, err := h.receipts.MarkSeen(ctx, client.UserID, ev.MessageID)
		if err != nil {
			return err
		}
		ack(client, d.Ref, msg)
		return nil

	case events.MarkAllSeen:
		n, err := h.receipts.MarkAllSeen(ctx, client.UserID, ev.FromUserID)
		if err != nil {
			return err
		}
		ack(client, d.Ref, map[string]any{"from_user_id": ev.FromUserID, "count": n})
		return nil

	case events.JoinMeeting:
		_, err := h.meetings.Join(ctx, ev.MeetingID, conn(client))
		return err

	case events.LeaveMeeting:
		if err := h.meetings.Leave(ctx, ev.MeetingID, conn(client)); err != nil {
			return err
		}
		ack(client, d.Ref, map[string]any{"meeting_id": ev.MeetingID})
		return nil

	case events.Signal:
		_, err := h.meetings.RelaySignal(conn(client), ev)
		return err

	case events.SessionControl:
		_, err := h.meetings.RelayControl(conn(client), ev)
		return err
	}
	return services.Validation("unsupported event %q", d.Type)
}

// connectedEvent describes the connection and the users online right now.
func connectedEvent(hub *ws.Hub, client *ws.Client) events.Outbound {
	return events.New(events.TypeConnected, map[string]any{
		"connection_id": client.ID,
		"user_id":       client.UserID,
		"role":          client.Role,
		"rooms":         hub.RoomsOf(client.ID),
		"online_users":  hub.OnlineUsers(),
	}).From(client.UserID)
}

// joinRoom admits the connection into a generic room or its own user
// room. Meeting rooms go through join_meeting.
func (h *EventHandler) joinRoom(client *ws.Client, room, ref string) error {
	if err := h.checkRoom(client, room); err != nil {
		return err
	}
	joined, err := h.hub.Join(room, client.ID)
	if err != nil {
		return err
	}
	if joined {
		h.hub.Broadcast(room, events.New(events.TypeRoomJoined, map[string]string{"connection_id": client.ID}).From(client.UserID), client.ID)
	}
	users := struct {
		Room  string      `json:"room"`
		Users []uuid.UUID `json:"users"`
	}{room, h.hub.RoomUsers(room)}
	return client.SendEvent(events.New(events.TypeRoomUsers, users).InRoom(room).WithRef(ref))
}

func (h *EventHandler) leaveRoom(client *ws.Client, room, ref string) error {
	if err := h.checkRoom(client, room); err != nil {
		return err
	}
	if room == ws.UserRoom(client.UserID) {
		return services.Validation("cannot leave your own user room")
	}
	if h.hub.Leave(room, client.ID) {
		h.hub.Broadcast(room, events.New(events.TypeRoomLeft, map[string]string{"connection_id": client.ID}).From(client.UserID), client.ID)
	}
	return client.SendEvent(events.New(events.TypeRoomLeft, map[string]string{"connection_id": client.ID}).From(client.UserID).InRoom(room).WithRef(ref))
}

func (h *EventHandler) checkRoom(client *ws.Client, room string) error {
	if ws.IsMeetingRoom(room) {
		return services.Forbidden("meeting rooms are joined with join_meeting")
	}
	if ws.IsUserRoom(room) && room != ws.UserRoom(client.UserID) {
		return services.Forbidden("cannot use another user's room")
	}
	return nil
}
