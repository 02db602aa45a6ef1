package events

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/services"
)

// Frame is the inbound wire envelope.
type Frame struct {
	Type      Type            `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	MeetingID string          `json:"meeting_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Ref       string          `json:"ref,omitempty"`
}

// Event is one of the inbound variants below.
type Event interface {
	EventType() Type
}

type UserOnline struct{}

type Ping struct{}

type JoinRoom struct {
	Room string
}

type LeaveRoom struct {
	Room string
}

type SendMessage struct {
	ReceiverID      uuid.UUID  `json:"receiver_id"`
	ReceiverRole    string     `json:"receiver_role"`
	ConversationKey string     `json:"conversation_key"`
	Kind            string     `json:"kind"`
	Content         string     `json:"content"`
	FileURL         string     `json:"file_url"`
	FileName        string     `json:"file_name"`
	MeetingID       *uuid.UUID `json:"meeting_id"`
}

type MarkSeen struct {
	MessageID uuid.UUID `json:"message_id"`
}

type MarkAllSeen struct {
	FromUserID uuid.UUID `json:"from_user_id"`
}

type JoinMeeting struct {
	MeetingID uuid.UUID
}

type LeaveMeeting struct {
	MeetingID uuid.UUID
}

// Signal is an opaque WebRTC negotiation payload scoped to a meeting room.
type Signal struct {
	Type      Type
	MeetingID uuid.UUID
	Payload   json.RawMessage
}

// SessionControl is an opaque meeting UI-state event.
type SessionControl struct {
	Type      Type
	MeetingID uuid.UUID
	Payload   json.RawMessage
}

func (UserOnline) EventType() Type { return TypeUserOnline }
func (Ping) EventType() Type { return TypePing }
func (JoinRoom) EventType() Type { return TypeJoinRoom }
func (LeaveRoom) EventType() Type { return TypeLeaveRoom }
func (SendMessage) EventType() Type { return TypeSendMessage }
func (MarkSeen) EventType() Type { return TypeMarkSeen }
func (MarkAllSeen) EventType() Type { return TypeMarkAllSeen }
func (JoinMeeting) EventType() Type { return TypeJoinMeeting }
func (LeaveMeeting) EventType() Type { return TypeLeaveMeeting }
func (e Signal) EventType() Type { return e.Type }
func (e SessionControl) EventType() Type { return e.Type }

// Decoded is the result of decoding one inbound frame. Type and Ref are
// set whenever the envelope itself parsed, even if the event did not.
type Decoded struct {
	Type  Type
	Ref   string
	Event Event
}

// Decode parses a raw frame into its typed variant. Malformed frames and
// missing required fields are validation errors.
func Decode(raw []byte) (Decoded, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Decoded{}, services.Validation("malformed frame")
	}
	d := Decoded{Type: f.Type, Ref: f.Ref}
	if d.Ref == "" {
		d.Ref = string(f.Type)
	}

	ev, err := decodeEvent(f)
	if err != nil {
		return d, err
	}
	d.Event = ev
	return d, nil
}

func decodeEvent(f Frame) (Event, error) {
	switch {
	case f.Type == TypeUserOnline:
		return UserOnline{}, nil
	case f.Type == TypePing:
		return Ping{}, nil
	case f.Type == TypeJoinRoom, f.Type == TypeLeaveRoom:
		room := strings.TrimSpace(f.RoomID)
		if room == "" {
			room = strings.TrimSpace(stringField(f.Data, "room_id"))
		}
		if room == "" {
			return nil, services.Validation("%s requires room_id", f.Type)
		}
		if f.Type == TypeJoinRoom {
			return JoinRoom{Room: room}, nil
		}
		return LeaveRoom{Room: room}, nil
	case f.Type == TypeSendMessage:
		var ev SendMessage
		if err := unmarshalData(f, &ev); err != nil {
			return nil, err
		}
		if ev.ReceiverID == uuid.Nil {
			return nil, services.Validation("send_message requires receiver_id")
		}
		return ev, nil
	case f.Type == TypeMarkSeen:
		var ev MarkSeen
		if err := unmarshalData(f, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == uuid.Nil {
			return nil, services.Validation("mark_seen requires message_id")
		}
		return ev, nil
	case f.Type == TypeMarkAllSeen:
		var ev MarkAllSeen
		if err := unmarshalData(f, &ev); err != nil {
			return nil, err
		}
		if ev.FromUserID == uuid.Nil {
			return nil, services.Validation("mark_all_seen requires from_user_id")
		}
		return ev, nil
	case f.Type == TypeJoinMeeting, f.Type == TypeLeaveMeeting:
		id, err := meetingID(f)
		if err != nil {
			return nil, err
		}
		if f.Type == TypeJoinMeeting {
			return JoinMeeting{MeetingID: id}, nil
		}
		return LeaveMeeting{MeetingID: id}, nil
	case IsSignal(f.Type):
		id, err := meetingID(f)
		if err != nil {
			return nil, err
		}
		return Signal{Type: f.Type, MeetingID: id, Payload: f.Data}, nil
	case IsSessionControl(f.Type):
		id, err := meetingID(f)
		if err != nil {
			return nil, err
		}
		return SessionControl{Type: f.Type, MeetingID: id, Payload: f.Data}, nil
	case f.Type == "":
		return nil, services.Validation("missing event type")
	}
	return nil, services.Validation("unknown event type %q", f.Type)
}

func unmarshalData(f Frame, dst any) error {
	if len(f.Data) == 0 {
		return services.Validation("%s requires data", f.Type)
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return services.Validation("invalid %s data", f.Type)
	}
	return nil
}

// meetingID reads the meeting identifier from the envelope, falling back
// to data.meeting_id.
func meetingID(f Frame) (uuid.UUID, error) {
	raw := strings.TrimSpace(f.MeetingID)
	if raw == "" {
		raw = strings.TrimSpace(stringField(f.Data, "meeting_id"))
	}
	if raw == "" {
		return uuid.Nil, services.Validation("%s requires meeting_id", f.Type)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, services.Validation("invalid meeting_id")
	}
	return id, nil
}

func stringField(data json.RawMessage, key string) string {
	if len(data) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(m[key], &s); err != nil {
		return ""
	}
	return s
}
