package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names an event on the wire.
type Type string

// Inbound (client -> coordinator).
const (
	TypeUserOnline  Type = "user_online"
	TypePing        Type = "ping"
	TypeJoinRoom    Type = "join_room"
	TypeLeaveRoom   Type = "leave_room"
	TypeSendMessage Type = "send_message"
	TypeMarkSeen    Type = "mark_seen"
	TypeMarkAllSeen Type = "mark_all_seen"

	TypeJoinMeeting  Type = "join_meeting"
	TypeLeaveMeeting Type = "leave_meeting"

	TypeWebRTCOffer        Type = "webrtc_offer"
	TypeWebRTCAnswer       Type = "webrtc_answer"
	TypeWebRTCIceCandidate Type = "webrtc_ice_candidate"

	TypeToggleVideo        Type = "toggle_video"
	TypeToggleAudio        Type = "toggle_audio"
	TypeStartScreenShare   Type = "start_screen_share"
	TypeStopScreenShare    Type = "stop_screen_share"
	TypeRecordingStarted   Type = "recording_started"
	TypeRecordingStopped   Type = "recording_stopped"
	TypeRaiseHand          Type = "raise_hand"
	TypeLowerHand          Type = "lower_hand"
	TypeLectureChatMessage Type = "lecture_chat_message"
)

// Outbound (coordinator -> client).
const (
	TypeConnected           Type = "connected"
	TypePong                Type = "pong"
	TypeError               Type = "error"
	TypeAck                 Type = "ack"
	TypeRoomJoined          Type = "room_joined"
	TypeRoomLeft            Type = "room_left"
	TypeRoomUsers           Type = "room_users"
	TypeUserStatusChanged   Type = "user_status_changed"
	TypeReceiveMessage      Type = "receive_message"
	TypeMessageSent         Type = "message_sent"
	TypeNewMessageNotice    Type = "new_message_notification"
	TypeMessagesDelivered   Type = "messages_delivered"
	TypeMessageSeen         Type = "message_seen"
	TypeMessagesSeen        Type = "messages_seen"
	TypeParticipantJoined   Type = "participant_joined"
	TypeParticipantLeft     Type = "participant_left"
	TypeMeetingParticipants Type = "meeting_participants"
	TypeMeetingStarted      Type = "meeting_started"
	TypeMeetingEnded        Type = "meeting_ended"
	TypeMeetingCancelled    Type = "meeting_cancelled"
)

var signalTypes = map[Type]bool{
	TypeWebRTCOffer:        true,
	TypeWebRTCAnswer:       true,
	TypeWebRTCIceCandidate: true,
}

var controlTypes = map[Type]bool{
	TypeToggleVideo:        true,
	TypeToggleAudio:        true,
	TypeStartScreenShare:   true,
	TypeStopScreenShare:    true,
	TypeRecordingStarted:   true,
	TypeRecordingStopped:   true,
	TypeRaiseHand:          true,
	TypeLowerHand:          true,
	TypeLectureChatMessage: true,
}

func IsSignal(t Type) bool { return signalTypes[t] }

func IsSessionControl(t Type) bool { return controlTypes[t] }

// IncludesSender reports whether a session-control event is echoed back to
// its sender. Every party must agree on recording state.
func IncludesSender(t Type) bool {
	return t == TypeRecordingStarted || t == TypeRecordingStopped
}

// Outbound is a frame sent to clients. Data is encoded once per broadcast.
type Outbound struct {
	Type         Type       `json:"type"`
	RoomID       string     `json:"room_id,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	ConnectionID string     `json:"connection_id,omitempty"`
	Ref          string     `json:"ref,omitempty"`
	Data         any        `json:"data,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

func New(t Type, data any) Outbound {
	return Outbound{Type: t, Data: data, Timestamp: time.Now()}
}

func (o Outbound) From(userID uuid.UUID) Outbound {
	o.UserID = &userID
	return o
}

// Via names the sending connection, so peers can address it directly.
func (o Outbound) Via(connID string) Outbound {
	o.ConnectionID = connID
	return o
}

func (o Outbound) InRoom(room string) Outbound {
	o.RoomID = room
	return o
}

func (o Outbound) WithRef(ref string) Outbound {
	o.Ref = ref
	return o
}

func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// Received is the client-side view of an Outbound frame.
type Received struct {
	Type         Type            `json:"type"`
	RoomID       string          `json:"room_id,omitempty"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Ref          string          `json:"ref,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func Parse(raw []byte) (Received, error) {
	var r Received
	err := json.Unmarshal(raw, &r)
	return r, err
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	State string `json:"state,omitempty"`
}
