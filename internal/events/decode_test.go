package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/classroom-rtc/internal/services"
)

func TestDecode_SendMessage(t *testing.T) {
	receiver := uuid.New()
	raw := []byte(`{"type":"send_message","ref":"c-1","data":{"receiver_id":"` + receiver.String() + `","kind":"text","content":"hi"}}`)

	d, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeSendMessage, d.Type)
	assert.Equal(t, "c-1", d.Ref)

	ev, ok := d.Event.(SendMessage)
	require.True(t, ok)
	assert.Equal(t, receiver, ev.ReceiverID)
	assert.Equal(t, "hi", ev.Content)
}

func TestDecode_RefDefaultsToType(t *testing.T) {
	d, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", d.Ref)
	assert.IsType(t, Ping{}, d.Event)
}

func TestDecode_SignalKeepsPayloadOpaque(t *testing.T) {
	meeting := uuid.New()
	raw := []byte(`{"type":"webrtc_offer","meeting_id":"` + meeting.String() + `","data":{"sdp":"v=0 ...","weird":[1,2]}}`)

	d, err := Decode(raw)
	require.NoError(t, err)

	ev, ok := d.Event.(Signal)
	require.True(t, ok)
	assert.Equal(t, TypeWebRTCOffer, ev.EventType())
	assert.Equal(t, meeting, ev.MeetingID)
	assert.JSONEq(t, `{"sdp":"v=0 ...","weird":[1,2]}`, string(ev.Payload))
}

func TestDecode_MeetingIDFromData(t *testing.T) {
	meeting := uuid.New()
	raw := []byte(`{"type":"raise_hand","data":{"meeting_id":"` + meeting.String() + `"}}`)

	d, err := Decode(raw)
	require.NoError(t, err)
	ev, ok := d.Event.(SessionControl)
	require.True(t, ok)
	assert.Equal(t, meeting, ev.MeetingID)
}

func TestDecode_Rejections(t *testing.T) {
	cases := map[string]string{
		"malformed":             `{"type":`,
		"missing type":          `{}`,
		"unknown type":          `{"type":"teleport"}`,
		"join without room":     `{"type":"join_room"}`,
		"send without data":     `{"type":"send_message"}`,
		"send without target":   `{"type":"send_message","data":{"content":"x"}}`,
		"seen without id":       `{"type":"mark_seen","data":{}}`,
		"signal no meeting":     `{"type":"webrtc_answer","data":{"sdp":"x"}}`,
		"control bad meeting":   `{"type":"toggle_audio","meeting_id":"nope"}`,
		"all seen without from": `{"type":"mark_all_seen","data":{}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestIncludesSender(t *testing.T) {
	assert.True(t, IncludesSender(TypeRecordingStarted))
	assert.True(t, IncludesSender(TypeRecordingStopped))
	assert.False(t, IncludesSender(TypeRaiseHand))
	assert.False(t, IncludesSender(TypeWebRTCOffer))
}

func TestOutbound_EncodeRoundTrip(t *testing.T) {
	user := uuid.New()
	out := New(TypeMessageSeen, map[string]string{"message_id": "m1"}).From(user).InRoom("user:x").WithRef("r")

	raw, err := out.Encode()
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeMessageSeen, got.Type)
	assert.Equal(t, "user:x", got.RoomID)
	assert.Equal(t, "r", got.Ref)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user, *got.UserID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "m1", data["message_id"])
}
