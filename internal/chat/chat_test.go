package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/classroom-rtc/internal/database"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
	"github.com/thereayou/classroom-rtc/internal/websocket"
)

type fixture struct {
	db       *database.Database
	hub      *websocket.Hub
	chat     *Service
	receipts *Receipts
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	hub := websocket.NewHub()
	return &fixture{
		db:       db,
		hub:      hub,
		chat:     NewService(db, db, hub, Options{PreviewLength: 10}),
		receipts: NewReceipts(db, hub),
	}
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := &models.User{Username: name}
	require.NoError(t, f.db.SaveUser(context.Background(), u))
	return u.ID
}

func (f *fixture) connect(userID uuid.UUID) *websocket.Client {
	c := websocket.NewClient(f.hub, nil, userID, "student", websocket.Options{SendBuffer: 64})
	f.hub.Register(c)
	return c
}

// frames drains the client and returns the frames of the given type,
// ignoring presence noise.
func frames(t *testing.T, c *websocket.Client, typ events.Type) []events.Received {
	t.Helper()
	var out []events.Received
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			r, err := events.Parse(raw)
			require.NoError(t, err)
			if r.Type == typ {
				out = append(out, r)
			}
		default:
			return out
		}
	}
}

func text(from, to uuid.UUID, content string) Draft {
	return Draft{SenderID: from, ReceiverID: to, Kind: models.KindText, Content: content}
}

func TestSend_OfflineReceiverDeliveredOnHistoryRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	aliceConn := f.connect(alice)

	msg, err := f.chat.Send(ctx, text(alice, bob, "are you there?"), aliceConn.ID)
	require.NoError(t, err)
	assert.False(t, msg.Delivered)
	assert.False(t, msg.Seen)
	assert.Equal(t, models.ConversationKey(alice, bob), msg.ConversationKey)

	stored, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Delivered)

	history, err := f.chat.ListMessages(ctx, bob, alice, 0, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Delivered)
	assert.NotNil(t, history[0].DeliveredAt)
	assert.False(t, history[0].Seen)

	notices := frames(t, aliceConn, events.TypeMessagesDelivered)
	require.Len(t, notices, 1)
	var notice DeliveredNotice
	require.NoError(t, json.Unmarshal(notices[0].Data, &notice))
	assert.Equal(t, bob, notice.By)
	assert.EqualValues(t, 1, notice.Count)

	// a second read marks nothing and stays quiet
	_, err = f.chat.ListMessages(ctx, bob, alice, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, frames(t, aliceConn, events.TypeMessagesDelivered))
}

func TestSend_OnlineReceiverGetsMessageAndNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	aliceDesktop, alicePhone := f.connect(alice), f.connect(alice)
	bobConn := f.connect(bob)

	msg, err := f.chat.Send(ctx, text(alice, bob, "the lab starts at nine"), aliceDesktop.ID)
	require.NoError(t, err)
	assert.True(t, msg.Delivered)
	require.NotNil(t, msg.DeliveredAt)

	got := frames(t, bobConn, events.TypeReceiveMessage)
	require.Len(t, got, 1)
	var relayed models.Message
	require.NoError(t, json.Unmarshal(got[0].Data, &relayed))
	assert.Equal(t, msg.ID, relayed.ID)
	assert.Equal(t, "the lab starts at nine", relayed.Content)

	// frames drained the notification above, resend to inspect it
	_, err = f.chat.Send(ctx, text(alice, bob, "the lab starts at nine"), aliceDesktop.ID)
	require.NoError(t, err)
	notes := frames(t, bobConn, events.TypeNewMessageNotice)
	require.Len(t, notes, 1)
	var note Notification
	require.NoError(t, json.Unmarshal(notes[0].Data, &note))
	assert.Equal(t, "alice", note.SenderName)
	assert.Equal(t, "the lab st...", note.Preview)

	assert.Empty(t, frames(t, aliceDesktop, events.TypeMessageSent), "origin gets the ack, not the echo")
	assert.Len(t, frames(t, alicePhone, events.TypeMessageSent), 2)

	stored, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
}

func TestSend_Validation(t *testing.T) {
	f := setup(t)
	alice, bob := uuid.New(), uuid.New()

	cases := map[string]Draft{
		"empty text":        text(alice, bob, "   "),
		"no receiver":       {SenderID: alice, Kind: models.KindText, Content: "hi"},
		"to self":           text(alice, alice, "hi"),
		"file without url":  {SenderID: alice, ReceiverID: bob, Kind: models.KindFile, FileName: "notes.pdf"},
		"voice without url": {SenderID: alice, ReceiverID: bob, Kind: models.KindVoice},
		"empty meeting":     {SenderID: alice, ReceiverID: bob, Kind: models.KindMeeting},
		"unknown kind":      {SenderID: alice, ReceiverID: bob, Kind: "sticker", Content: "x"},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.chat.Send(context.Background(), d, "")
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}

	history, err := f.db.ConversationMessages(context.Background(), alice, bob, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected drafts are never persisted")
}

func TestSend_FileAndMeetingKinds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	msg, err := f.chat.Send(ctx, Draft{SenderID: alice, ReceiverID: bob, Kind: models.KindFile, FileURL: "https://files/1", FileName: "notes.pdf"}, "")
	require.NoError(t, err)
	assert.Equal(t, "[file] notes.pdf", f.chat.preview(msg))

	meetingID := uuid.New()
	msg, err = f.chat.Send(ctx, Draft{SenderID: alice, ReceiverID: bob, Kind: models.KindMeeting, MeetingID: &meetingID}, "")
	require.NoError(t, err)
	assert.Equal(t, "[meeting invitation]", f.chat.preview(msg))

	msg, err = f.chat.Send(ctx, Draft{SenderID: alice, ReceiverID: bob, Content: "default kind"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.KindText, msg.Kind)
}

func TestListMessages_RejectsSelf(t *testing.T) {
	f := setup(t)
	u := uuid.New()
	_, err := f.chat.ListMessages(context.Background(), u, u, 10, nil)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestReceipts_MarkSeen(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	aliceConn := f.connect(alice)

	msg, err := f.chat.Send(ctx, text(alice, bob, "read me"), aliceConn.ID)
	require.NoError(t, err)

	_, err = f.receipts.MarkSeen(ctx, alice, msg.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = f.receipts.MarkSeen(ctx, bob, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)

	seen, err := f.receipts.MarkSeen(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, seen.Seen)
	assert.True(t, seen.Delivered)

	notices := frames(t, aliceConn, events.TypeMessageSeen)
	require.Len(t, notices, 1)
	var notice SeenNotice
	require.NoError(t, json.Unmarshal(notices[0].Data, &notice))
	assert.Equal(t, msg.ID, notice.MessageID)
	assert.Equal(t, bob, notice.SeenBy)

	again, err := f.receipts.MarkSeen(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.Seen)
	assert.Empty(t, frames(t, aliceConn, events.TypeMessageSeen), "re-marking is a no-op")
}

func TestReceipts_MarkAllSeenIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	aliceConn := f.connect(alice)

	for i := 0; i < 4; i++ {
		_, err := f.chat.Send(ctx, text(alice, bob, "backlog"), "")
		require.NoError(t, err)
	}
	frames(t, aliceConn, events.TypeMessagesSeen)

	n, err := f.receipts.MarkAllSeen(ctx, bob, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	n, err = f.receipts.MarkAllSeen(ctx, bob, alice)
	require.NoError(t, err)
	assert.Zero(t, n)

	notices := frames(t, aliceConn, events.TypeMessagesSeen)
	require.Len(t, notices, 1, "one aggregate event, none for the empty second call")
	var notice SeenAllNotice
	require.NoError(t, json.Unmarshal(notices[0].Data, &notice))
	assert.EqualValues(t, 4, notice.Count)

	counts, err := f.chat.UnreadCounts(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestReceipts_SeenImpliesDeliveredUnderInterleaving(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 20; i++ {
		msg, err := f.chat.Send(ctx, text(alice, bob, strings.Repeat("x", i+1)), "")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = f.receipts.MarkSeen(ctx, bob, id)
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.receipts.MarkAllSeen(ctx, bob, alice)
	}()
	wg.Wait()

	history, err := f.db.ConversationMessages(ctx, alice, bob, 50, nil)
	require.NoError(t, err)
	require.Len(t, history, 20)
	for _, m := range history {
		assert.True(t, m.Seen)
		assert.True(t, m.Delivered, "seen implies delivered")
		assert.NotNil(t, m.DeliveredAt)
		assert.NotNil(t, m.SeenAt)
	}
}
