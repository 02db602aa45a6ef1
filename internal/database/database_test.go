package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func saveText(t *testing.T, db *Database, from, to uuid.UUID, content string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		ConversationKey: models.ConversationKey(from, to),
		SenderID:        from,
		ReceiverID:      to,
		Kind:            models.KindText,
		Content:         content,
		CreatedAt:       at,
	}
	require.NoError(t, db.SaveMessage(context.Background(), msg))
	return msg
}

func TestDatabase_GetMessageNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetMessage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDatabase_ConversationMessagesPaging(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	base := time.Now().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		from, to := alice, bob
		if i%2 == 1 {
			from, to = bob, alice
		}
		ids = append(ids, saveText(t, db, from, to, "m", base.Add(time.Duration(i)*time.Minute)).ID)
	}
	saveText(t, db, alice, carol, "elsewhere", base)

	all, err := db.ConversationMessages(ctx, bob, alice, 50, nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID, "oldest first")
	}

	latest, err := db.ConversationMessages(ctx, alice, bob, 2, nil)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, ids[3], latest[0].ID)
	assert.Equal(t, ids[4], latest[1].ID)

	older, err := db.ConversationMessages(ctx, alice, bob, 2, &ids[3])
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, ids[1], older[0].ID)
	assert.Equal(t, ids[2], older[1].ID)

	missing := uuid.New()
	_, err = db.ConversationMessages(ctx, alice, bob, 2, &missing)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDatabase_ConversationMessagesPagingSameTimestamp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	at := time.Now().Add(-time.Minute)
	want := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		want[saveText(t, db, alice, bob, "burst", at).ID] = true
	}

	got := map[uuid.UUID]bool{}
	var before *uuid.UUID
	for page := 0; page < 5; page++ {
		msgs, err := db.ConversationMessages(ctx, bob, alice, 2, before)
		require.NoError(t, err)
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			assert.False(t, got[m.ID], "message %s returned twice", m.ID)
			got[m.ID] = true
		}
		oldest := msgs[0].ID
		before = &oldest
	}
	assert.Equal(t, want, got)
}

func TestDatabase_MarkDeliveredOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	msg := saveText(t, db, uuid.New(), uuid.New(), "hi", time.Now())

	first := time.Now().Add(-time.Minute).UTC()
	ok, err := db.MarkDelivered(ctx, msg.ID, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkDelivered(ctx, msg.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	require.NotNil(t, got.DeliveredAt)
	assert.WithinDuration(t, first, *got.DeliveredAt, time.Millisecond)
}

func TestDatabase_SeenImpliesDelivered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	fresh := saveText(t, db, alice, bob, "never delivered", time.Now())
	early := saveText(t, db, alice, bob, "delivered earlier", time.Now())

	deliveredAt := time.Now().Add(-time.Hour).UTC()
	_, err := db.MarkDelivered(ctx, early.ID, deliveredAt)
	require.NoError(t, err)

	seenAt := time.Now().UTC()
	for _, id := range []uuid.UUID{fresh.ID, early.ID} {
		ok, err := db.MarkSeen(ctx, id, seenAt)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, err := db.GetMessage(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Seen)
	assert.True(t, got.Delivered)
	require.NotNil(t, got.DeliveredAt)
	assert.WithinDuration(t, seenAt, *got.DeliveredAt, time.Millisecond)

	got, err = db.GetMessage(ctx, early.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.WithinDuration(t, deliveredAt, *got.DeliveredAt, time.Millisecond, "delivered_at is never overwritten")

	ok, err := db.MarkSeen(ctx, fresh.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDatabase_MarkAllSeenAndUnreadCounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		saveText(t, db, alice, bob, "from alice", time.Now())
	}
	saveText(t, db, carol, bob, "from carol", time.Now())
	saveText(t, db, bob, alice, "reply", time.Now())

	counts, err := db.UnreadCounts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{alice: 3, carol: 1}, counts)

	n, err := db.MarkAllSeen(ctx, alice, bob, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = db.MarkAllSeen(ctx, alice, bob, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	counts, err = db.UnreadCounts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{carol: 1}, counts)

	history, err := db.ConversationMessages(ctx, alice, bob, 10, nil)
	require.NoError(t, err)
	for _, m := range history {
		if m.SenderID == alice {
			assert.True(t, m.Seen && m.Delivered)
		} else {
			assert.False(t, m.Seen, "the reply was sent the other way")
		}
	}
}

func TestDatabase_MarkConversationDelivered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	saveText(t, db, alice, bob, "one", time.Now())
	saveText(t, db, alice, bob, "two", time.Now())
	saveText(t, db, bob, alice, "back", time.Now())

	n, err := db.MarkConversationDelivered(ctx, alice, bob, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = db.MarkConversationDelivered(ctx, alice, bob, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDatabase_MeetingTransitionsAreCompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	meeting := &models.Meeting{
		OrganizerID: uuid.New(),
		InviteeID:   uuid.New(),
		Subject:     "Thesis review",
		ScheduledAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.CreateMeeting(ctx, meeting))
	assert.Equal(t, models.MeetingScheduled, meeting.Status)

	ok, err := db.TransitionMeeting(ctx, meeting.ID, models.MeetingScheduled, models.MeetingOngoing, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TransitionMeeting(ctx, meeting.ID, models.MeetingScheduled, models.MeetingCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "lost race")

	got, err := db.GetMeeting(ctx, meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingOngoing, got.Status)
	assert.NotNil(t, got.StartTime)
	assert.Nil(t, got.EndTime)

	_, err = db.GetMeeting(ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDatabase_ParticipantRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	meeting := &models.Meeting{OrganizerID: uuid.New(), InviteeID: uuid.New(), Subject: "Lab"}
	require.NoError(t, db.CreateMeeting(ctx, meeting))

	p := &models.MeetingParticipant{
		MeetingID:    meeting.ID,
		UserID:       meeting.OrganizerID,
		ConnectionID: "conn-1",
		JoinedAt:     time.Now(),
	}
	require.NoError(t, db.AddParticipant(ctx, p))

	n, err := db.CloseParticipant(ctx, meeting.ID, "conn-1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = db.CloseParticipant(ctx, meeting.ID, "conn-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "already closed")

	got, err := db.GetMeeting(ctx, meeting.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.NotNil(t, got.Participants[0].LeftAt)
}

func TestDatabase_UpdateLastSeenMonotonic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Username: "mira"}
	require.NoError(t, db.SaveUser(ctx, user))

	later := time.Now().UTC()
	require.NoError(t, db.UpdateLastSeen(ctx, user.ID, later))
	require.NoError(t, db.UpdateLastSeen(ctx, user.ID, later.Add(-time.Hour)))

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastSeenAt, time.Millisecond)
	assert.Equal(t, "student", got.Role)

	_, err = db.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}
