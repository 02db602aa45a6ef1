// Package meeting brokers live video sessions: lifecycle transitions,
// participant tracking and opaque relay of signaling and session-control
// events inside a meeting room.
package meeting

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/models"
	"github.com/thereayou/classroom-rtc/internal/services"
	"github.com/thereayou/classroom-rtc/internal/websocket"
)

// Rooms is the slice of the hub the broker needs.
type Rooms interface {
	Join(room, connID string) (bool, error)
	Leave(room, connID string) bool
	IsMember(room, connID string) bool
	MembersOf(room string) []string
	RoomUsers(room string) []uuid.UUID
	Broadcast(room string, ev events.Outbound, exclude string) int
	SendToUser(userID uuid.UUID, ev events.Outbound, exclude string) int
	SendTo(connID string, ev events.Outbound) error
}

// Conn identifies the connection acting on a meeting.
type Conn struct {
	ID     string
	UserID uuid.UUID
	Role   string
}

type Participant struct {
	MeetingID    uuid.UUID `json:"meeting_id"`
	UserID       uuid.UUID `json:"user_id"`
	Role         string    `json:"role,omitempty"`
	ConnectionID string    `json:"connection_id"`
}

type Roster struct {
	MeetingID uuid.UUID            `json:"meeting_id"`
	Status    models.MeetingStatus `json:"status"`
	Users     []uuid.UUID          `json:"users"`
}

const closeTimeout = 5 * time.Second

// Broker serializes joins and lifecycle transitions per meeting, so a
// connection never lands in the room of a meeting that has already ended.
type Broker struct {
	store services.MeetingStore
	rooms Rooms
	locks *meetingLocks
	now   func() time.Time
}

func NewBroker(store services.MeetingStore, rooms Rooms) *Broker {
	return &Broker{store: store, rooms: rooms, locks: newMeetingLocks(), now: time.Now}
}

// NewMeeting is a meeting request from its organizer.
type NewMeeting struct {
	Organizer   services.Identity
	InviteeID   uuid.UUID
	InviteeRole string
	Subject     string
	ScheduledAt time.Time
}

func (b *Broker) CreateMeeting(ctx context.Context, req NewMeeting) (*models.Meeting, error) {
	if req.InviteeID == uuid.Nil {
		return nil, services.Validation("invitee_id is required")
	}
	if req.InviteeID == req.Organizer.UserID {
		return nil, services.Validation("cannot invite yourself")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, services.Validation("subject is required")
	}
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = b.now()
	}

	m := &models.Meeting{
		OrganizerID:   req.Organizer.UserID,
		OrganizerRole: req.Organizer.Role,
		InviteeID:     req.InviteeID,
		InviteeRole:   req.InviteeRole,
		Subject:       subject,
		ScheduledAt:   req.ScheduledAt,
		Status:        models.MeetingScheduled,
	}
	if err := b.store.CreateMeeting(ctx, m); err != nil {
		return nil, err
	}
	log.Info().Str("module", "meeting").Str("meeting", m.ID.String()).Str("organizer", m.OrganizerID.String()).Msg("meeting created")
	return m, nil
}

// Get returns the meeting if the viewer is one of its parties.
func (b *Broker) Get(ctx context.Context, viewer, id uuid.UUID) (*models.Meeting, error) {
	m, err := b.store.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsParty(viewer) {
		return nil, services.Forbidden("not a party to this meeting")
	}
	return m, nil
}

func (b *Broker) Start(ctx context.Context, actor, id uuid.UUID) (*models.Meeting, error) {
	unlock := b.locks.lock(id)
	defer unlock()

	m, err := b.transition(ctx, actor, id, models.MeetingOngoing)
	if err != nil {
		return nil, err
	}
	b.notifyParties(m, events.TypeMeetingStarted, actor)
	return m, nil
}

// End finishes an ongoing meeting and empties its room.
func (b *Broker) End(ctx context.Context, actor, id uuid.UUID) (*models.Meeting, error) {
	unlock := b.locks.lock(id)
	defer unlock()

	m, err := b.transition(ctx, actor, id, models.MeetingEnded)
	if err != nil {
		return nil, err
	}
	b.notifyParties(m, events.TypeMeetingEnded, actor)
	b.evict(ctx, m.ID)
	return m, nil
}

func (b *Broker) Cancel(ctx context.Context, actor, id uuid.UUID) (*models.Meeting, error) {
	unlock := b.locks.lock(id)
	defer unlock()

	m, err := b.transition(ctx, actor, id, models.MeetingCancelled)
	if err != nil {
		return nil, err
	}
	b.notifyParties(m, events.TypeMeetingCancelled, actor)
	b.evict(ctx, m.ID)
	return m, nil
}

// transition applies one lifecycle step. Authority is checked before state,
// and the store write only succeeds if nobody moved the meeting meanwhile.
func (b *Broker) transition(ctx context.Context, actor, id uuid.UUID, to models.MeetingStatus) (*models.Meeting, error) {
	m, err := b.store.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OrganizerID != actor {
		return nil, services.Forbidden("only the organizer can change the meeting status")
	}
	if !m.Status.CanTransition(to) {
		return nil, services.InvalidState(string(m.Status), "meeting is %s, cannot move to %s", m.Status, to)
	}

	ok, err := b.store.TransitionMeeting(ctx, id, m.Status, to, b.now())
	if err != nil {
		return nil, err
	}
	current, err := b.store.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, services.InvalidState(string(current.Status), "meeting is %s, cannot move to %s", current.Status, to)
	}

	log.Info().Str("module", "meeting").Str("meeting", id.String()).Str("from", string(m.Status)).Str("to", string(to)).Msg("meeting status changed")
	return current, nil
}

// notifyParties reaches every connection of both parties. Meeting room
// members are always party connections, so nobody is missed.
func (b *Broker) notifyParties(m *models.Meeting, typ events.Type, actor uuid.UUID) {
	ev := events.New(typ, m).From(actor).InRoom(websocket.MeetingRoom(m.ID))
	b.rooms.SendToUser(m.OrganizerID, ev, "")
	b.rooms.SendToUser(m.InviteeID, ev, "")
}

func (b *Broker) evict(ctx context.Context, meetingID uuid.UUID) {
	room := websocket.MeetingRoom(meetingID)
	at := b.now()
	for _, connID := range b.rooms.MembersOf(room) {
		b.rooms.Leave(room, connID)
		if _, err := b.store.CloseParticipant(ctx, meetingID, connID, at); err != nil {
			log.Error().Err(err).Str("module", "meeting").Str("meeting", meetingID.String()).Str("conn", connID).Msg("close participant")
		}
	}
}

// Join admits a party connection into the meeting room. Joining again from
// the same connection only refreshes the roster.
func (b *Broker) Join(ctx context.Context, meetingID uuid.UUID, conn Conn) (*Roster, error) {
	unlock := b.locks.lock(meetingID)
	defer unlock()

	m, err := b.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !m.IsParty(conn.UserID) {
		return nil, services.Forbidden("not a party to this meeting")
	}
	if m.Status.Terminal() {
		return nil, services.InvalidState(string(m.Status), "meeting is %s", m.Status)
	}

	room := websocket.MeetingRoom(meetingID)
	joined, err := b.rooms.Join(room, conn.ID)
	if err != nil {
		return nil, err
	}

	if joined {
		p := &models.MeetingParticipant{
			MeetingID:    meetingID,
			UserID:       conn.UserID,
			Role:         conn.Role,
			ConnectionID: conn.ID,
			JoinedAt:     b.now(),
		}
		if err := b.store.AddParticipant(ctx, p); err != nil {
			b.rooms.Leave(room, conn.ID)
			return nil, err
		}

		ev := events.New(events.TypeParticipantJoined, Participant{
			MeetingID:    meetingID,
			UserID:       conn.UserID,
			Role:         conn.Role,
			ConnectionID: conn.ID,
		}).From(conn.UserID).Via(conn.ID)
		b.rooms.Broadcast(room, ev, conn.ID)
	}

	roster := &Roster{MeetingID: meetingID, Status: m.Status, Users: b.rooms.RoomUsers(room)}
	if err := b.rooms.SendTo(conn.ID, events.New(events.TypeMeetingParticipants, roster).InRoom(room)); err != nil {
		log.Debug().Err(err).Str("module", "meeting").Str("conn", conn.ID).Msg("roster dropped")
	}
	return roster, nil
}

// Leave takes the connection out of the meeting room. Leaving a meeting the
// connection is not in is a no-op.
func (b *Broker) Leave(ctx context.Context, meetingID uuid.UUID, conn Conn) error {
	room := websocket.MeetingRoom(meetingID)
	if !b.rooms.Leave(room, conn.ID) {
		return nil
	}
	b.participantLeft(ctx, meetingID, conn)
	return nil
}

// ConnectionClosed closes the participant records of a torn-down
// connection and tells the rooms it was in. rooms is what the hub removed
// it from; only meeting rooms matter here.
func (b *Broker) ConnectionClosed(conn Conn, rooms []string) {
	for _, name := range rooms {
		meetingID, ok := websocket.MeetingIDFromRoom(name)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		b.participantLeft(ctx, meetingID, conn)
		cancel()
	}
}

func (b *Broker) participantLeft(ctx context.Context, meetingID uuid.UUID, conn Conn) {
	if _, err := b.store.CloseParticipant(ctx, meetingID, conn.ID, b.now()); err != nil {
		log.Error().Err(err).Str("module", "meeting").Str("meeting", meetingID.String()).Str("conn", conn.ID).Msg("close participant")
	}

	ev := events.New(events.TypeParticipantLeft, Participant{
		MeetingID:    meetingID,
		UserID:       conn.UserID,
		Role:         conn.Role,
		ConnectionID: conn.ID,
	}).From(conn.UserID).Via(conn.ID)
	b.rooms.Broadcast(websocket.MeetingRoom(meetingID), ev, conn.ID)
}

// RelaySignal forwards an offer, answer or ICE candidate to the other
// members of the meeting room without looking at it.
func (b *Broker) RelaySignal(conn Conn, sig events.Signal) (int, error) {
	return b.relay(conn, sig.Type, sig.MeetingID, sig.Payload, false)
}

// RelayControl forwards a session-control event. Recording state changes
// are echoed to the sender too.
func (b *Broker) RelayControl(conn Conn, ctl events.SessionControl) (int, error) {
	return b.relay(conn, ctl.Type, ctl.MeetingID, ctl.Payload, events.IncludesSender(ctl.Type))
}

func (b *Broker) relay(conn Conn, typ events.Type, meetingID uuid.UUID, payload json.RawMessage, includeSender bool) (int, error) {
	if meetingID == uuid.Nil {
		return 0, services.Validation("%s requires meeting_id", typ)
	}
	room := websocket.MeetingRoom(meetingID)
	if !b.rooms.IsMember(room, conn.ID) {
		log.Warn().Str("module", "meeting").Str("conn", conn.ID).Str("meeting", meetingID.String()).Str("type", string(typ)).Msg("relay from non-member rejected")
		return 0, services.Forbidden("not in meeting %s", meetingID)
	}

	ev := events.New(typ, payload).From(conn.UserID).Via(conn.ID)
	if len(payload) == 0 {
		ev.Data = nil
	}
	exclude := conn.ID
	if includeSender {
		exclude = ""
	}
	return b.rooms.Broadcast(room, ev, exclude), nil
}
