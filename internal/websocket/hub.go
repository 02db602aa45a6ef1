package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
)

// DisconnectHook runs after a connection has been torn down, with the
// rooms it was in at that moment.
type DisconnectHook func(c *Client, rooms []string)

// Hub owns the connection registry and room membership. All registry and
// membership mutation happens under mu, so teardown of a connection is a
// single step. Broadcasts into one room are serialized by that room's lock.
type Hub struct {
	clients map[string]*Client

	// one user may hold several connections
	userClients map[uuid.UUID]map[string]*Client

	rooms map[string]*room

	observers []PresenceObserver
	hooks     []DisconnectHook
	presence  chan PresenceChange

	mu   sync.RWMutex
	done chan struct{}
}

type room struct {
	mu      sync.Mutex
	members map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[uuid.UUID]map[string]*Client),
		rooms:       make(map[string]*room),
		presence:    make(chan PresenceChange, presenceQueueSize),
		done:        make(chan struct{}),
	}
}

// Run feeds presence observers until ctx is cancelled, then closes every
// connection and flushes the remaining transitions.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			h.drainPresence()
			log.Info().Str("module", "websocket.hub").Int("closed", n).Msg("hub stopped")
			return

		case change := <-h.presence:
			h.notifyObservers(change)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) OnDisconnect(fn DisconnectHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Register binds the connection to its user and joins it to the user's
// room. Registering the same client twice is a no-op; a different client
// with the same ID replaces the old one.
func (h *Hub) Register(client *Client) {
	now := time.Now()

	h.mu.Lock()
	prev, exists := h.clients[client.ID]
	if exists && prev == client {
		h.mu.Unlock()
		return
	}
	var prevRooms []string
	if exists {
		prevRooms = h.teardownLocked(prev, now)
	}

	h.clients[client.ID] = client
	set, ok := h.userClients[client.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.userClients[client.UserID] = set
	}
	set[client.ID] = client
	h.joinLocked(UserRoom(client.UserID), client)

	if !ok {
		h.announcePresenceLocked(client.UserID, StatusOnline, now)
	}
	hooks := h.hooks
	h.mu.Unlock()

	log.Info().Str("module", "websocket.hub").Str("conn", client.ID).Str("user", client.UserID.String()).Msg("client registered")

	if exists {
		for _, fn := range hooks {
			fn(prev, prevRooms)
		}
	}
}

// Unregister tears the connection down: it leaves every room, drops out of
// the registry and, if it was the user's last connection, the user goes
// offline. Returns the rooms the connection was in.
func (h *Hub) Unregister(client *Client) []string {
	h.mu.Lock()
	if cur, ok := h.clients[client.ID]; !ok || cur != client {
		h.mu.Unlock()
		return nil
	}
	rooms := h.teardownLocked(client, time.Now())
	hooks := h.hooks
	h.mu.Unlock()

	log.Info().Str("module", "websocket.hub").Str("conn", client.ID).Str("user", client.UserID.String()).Strs("rooms", rooms).Msg("client unregistered")

	for _, fn := range hooks {
		fn(client, rooms)
	}
	return rooms
}

func (h *Hub) teardownLocked(client *Client, at time.Time) []string {
	rooms := make([]string, 0, len(client.rooms))
	for name := range client.rooms {
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)

	for _, name := range rooms {
		remaining := h.leaveLocked(name, client)
		// meeting rooms are announced by the disconnect hooks
		if remaining == nil || IsUserRoom(name) || IsMeetingRoom(name) {
			continue
		}
		left := events.New(events.TypeRoomLeft, map[string]string{"connection_id": client.ID}).From(client.UserID).InRoom(name)
		if data, err := left.Encode(); err == nil {
			h.sendRoomLocked(remaining, data, client.ID)
		}
	}

	delete(h.clients, client.ID)
	if set, ok := h.userClients[client.UserID]; ok {
		delete(set, client.ID)
		if len(set) == 0 {
			delete(h.userClients, client.UserID)
			h.announcePresenceLocked(client.UserID, StatusOffline, at)
		}
	}

	client.close()
	return rooms
}

// Join adds the connection to a room, creating the room if needed.
// Reports whether the connection was newly added.
func (h *Hub) Join(roomName, connID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return false, ErrConnectionNotFound
	}
	return h.joinLocked(roomName, client), nil
}

// Leave removes the connection from a room. Leaving a room the connection
// is not in is a no-op.
func (h *Hub) Leave(roomName, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	_, wasMember := client.rooms[roomName]
	h.leaveLocked(roomName, client)
	return wasMember
}

func (h *Hub) joinLocked(roomName string, client *Client) bool {
	r, ok := h.rooms[roomName]
	if !ok {
		r = &room{members: make(map[string]*Client)}
		h.rooms[roomName] = r
	}
	if _, ok := r.members[client.ID]; ok {
		return false
	}
	r.members[client.ID] = client
	client.rooms[roomName] = struct{}{}
	return true
}

// leaveLocked returns the room if members remain, nil if it was pruned or
// never existed.
func (h *Hub) leaveLocked(roomName string, client *Client) *room {
	delete(client.rooms, roomName)
	r, ok := h.rooms[roomName]
	if !ok {
		return nil
	}
	delete(r.members, client.ID)
	if len(r.members) == 0 {
		delete(h.rooms, roomName)
		return nil
	}
	return r
}

// Broadcast delivers ev to every member of the room except exclude and
// returns how many connections accepted it. Dead or saturated members are
// skipped; they surface later as disconnects.
func (h *Hub) Broadcast(roomName string, ev events.Outbound, exclude string) int {
	if ev.RoomID == "" {
		ev.RoomID = roomName
	}
	data, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "websocket.hub").Str("room", roomName).Msg("encode broadcast")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomName]
	if !ok {
		return 0
	}
	return h.sendRoomLocked(r, data, exclude)
}

func (h *Hub) sendRoomLocked(r *room, data []byte, exclude string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for id, client := range r.members {
		if id == exclude {
			continue
		}
		if err := client.TrySend(data); err != nil {
			log.Debug().Err(err).Str("module", "websocket.hub").Str("conn", id).Msg("broadcast skipped member")
			continue
		}
		sent++
	}
	return sent
}

// SendToUser broadcasts into the user's own room.
func (h *Hub) SendToUser(userID uuid.UUID, ev events.Outbound, exclude string) int {
	return h.Broadcast(UserRoom(userID), ev, exclude)
}

// SendTo delivers ev to a single connection.
func (h *Hub) SendTo(connID string, ev events.Outbound) error {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return client.SendEvent(ev)
}

// DisconnectUser tears down every connection of the user.
func (h *Hub) DisconnectUser(userID uuid.UUID) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.userClients[userID]))
	for _, c := range h.userClients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	return len(clients)
}

func (h *Hub) closeAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	return len(clients)
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// ConnectionsFor returns the user's live connection IDs, sorted.
func (h *Hub) ConnectionsFor(userID uuid.UUID) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.userClients[userID]))
	for id := range h.userClients[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastActivity returns the most recent inbound activity across the user's
// live connections.
func (h *Hub) LastActivity(userID uuid.UUID) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var latest time.Time
	for _, c := range h.userClients[userID] {
		if at := c.LastActivity(); at.After(latest) {
			latest = at
		}
	}
	return latest, !latest.IsZero()
}

// MembersOf returns the connection IDs in a room, sorted. Unknown rooms
// are empty.
func (h *Hub) MembersOf(roomName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomName]
	if !ok {
		return []string{}
	}
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) IsMember(roomName, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomName]
	if !ok {
		return false
	}
	_, ok = r.members[connID]
	return ok
}

// RoomsOf returns the rooms a connection is in, sorted.
func (h *Hub) RoomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return []string{}
	}
	rooms := make([]string, 0, len(client.rooms))
	for name := range client.rooms {
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomUsers returns the distinct users present in a room.
func (h *Hub) RoomUsers(roomName string) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0)
	r, ok := h.rooms[roomName]
	if !ok {
		return users
	}
	seen := make(map[uuid.UUID]bool)
	for _, c := range r.members {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			users = append(users, c.UserID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users
}

// OnlineUsers returns every user with at least one live connection.
func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
