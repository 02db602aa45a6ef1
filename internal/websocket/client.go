package websocket

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/events"
	"github.com/thereayou/classroom-rtc/internal/services"
)

const (
	writeWait = 10 * time.Second

	defaultPingPeriod     = 54 * time.Second
	defaultMaxMessageSize = 512 * 1024
	defaultSendBuffer     = 256
)

// Options tunes per-connection transport behaviour.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PingPeriod     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = defaultPingPeriod
	}
	return o
}

// pongWait must exceed the ping period so a healthy peer always answers in time.
func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

// ClientMessageHandler receives every raw inbound frame of a connection.
type ClientMessageHandler interface {
	HandleMessage(client *Client, raw []byte)
}

// Client is one live transport connection owned by the Hub.
type Client struct {
	ID          string
	UserID      uuid.UUID
	Role        string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	ConnectedAt time.Time

	opts       Options
	lastActive atomic.Int64

	// rooms is guarded by Hub.mu.
	rooms map[string]struct{}

	mu     sync.RWMutex
	closed bool
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewConnectionID returns a time-ordered connection identifier.
func NewConnectionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role string, opts Options) *Client {
	opts = opts.withDefaults()
	now := time.Now()
	c := &Client{
		ID:          NewConnectionID(),
		UserID:      userID,
		Role:        role,
		Conn:        conn,
		Send:        make(chan []byte, opts.SendBuffer),
		Hub:         hub,
		ConnectedAt: now,
		opts:        opts,
		rooms:       make(map[string]struct{}),
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

// ReadPump reads frames until the connection fails, then tears the
// connection down in the hub.
func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "websocket.client").Str("conn", c.ID).Msg("unexpected close")
			}
			return
		}
		c.touch()
		handler.HandleMessage(c, data)
	}
}

// WritePump drains Send onto the socket and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("module", "websocket.client").Str("conn", c.ID).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking.
func (c *Client) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendEvent(ev events.Outbound) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return c.TrySend(data)
}

// SendError reports a rejected event to this connection only.
func (c *Client) SendError(ref string, err error) {
	payload := events.ErrorPayload{
		Error: err.Error(),
		Kind:  string(services.KindOf(err)),
		State: services.StateOf(err),
	}
	if payload.Kind == "" {
		payload.Error = "internal error"
	}
	if sendErr := c.SendEvent(events.New(events.TypeError, payload).WithRef(ref)); sendErr != nil {
		log.Debug().Err(sendErr).Str("module", "websocket.client").Str("conn", c.ID).Msg("error frame dropped")
	}
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
