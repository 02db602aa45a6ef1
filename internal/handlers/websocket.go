package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/thereayou/classroom-rtc/internal/middleware"
	ws "github.com/thereayou/classroom-rtc/internal/websocket"
)

// WebSocketHandler upgrades authenticated requests and runs the
// connection pumps.
type WebSocketHandler struct {
	hub      *ws.Hub
	events   ws.ClientMessageHandler
	opts     ws.Options
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, handler ws.ClientMessageHandler, opts ws.Options, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		events: handler,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows any origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("module", "handlers.ws").Msg("upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, id.UserID, id.Role, h.opts)
	h.hub.Register(client)

	if err := client.SendEvent(connectedEvent(h.hub, client)); err != nil {
		log.Debug().Err(err).Str("module", "handlers.ws").Str("conn", client.ID).Msg("hello dropped")
	}

	go client.WritePump()
	go client.ReadPump(h.events)
}
