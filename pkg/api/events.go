package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/internal/tracing"
	"github.com/harun/smprofiler/pkg/profiler"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Event names sent on the stream.
const (
	EventSessionCreated    = "session.created"
	EventSessionTerminated = "session.terminated"
	EventHeartbeat         = "heartbeat"
	EventShutdown          = "server.shutdown"
)

const (
	clientSendBuffer = 32
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// EventMessage is one server-initiated message.
type EventMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Seq       int64  `json:"seq"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// SessionEventData is the payload of session.created and session.terminated.
type SessionEventData struct {
	Session profiler.Session `json:"session"`
	Live    int              `json:"live"`
}

// HeartbeatData is the payload of heartbeat messages.
type HeartbeatData struct {
	Status string `json:"status"`
	Live   int    `json:"live"`
}

type eventClient struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	remoteAddr  string
	closeOnce   sync.Once
}

func (c *eventClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// EventHub fans registry changes out to websocket clients.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[string]*eventClient
	closed   bool
	seq      atomic.Int64
	live     func() int
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewEventHub creates a hub. live reports the current session count for heartbeats.
func NewEventHub(live func() int, allowOrigin string, logger zerolog.Logger) *EventHub {
	observability.EnsureRegistered()

	h := &EventHub{
		clients: make(map[string]*eventClient),
		live:    live,
		logger:  logger.With().Str("component", "events").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowOrigin == "*" || origin == "" || origin == allowOrigin || sameHost(r)
		},
	}
	return h
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Observe adapts the hub to a profiler.Observer.
func (h *EventHub) Observe(ev profiler.Event) {
	name := EventSessionCreated
	if ev.Type == profiler.EventTerminated {
		name = EventSessionTerminated
	}
	h.Broadcast(name, SessionEventData{Session: ev.Session, Live: ev.Live})
}

// Heartbeat sends the live session count to every client.
func (h *EventHub) Heartbeat() {
	live := 0
	if h.live != nil {
		live = h.live()
	}
	h.Broadcast(EventHeartbeat, HeartbeatData{Status: "alive", Live: live})
}

// Broadcast queues an event for every client. Clients whose buffer is full are dropped.
func (h *EventHub) Broadcast(event string, data any) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       h.seq.Add(1),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	dropped := 0
	for id, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			client.close()
			delete(h.clients, id)
			dropped++
		}
	}
	if dropped > 0 {
		observability.SetEventClients(len(h.clients))
	}

	h.logger.Debug().
		Str("event", event).
		Int64("seq", msg.Seq).
		Int("clients", len(h.clients)).
		Int("dropped", dropped).
		Msg("Event broadcast")
}

// HandleWebSocket upgrades the request and registers the client.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := tracing.LoggerFromContext(r.Context(), h.logger)

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to generate client id")
		_ = conn.Close()
		return
	}

	client := &eventClient{
		id:          clientID,
		conn:        conn,
		send:        make(chan []byte, clientSendBuffer),
		connectedAt: time.Now(),
		remoteAddr:  r.RemoteAddr,
	}
	if !h.add(client) {
		_ = conn.Close()
		return
	}

	logger.Info().Str("clientId", clientID).Str("ip", r.RemoteAddr).Msg("Event client connected")

	go h.writePump(client)
	go h.readPump(client)
}

func (h *EventHub) add(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	observability.SetEventClients(len(h.clients))
	return true
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
		c.close()
		observability.SetEventClients(len(h.clients))
	}
}

// readPump discards client messages and notices disconnects.
func (h *EventHub) readPump(c *eventClient) {
	defer func() {
		h.remove(c)
		h.logger.Info().
			Str("clientId", c.id).
			Dur("connected", time.Since(c.connectedAt)).
			Msg("Event client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("clientId", c.id).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *EventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn().Err(err).Str("clientId", c.id).Msg("Failed to write event")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Count returns the number of connected clients.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a shutdown event and disconnects every client.
func (h *EventHub) Close() {
	h.Broadcast(EventShutdown, map[string]string{"message": "server is shutting down"})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
	observability.SetEventClients(0)
}
