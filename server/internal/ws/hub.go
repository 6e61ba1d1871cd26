package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconrelay/beacon/pkg/activity"
	"github.com/beaconrelay/beacon/server/internal/allowlist"
	"github.com/beaconrelay/beacon/server/internal/api"
	"github.com/beaconrelay/beacon/server/internal/events"
	"github.com/beaconrelay/beacon/server/internal/metrics"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients for every activity change.
type Message struct {
	Event  string              `json:"event"`
	UserID uint64              `json:"user_id,string"`
	Data   []activity.Activity `json:"data"`
}

type outlet = events.Outlet[[]activity.Activity]

// Hub tracks WebSocket clients streaming live activity.
type Hub struct {
	disp    *events.Dispatcher[uint64, []activity.Activity]
	allow   *allowlist.List
	metrics *metrics.Registry

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// client is one connected WebSocket subscriber.
type client struct {
	conn   *websocket.Conn
	userID uint64
	out    *outlet
}

// New creates a Hub that subscribes clients through disp. m may be nil.
func New(disp *events.Dispatcher[uint64, []activity.Activity], allow *allowlist.List, m *metrics.Registry) *Hub {
	return &Hub{
		disp:    disp,
		allow:   allow,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
// Clients arriving afterwards are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP checks the user, upgrades the connection and streams until the
// client goes away or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := api.CheckUser(r, h.allow, h.metrics)
	if err != nil {
		api.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.isClosed() {
		api.JSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	out, initial, hasInitial := h.disp.Subscribe(id)
	c := &client{conn: conn, userID: id, out: out}
	if !h.register(c) {
		// Run finished between the check above and the upgrade.
		out.Close()
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	defer h.unregister(c)
	if h.metrics != nil {
		defer h.metrics.StreamOpened()()
	}

	slog.Debug("ws: client connected", "user_id", id, "subscriber", out.ID())

	go c.writePump(initial, hasInitial)
	c.readPump() // blocks until connection closes
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

// register adds c unless the hub has shut down.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) unregister(c *client) {
	c.out.Close()
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.out.Close()
		delete(h.clients, c)
	}
}

// writePump forwards outlet values and periodic pings to the connection.
// It returns once the outlet is closed or a write fails.
func (c *client) writePump(initial []activity.Activity, hasInitial bool) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	var dedup api.Dedup
	if hasInitial && dedup.Changed(initial) {
		if c.write(initial) != nil {
			return
		}
	}

	for {
		select {
		case <-c.out.Ready():
			for _, acts := range c.out.Drain() {
				if !dedup.Changed(acts) {
					continue
				}
				if c.write(acts) != nil {
					return
				}
			}

		case <-c.out.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(acts []activity.Activity) error {
	if acts == nil {
		acts = []activity.Activity{}
	}
	msg, err := json.Marshal(Message{Event: "activity", UserID: c.userID, Data: acts})
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// readPump processes control frames and detects disconnects. Blocks until
// the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
