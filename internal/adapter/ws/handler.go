// Package ws implements the WebSocket adapter for pushing live run
// updates to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// command is what clients send over the socket to scope their feed.
type command struct {
	Action string `json:"action"` // "watch" or "unwatch"
	RunID  string `json:"run_id"`
}

// conn wraps a single WebSocket connection and the set of runs it watches.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu      sync.Mutex
	watched map[string]struct{}
}

func (c *conn) watch(runID string) {
	c.mu.Lock()
	c.watched[runID] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) unwatch(runID string) {
	c.mu.Lock()
	delete(c.watched, runID)
	c.mu.Unlock()
}

func (c *conn) watching(runID string) bool {
	c.mu.Lock()
	_, ok := c.watched[runID]
	c.mu.Unlock()
	return ok
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the connection to WebSocket and serves it until the
// peer goes away. It blocks for the lifetime of the connection; the
// request context is only valid while the handler runs.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, watched: make(map[string]struct{})}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	// Read loop: consumes pings, detects disconnects, and applies
	// watch/unwatch commands.
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.RunID == "" {
			continue
		}
		switch cmd.Action {
		case "watch":
			c.watch(cmd.RunID)
		case "unwatch":
			c.unwatch(cmd.RunID)
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// BroadcastRun sends a message to the clients watching the given run.
func (h *Hub) BroadcastRun(ctx context.Context, runID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if !c.watching(runID) {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
