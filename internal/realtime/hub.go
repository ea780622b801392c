// Package realtime fans conversation events out to customer and staff websockets.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SendBuffer is the per-socket queue length. A full queue drops frames for
// that socket only.
const SendBuffer = 256

// Conn is one registered socket.
type Conn struct {
	ID        string
	SessionID int64
	Staff     string

	ws       *websocket.Conn
	send     chan []byte
	sendOnce sync.Once
}

// NewConn wraps ws. A nil ws yields a queue-only connection.
func NewConn(ws *websocket.Conn, sessionID int64, staff string) *Conn {
	return &Conn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Staff:     staff,
		ws:        ws,
		send:      make(chan []byte, SendBuffer),
	}
}

// Outbox exposes queued frames; it is closed on disconnect.
func (c *Conn) Outbox() <-chan []byte { return c.send }

func (c *Conn) closeSend() { c.sendOnce.Do(func() { close(c.send) }) }

func (c *Conn) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks customer sockets per session and the staff socket set.
type Hub struct {
	mu        sync.RWMutex
	customers map[int64]map[string]*Conn
	staff     map[string]*Conn
	logger    *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		customers: make(map[int64]map[string]*Conn),
		staff:     make(map[string]*Conn),
		logger:    log.With(slog.String("service", "realtime")),
	}
}

func (h *Hub) ConnectCustomer(sessionID int64, c *Conn) {
	c.SessionID = sessionID
	h.mu.Lock()
	if h.customers[sessionID] == nil {
		h.customers[sessionID] = make(map[string]*Conn)
	}
	h.customers[sessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("customer connected", slog.Int64("session_id", sessionID), slog.String("conn_id", c.ID))
}

func (h *Hub) ConnectStaff(c *Conn) {
	h.mu.Lock()
	h.staff[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("staff connected", slog.String("staff", c.Staff), slog.String("conn_id", c.ID))
}

// DisconnectCustomer removes only this registration.
func (h *Hub) DisconnectCustomer(c *Conn) {
	h.mu.Lock()
	if m := h.customers[c.SessionID]; m != nil {
		if cur, ok := m[c.ID]; ok && cur == c {
			delete(m, c.ID)
			c.closeSend()
		}
		if len(m) == 0 {
			delete(h.customers, c.SessionID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) DisconnectStaff(c *Conn) {
	h.mu.Lock()
	if cur, ok := h.staff[c.ID]; ok && cur == c {
		delete(h.staff, c.ID)
		c.closeSend()
	}
	h.mu.Unlock()
}

// SendToCustomer delivers v to every socket of the session. Sessions without
// sockets are skipped silently.
func (h *Hub) SendToCustomer(sessionID int64, v any) {
	h.mu.RLock()
	m := h.customers[sessionID]
	targets := make([]*Conn, 0, len(m))
	for _, c := range m {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	h.fanout(targets, v)
}

// BroadcastToStaff delivers v to every staff socket except the given one.
func (h *Hub) BroadcastToStaff(v any, except *Conn) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.staff))
	for _, c := range h.staff {
		if except != nil && c.ID == except.ID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	h.fanout(targets, v)
}

func (h *Hub) CustomerCount(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.customers[sessionID])
}

func (h *Hub) StaffCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.staff)
}

func (h *Hub) fanout(targets []*Conn, v any) {
	msg, err := encode(v)
	if err != nil {
		h.logger.Error("encode frame failed", slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range targets {
		if !h.registered(c) {
			continue
		}
		if !c.enqueue(msg) {
			h.logger.Warn("send queue full, frame dropped", slog.String("conn_id", c.ID), slog.Int64("session_id", c.SessionID))
		}
	}
}

// registered must be called with h.mu held; it keeps sends off closed queues.
func (h *Hub) registered(c *Conn) bool {
	if _, ok := h.staff[c.ID]; ok {
		return true
	}
	_, ok := h.customers[c.SessionID][c.ID]
	return ok
}

func encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}
