// Package live streams timer state and cues to connected browser tabs.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/stemforge/stem-forge/internal/notify"
	"github.com/stemforge/stem-forge/internal/pomodoro"
)

// Message types sent to clients.
const (
	TypeTimer      = "timer"
	TypeCue        = "cue"
	TypePermission = "permission"
	TypePong       = "pong"
	TypeError      = "error"
)

// sendQueueSize bounds the per-client backlog. Messages beyond it are dropped.
const sendQueueSize = 32

// Message is the envelope of every server-to-client frame.
type Message struct {
	Type  string               `json:"type"`
	Timer *pomodoro.Snapshot   `json:"timer,omitempty"`
	Cue   *notify.Notification `json:"cue,omitempty"`
	Error string               `json:"error,omitempty"`
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks: a slow tab loses messages rather than stalling timers.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Hub tracks connected tabs per learner.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[string]*client)}
}

// Register adds a connection for a user/session, replacing any previous one.
func (h *Hub) Register(userID, sessionID string, conn *websocket.Conn) *client {
	c := newClient(conn)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*client)
	}
	if existing, exists := h.active[userID][sessionID]; exists {
		existing.close()
	}
	h.active[userID][sessionID] = c
	slog.Info("Live session registered", "user_id", userID, "session_id", sessionID)
	return c
}

// Unregister removes c if it is still the current client of the session.
func (h *Hub) Unregister(userID, sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == c {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Live session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
	c.close()
}

// Count returns the number of open sessions for a user.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Publish sends msg to every session of a user and returns how many accepted it.
func (h *Hub) Publish(userID string, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode live message", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sid, c := range h.active[userID] {
		if c.enqueue(data) {
			delivered++
		} else {
			slog.Debug("Live message dropped", "user_id", userID, "session_id", sid, "type", msg.Type)
		}
	}
	return delivered
}

// PublishSnapshot broadcasts a timer snapshot. It is used as the engine observer.
func (h *Hub) PublishSnapshot(s pomodoro.Snapshot) {
	h.Publish(s.UserID, Message{Type: TypeTimer, Timer: &s})
}

// Notify implements notify.Notifier by forwarding cues to open tabs, which
// play the sound and raise the desktop notification.
func (h *Hub) Notify(_ context.Context, n notify.Notification) error {
	switch n.Kind {
	case notify.KindPermission:
		h.Publish(n.UserID, Message{Type: TypePermission})
	default:
		h.Publish(n.UserID, Message{Type: TypeCue, Cue: &n})
	}
	return nil
}
