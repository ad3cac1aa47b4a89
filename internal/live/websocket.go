package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/identity"
	"github.com/stemforge/stem-forge/internal/pomodoro"
)

// TimerSource returns the learner's timer engine.
type TimerSource interface {
	Get(ctx context.Context, userID string) (*pomodoro.Engine, error)
}

// WebSocketHandler serves the live timer stream.
type WebSocketHandler struct {
	hub            *Hub
	timers         TimerSource
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, timers TimerSource, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		timers:         timers,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// clientMessage is a control frame sent by the browser.
type clientMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
	Task string `json:"task,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	engine, err := h.timers.Get(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load timer", "user_id", userID, "error", err)
		http.Error(w, "timer unavailable", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(userID, sessionID, c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snap := engine.Snapshot()
	c.enqueue(mustEncode(Message{Type: TypeTimer, Timer: &snap}))

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, c, userID)
	}()
	h.writeLoop(ctx, ws, c, userID)
	slog.Info("Live session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, c *client, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *client, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(mustEncode(Message{Type: TypeError, Error: "invalid message"}))
			continue
		}

		// The idle sweep may have replaced the engine since the last message.
		engine, err := h.timers.Get(ctx, userID)
		if err != nil {
			slog.Error("Failed to load timer", "user_id", userID, "error", err)
			c.enqueue(mustEncode(Message{Type: TypeError, Error: "timer unavailable"}))
			continue
		}

		// State changes reach every tab through the engine observer.
		switch msg.Type {
		case "ping":
			c.enqueue(mustEncode(Message{Type: TypePong}))
		case "start":
			engine.Start(ctx)
		case "pause":
			engine.Pause(ctx)
		case "reset":
			engine.Reset(ctx)
		case "mode":
			mode, err := domain.ParseTimerMode(msg.Mode)
			if err != nil {
				c.enqueue(mustEncode(Message{Type: TypeError, Error: err.Error()}))
				continue
			}
			engine.SwitchMode(ctx, mode)
		case "task":
			engine.SetTask(ctx, msg.Task)
		case "sync":
			snap := engine.Snapshot()
			c.enqueue(mustEncode(Message{Type: TypeTimer, Timer: &snap}))
		default:
			c.enqueue(mustEncode(Message{Type: TypeError, Error: "unknown message type " + msg.Type}))
		}
	}
}

func mustEncode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic("live: encode message: " + err.Error())
	}
	return data
}
