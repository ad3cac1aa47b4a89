package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/identity"
	"github.com/stemforge/stem-forge/internal/pomodoro"
)

type memStore struct {
	mu       sync.Mutex
	records  map[string]domain.DailyRecord
	settings map[string]domain.TimerSettings
}

func newMemStore() *memStore {
	return &memStore{records: map[string]domain.DailyRecord{}, settings: map[string]domain.TimerSettings{}}
}

func (m *memStore) LoadDailyRecord(_ context.Context, userID, date string) (*domain.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[userID+"/"+date]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memStore) SaveDailyRecord(_ context.Context, userID string, rec domain.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID+"/"+rec.Date] = rec
	return nil
}

func (m *memStore) LoadTimerSettings(_ context.Context, userID string) (*domain.TimerSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) SaveTimerSettings(_ context.Context, userID string, s domain.TimerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[userID] = s
	return nil
}

func newLiveServer(t *testing.T) (*httptest.Server, *pomodoro.Manager) {
	t.Helper()
	hub := NewHub()
	timers := pomodoro.NewManager(newMemStore(), pomodoro.ManagerOptions{
		Engine: pomodoro.Options{
			Notifier: hub,
			Observer: hub.PublishSnapshot,
		},
		TickInterval: time.Hour,
	})
	t.Cleanup(timers.Close)

	handler := NewWebSocketHandler(hub, timers, []string{"*"}, true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), "anon_test")))
	}))
	t.Cleanup(srv.Close)
	return srv, timers
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocket_SendsInitialSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _ := newLiveServer(t)
	conn := dial(t, ctx, srv)

	var msg Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != TypeTimer || msg.Timer == nil {
		t.Fatalf("expected timer snapshot, got %+v", msg)
	}
	if msg.Timer.Mode != domain.ModeWork || msg.Timer.SecondsRemaining != 25*60 || msg.Timer.Clock != "25:00" {
		t.Fatalf("unexpected snapshot: %+v", msg.Timer)
	}
}

func TestWebSocket_ControlMessagesDriveEngine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, timers := newLiveServer(t)
	conn := dial(t, ctx, srv)
	readUntil(t, ctx, conn, func(m Message) bool { return m.Type == TypeTimer })

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "start"}); err != nil {
		t.Fatal(err)
	}
	// Notifications are delivered off the engine goroutine, so the permission
	// request and the snapshot may arrive in either order.
	var sawPermission, sawRunning bool
	readUntil(t, ctx, conn, func(m Message) bool {
		switch {
		case m.Type == TypePermission:
			sawPermission = true
		case m.Type == TypeTimer && m.Timer != nil && m.Timer.IsRunning:
			sawRunning = true
		}
		return sawPermission && sawRunning
	})

	engine, ok := timers.Lookup("anon_test")
	if !ok || !engine.Running() {
		t.Fatal("expected engine to be running")
	}

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "mode", Mode: "nap"}); err != nil {
		t.Fatal(err)
	}
	errMsg := readUntil(t, ctx, conn, func(m Message) bool { return m.Type == TypeError })
	if errMsg.Error == "" {
		t.Fatal("expected error text for invalid mode")
	}

	if err := wsjson.Write(ctx, conn, clientMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, ctx, conn, func(m Message) bool { return m.Type == TypePong })
}

func TestWebSocket_RestActionsReachOpenTabs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, timers := newLiveServer(t)
	conn := dial(t, ctx, srv)
	readUntil(t, ctx, conn, func(m Message) bool { return m.Type == TypeTimer })

	engine, err := timers.Get(ctx, "anon_test")
	if err != nil {
		t.Fatal(err)
	}
	engine.SetTask(ctx, "vector calculus")

	msg := readUntil(t, ctx, conn, func(m Message) bool { return m.Type == TypeTimer })
	if msg.Timer.CurrentTask != "vector calculus" {
		t.Fatalf("expected task broadcast, got %+v", msg.Timer)
	}
}
