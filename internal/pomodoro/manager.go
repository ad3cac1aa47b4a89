package pomodoro

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

// Run ticks e every interval until ctx is cancelled.
func Run(ctx context.Context, e *Engine, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Tick(ctx)
		case <-ctx.Done():
			e.Stop()
			return
		}
	}
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Engine       Options
	TickInterval time.Duration
}

type runner struct {
	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager keeps one running engine per learner.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	opts    ManagerOptions
	runners map[string]*runner
}

// NewManager creates a manager backed by store.
func NewManager(store Store, opts ManagerOptions) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Manager{
		store:   store,
		opts:    opts,
		runners: make(map[string]*runner),
	}
}

// Get returns the user's engine, hydrating and starting it on first use.
func (m *Manager) Get(ctx context.Context, userID string) (*Engine, error) {
	m.mu.RLock()
	r, ok := m.runners[userID]
	m.mu.RUnlock()
	if ok {
		return r.engine, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runners[userID]; ok {
		return r.engine, nil
	}

	engine, err := NewEngine(ctx, userID, m.store, m.opts.Engine)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r = &runner{engine: engine, cancel: cancel, done: make(chan struct{})}
	m.runners[userID] = r
	go func() {
		defer close(r.done)
		Run(runCtx, engine, m.opts.TickInterval)
	}()
	slog.Info("Timer engine started", "user_id", userID)
	return engine, nil
}

// Lookup returns an already running engine without creating one.
func (m *Manager) Lookup(userID string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[userID]
	if !ok {
		return nil, false
	}
	return r.engine, true
}

// Len returns the number of running engines.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

// SweepIdle stops paused engines whose last learner action is older than ttl.
// Their state is already persisted, so the next Get rehydrates it.
func (m *Manager) SweepIdle(ttl time.Duration, now time.Time) int {
	m.mu.Lock()
	var stale []*runner
	for userID, r := range m.runners {
		if r.engine.Running() {
			continue
		}
		if now.Sub(r.engine.IdleSince()) < ttl {
			continue
		}
		stale = append(stale, r)
		delete(m.runners, userID)
	}
	m.mu.Unlock()

	for _, r := range stale {
		r.cancel()
		<-r.done
		slog.Info("Timer engine evicted", "user_id", r.engine.UserID())
	}
	return len(stale)
}

// Rollover moves every engine to today's record when the day changed.
func (m *Manager) Rollover(ctx context.Context) int {
	m.mu.RLock()
	engines := make([]*Engine, 0, len(m.runners))
	for _, r := range m.runners {
		engines = append(engines, r.engine)
	}
	m.mu.RUnlock()

	rolled := 0
	for _, e := range engines {
		if e.Rollover(ctx) {
			rolled++
		}
	}
	return rolled
}

// Close stops every engine and waits for queued notifications.
func (m *Manager) Close() {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]*runner)
	m.mu.Unlock()

	for _, r := range runners {
		r.cancel()
		<-r.done
	}
	for _, r := range runners {
		r.engine.WaitNotifications()
	}
}
