package pomodoro

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/notify"
)

// DefaultAutoStartDelay matches the pause the web client shows between sessions.
const DefaultAutoStartDelay = time.Second

// DefaultNotifyTimeout bounds a single notification delivery.
const DefaultNotifyTimeout = 10 * time.Second

// maxPendingNotifications caps the per-engine outbox while a sink is slow.
const maxPendingNotifications = 32

// Store persists daily tallies and settings for one learner.
type Store interface {
	// LoadDailyRecord returns nil, nil when no record exists for date.
	LoadDailyRecord(ctx context.Context, userID, date string) (*domain.DailyRecord, error)
	SaveDailyRecord(ctx context.Context, userID string, rec domain.DailyRecord) error
	// LoadTimerSettings returns nil, nil when the user never saved settings.
	LoadTimerSettings(ctx context.Context, userID string) (*domain.TimerSettings, error)
	SaveTimerSettings(ctx context.Context, userID string, settings domain.TimerSettings) error
}

// Snapshot is the externally visible view of an engine.
type Snapshot struct {
	UserID string `json:"-"`
	State
	Date              string  `json:"date"`
	Clock             string  `json:"clock"`
	Progress          float64 `json:"progress"`
	ModeTitle         string  `json:"modeTitle"`
	TotalFocusMinutes int     `json:"totalFocusMinutes"`
}

// Options configures an Engine.
type Options struct {
	// Notifier receives cues and permission requests. Deliveries run on a
	// separate goroutine so a slow sink never holds up the countdown.
	Notifier       notify.Notifier
	NotifyTimeout  time.Duration
	Now            func() time.Time
	AutoStartDelay time.Duration
	Observer       func(Snapshot)
}

// Engine owns one learner's timer state and applies transition effects.
type Engine struct {
	mu         sync.Mutex
	userID     string
	state      State
	day        string
	store      Store
	opts       Options
	lastActive time.Time
	autoStart  *time.Timer

	outMu      sync.Mutex
	outbox     []notify.Notification
	draining   bool
	delivering sync.WaitGroup
}

// NewEngine hydrates an engine from the user's saved settings and today's record.
func NewEngine(ctx context.Context, userID string, store Store, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AutoStartDelay < 0 {
		opts.AutoStartDelay = 0
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}

	settings := domain.DefaultTimerSettings()
	saved, err := store.LoadTimerSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load timer settings: %w", err)
	}
	if saved != nil {
		settings = *saved
	}

	now := opts.Now()
	day := domain.DateKey(now)
	rec, err := store.LoadDailyRecord(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("load daily record: %w", err)
	}

	state := NewState(settings, 0)
	if rec != nil {
		state.CompletedWorkSessions = rec.CompletedWorkSessions
		state.CompletedTasks = slices.Clone(rec.CompletedTasks)
		state.CurrentTask = rec.CurrentTask
	}

	return &Engine{
		userID:     userID,
		state:      state,
		day:        day,
		store:      store,
		opts:       opts,
		lastActive: now,
	}, nil
}

// UserID returns the owner of the engine.
func (e *Engine) UserID() string {
	return e.userID
}

// Snapshot returns the current view of the timer.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := e.state
	s.CompletedTasks = slices.Clone(s.CompletedTasks)
	return Snapshot{
		UserID:            e.userID,
		State:             s,
		Date:              e.day,
		Clock:             s.Clock(),
		Progress:          s.Progress(),
		ModeTitle:         s.Mode.Title(),
		TotalFocusMinutes: s.FocusMinutes(),
	}
}

// Start begins or resumes the countdown.
func (e *Engine) Start(ctx context.Context) Snapshot { return e.Dispatch(ctx, Start{}) }

// Pause suspends the countdown.
func (e *Engine) Pause(ctx context.Context) Snapshot { return e.Dispatch(ctx, Pause{}) }

// Reset restores the current mode's full duration.
func (e *Engine) Reset(ctx context.Context) Snapshot { return e.Dispatch(ctx, Reset{}) }

// SwitchMode selects m; it is ignored while the timer is running.
func (e *Engine) SwitchMode(ctx context.Context, m domain.TimerMode) Snapshot {
	return e.Dispatch(ctx, SwitchMode{Mode: m})
}

// SetTask labels the current work session.
func (e *Engine) SetTask(ctx context.Context, label string) Snapshot {
	return e.Dispatch(ctx, SetTask{Label: label})
}

// UpdateSettings replaces and persists the timer settings.
func (e *Engine) UpdateSettings(ctx context.Context, s domain.TimerSettings) Snapshot {
	return e.Dispatch(ctx, UpdateSettings{Settings: s})
}

// Tick advances the countdown by one second.
func (e *Engine) Tick(ctx context.Context) Snapshot { return e.Dispatch(ctx, Tick{}) }

// Dispatch applies ev and runs the resulting effects.
func (e *Engine) Dispatch(ctx context.Context, ev Event) Snapshot {
	return e.dispatch(ctx, ev, nil)
}

// dispatch applies ev. A non-nil autoStart marks a scheduled start, which is
// dropped unless that timer is still the pending one.
func (e *Engine) dispatch(ctx context.Context, ev Event, autoStart *time.Timer) Snapshot {
	e.mu.Lock()
	if autoStart != nil {
		if e.autoStart != autoStart {
			snap := e.snapshotLocked()
			e.mu.Unlock()
			return snap
		}
		e.autoStart = nil
	}
	e.rolloverLocked(ctx)

	if _, isTick := ev.(Tick); !isTick {
		e.lastActive = e.opts.Now()
		// Any learner action supersedes a pending auto-start.
		e.cancelAutoStartLocked()
	}

	prev := e.state
	next, effects := Transition(e.state, ev)
	e.state = next

	var pending []notify.Notification
	startNow := false
	for _, eff := range effects {
		switch eff := eff.(type) {
		case Persist:
			e.persistLocked(ctx)
		case SaveSettings:
			e.saveSettingsLocked(ctx)
		case RequestPermission:
			pending = append(pending, notify.Notification{UserID: e.userID, Kind: notify.KindPermission})
		case Cue:
			pending = append(pending, notify.Notification{
				UserID:  e.userID,
				Kind:    notify.KindCue,
				Title:   eff.Title,
				Body:    eff.Body,
				Mode:    string(eff.Finished),
				Next:    string(eff.Next),
				Sound:   eff.Sound,
				Volume:  eff.Volume,
				Desktop: eff.Notify,
			})
		case AutoStart:
			if e.opts.AutoStartDelay == 0 {
				startNow = true
			} else {
				e.scheduleAutoStartLocked()
			}
		}
	}

	snap := e.snapshotLocked()
	changed := !sameState(prev, next)
	e.mu.Unlock()

	e.enqueueNotifications(ctx, pending)
	if changed && e.opts.Observer != nil {
		e.opts.Observer(snap)
	}
	if startNow {
		return e.Dispatch(ctx, Start{})
	}
	return snap
}

// Rollover switches the engine to today's record if the calendar day changed.
func (e *Engine) Rollover(ctx context.Context) bool {
	e.mu.Lock()
	rolled := e.rolloverLocked(ctx)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if rolled && e.opts.Observer != nil {
		e.opts.Observer(snap)
	}
	return rolled
}

func (e *Engine) rolloverLocked(ctx context.Context) bool {
	today := domain.DateKey(e.opts.Now())
	if today == e.day {
		return false
	}
	completed := 0
	var tasks []string
	rec, err := e.store.LoadDailyRecord(ctx, e.userID, today)
	if err != nil {
		slog.Warn("Failed to load daily record on rollover", "user_id", e.userID, "date", today, "error", err)
	} else if rec != nil {
		completed = rec.CompletedWorkSessions
		tasks = slices.Clone(rec.CompletedTasks)
	}
	slog.Info("Timer rolled over to new day", "user_id", e.userID, "from", e.day, "to", today)
	e.day = today
	e.state.CompletedWorkSessions = completed
	e.state.CompletedTasks = tasks
	return true
}

// Running reports whether the countdown is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsRunning
}

// IdleSince returns the time of the last learner action.
func (e *Engine) IdleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// Stop cancels a pending auto-start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelAutoStartLocked()
}

func (e *Engine) scheduleAutoStartLocked() {
	e.cancelAutoStartLocked()
	var t *time.Timer
	// e.mu is held until t is assigned, so the callback sees it.
	t = time.AfterFunc(e.opts.AutoStartDelay, func() {
		e.dispatch(context.Background(), Start{}, t)
	})
	e.autoStart = t
}

// enqueueNotifications hands ns to the delivery goroutine, starting it if
// needed. Notifications beyond the outbox cap are dropped.
func (e *Engine) enqueueNotifications(ctx context.Context, ns []notify.Notification) {
	if e.opts.Notifier == nil || len(ns) == 0 {
		return
	}
	e.outMu.Lock()
	defer e.outMu.Unlock()
	for _, n := range ns {
		if len(e.outbox) >= maxPendingNotifications {
			slog.Warn("Notification dropped, sink is backed up", "user_id", e.userID, "kind", n.Kind)
			continue
		}
		e.outbox = append(e.outbox, n)
	}
	if e.draining || len(e.outbox) == 0 {
		return
	}
	e.draining = true
	e.delivering.Add(1)
	go e.drainNotifications(context.WithoutCancel(ctx))
}

func (e *Engine) drainNotifications(ctx context.Context) {
	defer e.delivering.Done()
	for {
		e.outMu.Lock()
		if len(e.outbox) == 0 {
			e.draining = false
			e.outMu.Unlock()
			return
		}
		n := e.outbox[0]
		e.outbox = e.outbox[1:]
		e.outMu.Unlock()

		deliverCtx, cancel := context.WithTimeout(ctx, e.opts.NotifyTimeout)
		notify.Deliver(deliverCtx, e.opts.Notifier, n)
		cancel()
	}
}

// WaitNotifications blocks until queued notifications have been delivered
// or have timed out.
func (e *Engine) WaitNotifications() {
	e.delivering.Wait()
}

func (e *Engine) cancelAutoStartLocked() {
	if e.autoStart != nil {
		e.autoStart.Stop()
		e.autoStart = nil
	}
}

func (e *Engine) persistLocked(ctx context.Context) {
	rec := domain.DailyRecord{
		Date:                  e.day,
		CompletedWorkSessions: e.state.CompletedWorkSessions,
		TotalFocusMinutes:     e.state.FocusMinutes(),
		CompletedTasks:        slices.Clone(e.state.CompletedTasks),
		CurrentTask:           e.state.CurrentTask,
	}
	if err := e.store.SaveDailyRecord(ctx, e.userID, rec); err != nil {
		slog.Error("Failed to save daily record", "user_id", e.userID, "date", e.day, "error", err)
	}
}

func (e *Engine) saveSettingsLocked(ctx context.Context) {
	if err := e.store.SaveTimerSettings(ctx, e.userID, e.state.Settings); err != nil {
		slog.Error("Failed to save timer settings", "user_id", e.userID, "error", err)
	}
}

func sameState(a, b State) bool {
	return a.TimerState == b.TimerState &&
		a.Settings == b.Settings &&
		a.CurrentTask == b.CurrentTask &&
		slices.Equal(a.CompletedTasks, b.CompletedTasks)
}
