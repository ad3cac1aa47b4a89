package pomodoro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/notify"
)

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]domain.DailyRecord
	settings map[string]domain.TimerSettings
	saves    int
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string]domain.DailyRecord),
		settings: make(map[string]domain.TimerSettings),
	}
}

func (f *fakeStore) LoadDailyRecord(_ context.Context, userID, date string) (*domain.DailyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[userID+"/"+date]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) SaveDailyRecord(_ context.Context, userID string, rec domain.DailyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[userID+"/"+rec.Date] = rec
	return nil
}

func (f *fakeStore) LoadTimerSettings(_ context.Context, userID string) (*domain.TimerSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) SaveTimerSettings(_ context.Context, userID string, s domain.TimerSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[userID] = s
	return nil
}

func (f *fakeStore) record(userID, date string) (domain.DailyRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[userID+"/"+date]
	return rec, ok
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Notification
	err   error
	calls int
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var day1 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, store *fakeStore, n notify.Notifier, clock *fakeClock, delay time.Duration) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), "user-1", store, Options{
		Notifier:       n,
		Now:            clock.Now,
		AutoStartDelay: delay,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func runToExpiry(ctx context.Context, e *Engine) Snapshot {
	e.mu.Lock()
	e.state.IsRunning = true
	e.state.SecondsRemaining = 1
	e.mu.Unlock()
	return e.Tick(ctx)
}

func TestEngineHydratesFromTodaysRecord(t *testing.T) {
	store := newFakeStore()
	store.records["user-1/2026-03-14"] = domain.DailyRecord{Date: "2026-03-14", CompletedWorkSessions: 3, CompletedTasks: []string{"vectors"}}
	store.records["user-1/2026-03-13"] = domain.DailyRecord{Date: "2026-03-13", CompletedWorkSessions: 9}
	clock := &fakeClock{now: day1}

	e := newTestEngine(t, store, nil, clock, 0)
	snap := e.Snapshot()
	if snap.CompletedWorkSessions != 3 {
		t.Fatalf("completed = %d, want 3", snap.CompletedWorkSessions)
	}
	if snap.Date != "2026-03-14" || snap.Mode != domain.ModeWork || snap.SecondsRemaining != 25*60 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestEngineStartsAtZeroWithoutRecord(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), nil, &fakeClock{now: day1}, 0)
	if got := e.Snapshot().CompletedWorkSessions; got != 0 {
		t.Fatalf("completed = %d, want 0", got)
	}
}

func TestEnginePersistsOnWorkCompletion(t *testing.T) {
	store := newFakeStore()
	clock := &fakeClock{now: day1}
	n := &recordingNotifier{}
	e := newTestEngine(t, store, n, clock, time.Hour)

	e.SetTask(context.Background(), "stoichiometry")
	snap := runToExpiry(context.Background(), e)

	rec, ok := store.record("user-1", "2026-03-14")
	if !ok {
		t.Fatal("expected daily record to be saved")
	}
	if rec.CompletedWorkSessions != 1 || rec.TotalFocusMinutes != 25 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.CompletedTasks) != 1 || rec.CompletedTasks[0] != "stoichiometry" {
		t.Fatalf("unexpected tasks: %v", rec.CompletedTasks)
	}
	if snap.Mode != domain.ModeShortBreak || snap.IsRunning {
		t.Fatalf("unexpected snapshot: %+v", snap.TimerState)
	}
	e.WaitNotifications()
	if kinds := n.kinds(); len(kinds) != 1 || kinds[0] != notify.KindCue {
		t.Fatalf("expected one cue, got %v", kinds)
	}
	e.Stop()
}

func TestEngineNotifierFailureDoesNotBlockTransition(t *testing.T) {
	store := newFakeStore()
	n := &recordingNotifier{err: errors.New("permission denied")}
	e := newTestEngine(t, store, n, &fakeClock{now: day1}, time.Hour)

	e.Start(context.Background())
	snap := runToExpiry(context.Background(), e)
	if snap.CompletedWorkSessions != 1 || snap.Mode != domain.ModeShortBreak {
		t.Fatalf("transition did not complete: %+v", snap.TimerState)
	}
	e.WaitNotifications()
	if calls := n.callCount(); calls != 2 {
		t.Fatalf("expected permission request and cue attempts, got %d", calls)
	}
	e.Stop()
}

func TestEngineStoreFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	e := newTestEngine(t, store, nil, &fakeClock{now: day1}, time.Hour)

	snap := runToExpiry(context.Background(), e)
	if snap.CompletedWorkSessions != 1 {
		t.Fatalf("completed = %d, want 1", snap.CompletedWorkSessions)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save attempt, got %d", store.saves)
	}
	e.Stop()
}

func TestEngineAutoStartImmediate(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), nil, &fakeClock{now: day1}, 0)
	snap := runToExpiry(context.Background(), e)
	if !snap.IsRunning || snap.Mode != domain.ModeShortBreak {
		t.Fatalf("expected short break to auto-start, got %+v", snap.TimerState)
	}
	if snap.SecondsRemaining != 5*60 {
		t.Fatalf("secondsRemaining = %d, want %d", snap.SecondsRemaining, 5*60)
	}
}

func TestEngineAutoStartDelayed(t *testing.T) {
	started := make(chan Snapshot, 4)
	e, err := NewEngine(context.Background(), "user-1", newFakeStore(), Options{
		Now:            (&fakeClock{now: day1}).Now,
		AutoStartDelay: 10 * time.Millisecond,
		Observer: func(s Snapshot) {
			if s.IsRunning {
				started <- s
			}
		},
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if snap := runToExpiry(context.Background(), e); snap.IsRunning {
		t.Fatal("expected timer to stop until the auto-start delay elapses")
	}

	select {
	case snap := <-started:
		if snap.Mode != domain.ModeShortBreak {
			t.Fatalf("auto-started mode = %s", snap.Mode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auto-start")
	}
}

func TestEnginePauseCancelsPendingAutoStart(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), nil, &fakeClock{now: day1}, 20*time.Millisecond)
	runToExpiry(context.Background(), e)
	e.Pause(context.Background())

	time.Sleep(80 * time.Millisecond)
	if e.Running() {
		t.Fatal("expected pause to cancel the pending auto-start")
	}
}

func TestEngineStaleAutoStartIsIgnored(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), nil, &fakeClock{now: day1}, time.Hour)
	runToExpiry(context.Background(), e)

	e.mu.Lock()
	stale := e.autoStart
	e.mu.Unlock()
	if stale == nil {
		t.Fatal("expected a pending auto-start")
	}

	e.Pause(context.Background())
	// A callback that already fired before Pause stopped its timer.
	if snap := e.dispatch(context.Background(), Start{}, stale); snap.IsRunning {
		t.Fatal("superseded auto-start must not start the timer")
	}

	e.SwitchMode(context.Background(), domain.ModeWork)
	runToExpiry(context.Background(), e)
	e.mu.Lock()
	current := e.autoStart
	e.mu.Unlock()
	if snap := e.dispatch(context.Background(), Start{}, stale); snap.IsRunning {
		t.Fatal("auto-start from an earlier expiry must not start the timer")
	}
	if snap := e.dispatch(context.Background(), Start{}, current); !snap.IsRunning {
		t.Fatal("the pending auto-start should still start the timer")
	}
	e.Stop()
}

func TestEngineSlowNotifierDoesNotStallCountdown(t *testing.T) {
	release := make(chan struct{})
	blocking := notify.NotifierFunc(func(ctx context.Context, _ notify.Notification) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	e := newTestEngine(t, newFakeStore(), blocking, &fakeClock{now: day1}, 0)

	done := make(chan Snapshot, 1)
	go func() { done <- runToExpiry(context.Background(), e) }()

	select {
	case snap := <-done:
		if !snap.IsRunning || snap.Mode != domain.ModeShortBreak {
			t.Fatalf("expected the break to auto-start, got %+v", snap.TimerState)
		}
	case <-time.After(time.Second):
		t.Fatal("expiry blocked on notification delivery")
	}

	before := e.Snapshot().SecondsRemaining
	if after := e.Tick(context.Background()).SecondsRemaining; after != before-1 {
		t.Fatalf("secondsRemaining = %d, want %d", after, before-1)
	}

	close(release)
	e.WaitNotifications()
}

func TestEngineNotificationTimeout(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	hung := notify.NotifierFunc(func(ctx context.Context, _ notify.Notification) error {
		<-ctx.Done()
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return ctx.Err()
	})
	e, err := NewEngine(context.Background(), "user-1", newFakeStore(), Options{
		Notifier:       hung,
		NotifyTimeout:  10 * time.Millisecond,
		Now:            (&fakeClock{now: day1}).Now,
		AutoStartDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	runToExpiry(context.Background(), e)
	e.WaitNotifications()
	e.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], context.DeadlineExceeded) {
		t.Fatalf("expected one delivery cut off by the timeout, got %v", errs)
	}
}

func TestEngineNotificationsKeepOrder(t *testing.T) {
	n := &recordingNotifier{}
	e := newTestEngine(t, newFakeStore(), n, &fakeClock{now: day1}, time.Hour)

	e.Start(context.Background())
	runToExpiry(context.Background(), e)
	e.WaitNotifications()
	e.Stop()

	kinds := n.kinds()
	if len(kinds) != 2 || kinds[0] != notify.KindPermission || kinds[1] != notify.KindCue {
		t.Fatalf("kinds = %v, want [permission cue]", kinds)
	}
}

func TestEngineCurrentTaskSurvivesEviction(t *testing.T) {
	store := newFakeStore()
	clock := &fakeClock{now: day1}
	e := newTestEngine(t, store, nil, clock, time.Hour)
	e.SetTask(context.Background(), "titration curves")

	rec, ok := store.record("user-1", "2026-03-14")
	if !ok || rec.CurrentTask != "titration curves" {
		t.Fatalf("current task not persisted: %+v", rec)
	}

	fresh := newTestEngine(t, store, nil, clock, time.Hour)
	if got := fresh.Snapshot().CurrentTask; got != "titration curves" {
		t.Fatalf("currentTask = %q after rehydrate", got)
	}

	runToExpiry(context.Background(), fresh)
	fresh.Stop()
	if rec, _ := store.record("user-1", "2026-03-14"); rec.CurrentTask != "" || len(rec.CompletedTasks) != 1 {
		t.Fatalf("expected the task archived on completion: %+v", rec)
	}
}

func TestEngineRolloverStartsNewDay(t *testing.T) {
	store := newFakeStore()
	clock := &fakeClock{now: day1}
	e := newTestEngine(t, store, nil, clock, time.Hour)
	runToExpiry(context.Background(), e)
	e.Stop()

	clock.Set(day1.Add(24 * time.Hour))
	if !e.Rollover(context.Background()) {
		t.Fatal("expected rollover")
	}
	snap := e.Snapshot()
	if snap.Date != "2026-03-15" || snap.CompletedWorkSessions != 0 {
		t.Fatalf("unexpected snapshot after rollover: date=%s completed=%d", snap.Date, snap.CompletedWorkSessions)
	}
	if e.Rollover(context.Background()) {
		t.Fatal("second rollover on the same day should be a no-op")
	}
	if rec, _ := store.record("user-1", "2026-03-14"); rec.CompletedWorkSessions != 1 {
		t.Fatalf("previous day record changed: %+v", rec)
	}
}

func TestEngineUpdateSettingsPersists(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, store, nil, &fakeClock{now: day1}, 0)
	s := domain.DefaultTimerSettings()
	s.WorkMinutes = 45
	snap := e.UpdateSettings(context.Background(), s)

	if snap.SecondsRemaining != 45*60 {
		t.Fatalf("secondsRemaining = %d, want %d", snap.SecondsRemaining, 45*60)
	}
	saved, _ := store.LoadTimerSettings(context.Background(), "user-1")
	if saved == nil || saved.WorkMinutes != 45 {
		t.Fatalf("settings not persisted: %+v", saved)
	}
}

func TestManagerReusesAndSweepsEngines(t *testing.T) {
	clock := &fakeClock{now: day1}
	m := NewManager(newFakeStore(), ManagerOptions{
		Engine:       Options{Now: clock.Now},
		TickInterval: time.Hour,
	})
	defer m.Close()

	a, err := m.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	b, _ := m.Get(context.Background(), "user-1")
	if a != b {
		t.Fatal("expected the same engine for the same user")
	}
	if _, err := m.Get(context.Background(), "user-2"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n := m.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
	a.Start(context.Background())

	if n := m.SweepIdle(time.Minute, day1.Add(2*time.Minute)); n != 1 {
		t.Fatalf("expected one engine swept, got %d", n)
	}
	if _, ok := m.Lookup("user-1"); !ok {
		t.Fatal("running engine should survive the sweep")
	}
	if _, ok := m.Lookup("user-2"); ok {
		t.Fatal("idle engine should be swept")
	}
}

func TestManagerSlowNotifierDoesNotStallRunner(t *testing.T) {
	store := newFakeStore()
	s := domain.DefaultTimerSettings()
	s.WorkMinutes = 1
	store.settings["user-1"] = s

	release := make(chan struct{})
	blocking := notify.NotifierFunc(func(ctx context.Context, n notify.Notification) error {
		if n.Kind != notify.KindCue {
			return nil
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	m := NewManager(store, ManagerOptions{
		Engine:       Options{Notifier: blocking, Now: (&fakeClock{now: day1}).Now},
		TickInterval: time.Millisecond,
	})
	defer m.Close()
	defer close(release)

	e, err := m.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	e.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := e.Snapshot()
		if snap.Mode == domain.ModeShortBreak && snap.IsRunning && snap.SecondsRemaining < 5*60 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("break did not auto-start and count down: %+v", e.Snapshot().TimerState)
}

func TestRunTicksEngine(t *testing.T) {
	e := newTestEngine(t, newFakeStore(), nil, &fakeClock{now: day1}, time.Hour)
	e.Start(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, e, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for e.Snapshot().SecondsRemaining == 25*60 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if e.Snapshot().SecondsRemaining >= 25*60 {
		t.Fatal("expected the runner to tick the countdown")
	}
}
