package battle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
)

type fakeRecorder struct {
	mu          sync.Mutex
	completions []domain.ChallengeCompletion
	err         error
}

func (f *fakeRecorder) RecordChallengeCompletion(_ context.Context, c domain.ChallengeCompletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.completions = append(f.completions, c)
	return nil
}

func playThrough(t *testing.T, m *Manager, userID string) State {
	t.Helper()
	ctx := context.Background()
	if _, err := m.Enter(ctx, userID, testChallenge()); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	var s State
	for _, a := range []string{"chlorine", "neon", "104.5"} {
		if _, err := m.Submit(ctx, userID, a); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		var err error
		if s, err = m.Advance(ctx, userID); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
	}
	return s
}

func TestManagerRecordsVictory(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewManager(rec)

	s := playThrough(t, m, "user-1")
	if s.Status != StatusVictory {
		t.Fatalf("expected victory, got %s", s.Status)
	}

	if len(rec.completions) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(rec.completions))
	}
	c := rec.completions[0]
	if c.UserID != "user-1" || c.ChallengeID != "titan" || c.TotalScore != 450 || c.MaxScore != 450 {
		t.Fatalf("unexpected completion: %+v", c)
	}
	if c.ID == "" {
		t.Fatal("expected completion ID")
	}
}

func TestManagerRecorderFailureKeepsVictory(t *testing.T) {
	m := NewManager(&fakeRecorder{err: errors.New("disk full")})
	s := playThrough(t, m, "user-1")
	if s.Status != StatusVictory {
		t.Fatalf("expected victory despite recorder failure, got %s", s.Status)
	}
	if got := m.Get("user-1"); got.Status != StatusVictory {
		t.Fatalf("stored status = %s", got.Status)
	}
}

func TestManagerIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	if _, err := m.Enter(ctx, "a", testChallenge()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Submit(ctx, "a", "chlorine"); err != nil {
		t.Fatal(err)
	}

	if got := m.Get("b"); got.Status != StatusNotStarted {
		t.Fatalf("user b has a battle: %+v", got)
	}
	if _, err := m.Submit(ctx, "b", "chlorine"); !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion for user b, got %v", err)
	}
	if got := m.Get("a"); got.TotalScore != 100 {
		t.Fatalf("user a score = %d", got.TotalScore)
	}
}

func TestManagerExitClearsBattle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	if _, err := m.Enter(ctx, "a", testChallenge()); err != nil {
		t.Fatal(err)
	}
	m.Exit(ctx, "a")
	if got := m.Get("a"); got.Status != StatusNotStarted {
		t.Fatalf("expected no battle after exit, got %+v", got)
	}
}

func TestManagerSweepIdle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	if _, err := m.Enter(ctx, "a", testChallenge()); err != nil {
		t.Fatal(err)
	}

	if n := m.SweepIdle(time.Hour, start.Add(30*time.Minute)); n != 0 {
		t.Fatalf("swept %d fresh battles", n)
	}
	if n := m.SweepIdle(time.Hour, start.Add(2*time.Hour)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if got := m.Get("a"); got.Status != StatusNotStarted {
		t.Fatal("expected battle to be evicted")
	}
}

func TestRenderHidesAnswerUntilRevealed(t *testing.T) {
	s := mustTransition(t, State{}, Enter{Challenge: testChallenge()})
	v := Render(s)
	if v.Question == nil || v.Question.CorrectAnswer != "" {
		t.Fatalf("answer leaked before reveal: %+v", v.Question)
	}
	if v.ChallengeID != "titan" || v.PhaseName != "Elements" || v.PhaseCount != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}

	s = mustTransition(t, s, Submit{Text: "x"})
	v = Render(s)
	if v.Question.CorrectAnswer != "Chlorine" {
		t.Fatalf("expected answer after reveal, got %+v", v.Question)
	}
}
