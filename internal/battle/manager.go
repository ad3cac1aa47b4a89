package battle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemforge/stem-forge/internal/domain"
)

// CompletionRecorder persists defeated challenges.
type CompletionRecorder interface {
	RecordChallengeCompletion(ctx context.Context, c domain.ChallengeCompletion) error
}

// View is the client-facing rendering of a battle.
type View struct {
	State
	ChallengeID string          `json:"challengeId,omitempty"`
	PhaseName   string          `json:"phaseName,omitempty"`
	PhaseCount  int             `json:"phaseCount"`
	Question    *QuestionView   `json:"question,omitempty"`
	Progress    Progress        `json:"progress"`
	Completion  *CompletionView `json:"completion,omitempty"`
}

// QuestionView hides the answer until it has been revealed.
type QuestionView struct {
	ID            string              `json:"id"`
	Prompt        string              `json:"question"`
	Kind          domain.QuestionKind `json:"type"`
	Options       []string            `json:"options,omitempty"`
	Points        int                 `json:"points"`
	CorrectAnswer string              `json:"correctAnswer,omitempty"`
	Explanation   string              `json:"explanation,omitempty"`
}

// CompletionView summarizes a victory.
type CompletionView struct {
	TotalScore int `json:"totalScore"`
	MaxScore   int `json:"maxScore"`
	XPReward   int `json:"xpReward"`
}

// Render builds the client view of s.
func Render(s State) View {
	v := View{State: s, Progress: s.Progress()}
	if s.Challenge == nil {
		return v
	}
	v.ChallengeID = s.Challenge.ID
	v.PhaseCount = len(s.Challenge.Phases)
	if s.Status == StatusVictory {
		v.Completion = &CompletionView{
			TotalScore: s.TotalScore,
			MaxScore:   s.Challenge.MaxScore(),
			XPReward:   s.Challenge.XPReward,
		}
		return v
	}
	if p := s.Phase(); p != nil {
		v.PhaseName = p.Name
	}
	if q := s.Question(); q != nil {
		qv := &QuestionView{ID: q.ID, Prompt: q.Prompt, Kind: q.Kind, Options: q.Options, Points: q.Points}
		if s.Revealed {
			qv.CorrectAnswer = q.CorrectAnswer
			qv.Explanation = q.Explanation
		}
		v.Question = qv
	}
	return v
}

// Manager keeps the active battle of each learner.
type Manager struct {
	mu       sync.Mutex
	battles  map[string]*entry
	recorder CompletionRecorder
	now      func() time.Time
}

type entry struct {
	state   State
	touched time.Time
}

// NewManager creates a battle manager. recorder may be nil.
func NewManager(recorder CompletionRecorder) *Manager {
	return &Manager{
		battles:  make(map[string]*entry),
		recorder: recorder,
		now:      time.Now,
	}
}

// Get returns the learner's battle, or the zero state if none is active.
func (m *Manager) Get(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.battles[userID]; ok {
		return e.state
	}
	return State{}
}

// Enter starts a fresh battle for the learner.
func (m *Manager) Enter(ctx context.Context, userID string, c *domain.Challenge) (State, error) {
	return m.dispatch(ctx, userID, Enter{Challenge: c})
}

// Input stores a draft answer.
func (m *Manager) Input(ctx context.Context, userID, text string) (State, error) {
	return m.dispatch(ctx, userID, Input{Text: text})
}

// Submit judges an answer.
func (m *Manager) Submit(ctx context.Context, userID, answer string) (State, error) {
	return m.dispatch(ctx, userID, Submit{Text: answer})
}

// Advance moves to the next question, phase, or victory.
func (m *Manager) Advance(ctx context.Context, userID string) (State, error) {
	return m.dispatch(ctx, userID, Advance{})
}

// Exit discards the learner's battle.
func (m *Manager) Exit(ctx context.Context, userID string) State {
	s, _ := m.dispatch(ctx, userID, Exit{})
	return s
}

func (m *Manager) dispatch(ctx context.Context, userID string, ev Event) (State, error) {
	m.mu.Lock()
	cur := State{}
	if e, ok := m.battles[userID]; ok {
		cur = e.state
	}
	next, err := Transition(cur, ev)
	if err != nil {
		m.mu.Unlock()
		return cur, err
	}
	if next.Status == StatusNotStarted {
		delete(m.battles, userID)
	} else {
		m.battles[userID] = &entry{state: next, touched: m.now()}
	}
	m.mu.Unlock()

	if cur.Status == StatusInPhase && next.Status == StatusVictory {
		m.recordVictory(ctx, userID, next)
	}
	return next, nil
}

func (m *Manager) recordVictory(ctx context.Context, userID string, s State) {
	slog.Info("Boss defeated",
		"user_id", userID,
		"challenge_id", s.Challenge.ID,
		"total_score", s.TotalScore,
	)
	if m.recorder == nil {
		return
	}
	completion := domain.ChallengeCompletion{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: s.Challenge.ID,
		TotalScore:  s.TotalScore,
		MaxScore:    s.Challenge.MaxScore(),
		CompletedAt: m.now().UTC(),
	}
	if err := m.recorder.RecordChallengeCompletion(ctx, completion); err != nil {
		slog.Error("Failed to record challenge completion",
			"user_id", userID,
			"challenge_id", s.Challenge.ID,
			"error", err,
		)
	}
}

// SweepIdle drops battles untouched for longer than ttl.
func (m *Manager) SweepIdle(ttl time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for userID, e := range m.battles {
		if now.Sub(e.touched) >= ttl {
			delete(m.battles, userID)
			n++
		}
	}
	return n
}
