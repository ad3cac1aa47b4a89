// Package battle implements the boss-challenge battle state machine.
//
// A battle walks the phases of a challenge question by question. Transition is
// a pure function; Manager keeps one battle per learner and records victories.
package battle

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stemforge/stem-forge/internal/domain"
)

// Status is the coarse battle state.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInPhase
	StatusVictory
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusInPhase:
		return "in_phase"
	case StatusVictory:
		return "victory"
	default:
		return "not_started"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "not_started":
		*s = StatusNotStarted
	case "in_phase":
		*s = StatusInPhase
	case "victory":
		*s = StatusVictory
	default:
		return fmt.Errorf("unknown battle status %q", b)
	}
	return nil
}

var (
	// ErrNoActiveQuestion is returned when no question is on screen.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrAlreadyRevealed is returned when answering a question twice.
	ErrAlreadyRevealed = errors.New("answer already revealed")
	// ErrNotRevealed is returned when advancing before answering.
	ErrNotRevealed = errors.New("answer not yet revealed")
	// ErrInvalidChallenge is returned when a challenge has no playable questions.
	ErrInvalidChallenge = errors.New("invalid challenge content")
)

// State is one learner's battle.
type State struct {
	Status            Status            `json:"status"`
	Challenge         *domain.Challenge `json:"-"`
	PhaseIndex        int               `json:"phaseIndex"`
	QuestionIndex     int               `json:"questionIndex"`
	PhaseScore        int               `json:"phaseScore"`
	TotalScore        int               `json:"totalScore"`
	PendingAnswer     string            `json:"pendingAnswer"`
	Revealed          bool              `json:"revealed"`
	LastAnswerCorrect bool              `json:"lastAnswerCorrect"`
	CompletedPhases   []string          `json:"completedPhases"`
	Completed         bool              `json:"completed"`
}

// Phase returns the active phase, or nil outside a battle.
func (s State) Phase() *domain.Phase {
	if s.Challenge == nil || s.Status == StatusNotStarted {
		return nil
	}
	return &s.Challenge.Phases[s.PhaseIndex]
}

// Question returns the active question, or nil outside a battle.
func (s State) Question() *domain.Question {
	p := s.Phase()
	if p == nil {
		return nil
	}
	return &p.Questions[s.QuestionIndex]
}

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// Enter starts a battle against a challenge.
type Enter struct{ Challenge *domain.Challenge }

// Input records the learner's draft answer.
type Input struct{ Text string }

// Submit judges an answer against the active question.
type Submit struct{ Text string }

// Advance moves past a revealed question.
type Advance struct{}

// Exit abandons the battle without keeping any progress.
type Exit struct{}

func (Enter) isEvent()   {}
func (Input) isEvent()   {}
func (Submit) isEvent()  {}
func (Advance) isEvent() {}
func (Exit) isEvent()    {}

// Normalize prepares an answer for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether candidate is the correct answer to q.
// Matching is exact after normalization for every question kind.
func Matches(q domain.Question, candidate string) bool {
	return Normalize(candidate) == Normalize(q.CorrectAnswer)
}

// Playable checks the structural invariants the state machine relies on.
func Playable(c *domain.Challenge) error {
	if c == nil {
		return fmt.Errorf("%w: nil challenge", ErrInvalidChallenge)
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("%w: challenge %s has no phases", ErrInvalidChallenge, c.ID)
	}
	for _, p := range c.Phases {
		if len(p.Questions) == 0 {
			return fmt.Errorf("%w: phase %s of %s has no questions", ErrInvalidChallenge, p.ID, c.ID)
		}
		for _, q := range p.Questions {
			if q.Kind == domain.KindMultipleChoice && len(q.Options) == 0 {
				return fmt.Errorf("%w: multiple-choice question %s has no options", ErrInvalidChallenge, q.ID)
			}
		}
	}
	return nil
}

// Transition applies e to s. On error s is returned unchanged.
func Transition(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case Enter:
		if err := Playable(ev.Challenge); err != nil {
			return s, err
		}
		return State{Status: StatusInPhase, Challenge: ev.Challenge}, nil

	case Exit:
		return State{}, nil

	case Input:
		if s.Status != StatusInPhase || s.Revealed {
			return s, ErrNoActiveQuestion
		}
		s.PendingAnswer = ev.Text
		return s, nil

	case Submit:
		if s.Status != StatusInPhase {
			return s, ErrNoActiveQuestion
		}
		if s.Revealed {
			return s, ErrAlreadyRevealed
		}
		q := s.Question()
		s.PendingAnswer = ev.Text
		s.Revealed = true
		s.LastAnswerCorrect = Matches(*q, ev.Text)
		if s.LastAnswerCorrect {
			s.PhaseScore += q.Points
			s.TotalScore += q.Points
		}
		return s, nil

	case Advance:
		if s.Status != StatusInPhase {
			return s, ErrNoActiveQuestion
		}
		if !s.Revealed {
			return s, ErrNotRevealed
		}
		phase := s.Phase()
		if s.QuestionIndex+1 < len(phase.Questions) {
			s.QuestionIndex++
			s.Revealed = false
			s.PendingAnswer = ""
			return s, nil
		}
		s.CompletedPhases = append(slices.Clone(s.CompletedPhases), phase.ID)
		if s.PhaseIndex+1 < len(s.Challenge.Phases) {
			s.PhaseIndex++
			s.QuestionIndex = 0
			s.PhaseScore = 0
			s.Revealed = false
			s.PendingAnswer = ""
			return s, nil
		}
		s.Status = StatusVictory
		s.Completed = true
		return s, nil
	}
	return s, fmt.Errorf("unknown battle event %T", e)
}

// Progress holds display metrics derived from a battle.
type Progress struct {
	// Phase is the share of the active phase reached, in percent.
	Phase float64 `json:"phaseProgress"`
	// Overall blends phase index and in-phase share without weighting phases
	// by question count.
	Overall float64 `json:"overallProgress"`
	// WeightedOverall is the share of all questions reached, in percent.
	WeightedOverall float64 `json:"weightedOverallProgress"`
}

// Progress computes display metrics for s.
func (s State) Progress() Progress {
	switch s.Status {
	case StatusVictory:
		return Progress{Phase: 100, Overall: 100, WeightedOverall: 100}
	case StatusNotStarted:
		return Progress{}
	}
	phases := s.Challenge.Phases
	phaseProgress := float64(s.QuestionIndex+1) / float64(len(phases[s.PhaseIndex].Questions)) * 100

	reached := s.QuestionIndex + 1
	for _, p := range phases[:s.PhaseIndex] {
		reached += len(p.Questions)
	}
	return Progress{
		Phase:           phaseProgress,
		Overall:         (float64(s.PhaseIndex)*100 + phaseProgress) / float64(len(phases)),
		WeightedOverall: float64(reached) / float64(s.Challenge.QuestionCount()) * 100,
	}
}
