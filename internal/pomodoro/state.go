// Package pomodoro implements the Work / Short-Break / Long-Break session timer.
//
// The timer is modelled as a pure transition function over State. Side effects
// (persisting the daily tally, playing cues, auto-starting the next session)
// are returned as Effect values and applied by Engine.
package pomodoro

import (
	"fmt"
	"strings"

	"github.com/stemforge/stem-forge/internal/domain"
)

// State is the full timer state owned by one engine.
type State struct {
	domain.TimerState
	Settings       domain.TimerSettings `json:"settings"`
	CurrentTask    string               `json:"currentTask"`
	CompletedTasks []string             `json:"completedTasks"`
}

// NewState returns the state a timer starts in: Work mode, full duration, paused.
func NewState(settings domain.TimerSettings, completed int) State {
	settings = settings.Clamp()
	return State{
		TimerState: domain.TimerState{
			Mode:                  domain.ModeWork,
			SecondsRemaining:      settings.Seconds(domain.ModeWork),
			CompletedWorkSessions: completed,
		},
		Settings: settings,
	}
}

// Progress returns the elapsed share of the current mode as a percentage.
func (s State) Progress() float64 {
	total := s.Settings.Seconds(s.Mode)
	if total <= 0 {
		return 0
	}
	return float64(total-s.SecondsRemaining) / float64(total) * 100
}

// Clock formats the remaining time as MM:SS.
func (s State) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.SecondsRemaining/60, s.SecondsRemaining%60)
}

// FocusMinutes returns the focus time accumulated today.
func (s State) FocusMinutes() int {
	return s.CompletedWorkSessions * s.Settings.WorkMinutes
}

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// Tick is delivered once per elapsed second.
type Tick struct{}

// Start resumes the countdown.
type Start struct{}

// Pause suspends the countdown.
type Pause struct{}

// Reset stops the timer and restores the current mode's full duration.
type Reset struct{}

// SwitchMode selects a mode while the timer is stopped.
type SwitchMode struct{ Mode domain.TimerMode }

// SetTask sets the label archived when the next work session completes.
type SetTask struct{ Label string }

// UpdateSettings replaces the timer settings.
type UpdateSettings struct{ Settings domain.TimerSettings }

func (Tick) isEvent()           {}
func (Start) isEvent()          {}
func (Pause) isEvent()          {}
func (Reset) isEvent()          {}
func (SwitchMode) isEvent()     {}
func (SetTask) isEvent()        {}
func (UpdateSettings) isEvent() {}

// Effect is a side effect requested by Transition.
type Effect interface {
	isEffect()
}

// Persist asks for the daily record to be written.
type Persist struct{}

// SaveSettings asks for the settings to be written.
type SaveSettings struct{}

// RequestPermission asks the notification sink for delivery permission.
type RequestPermission struct{}

// Cue announces the end of a session.
type Cue struct {
	Finished domain.TimerMode
	Next     domain.TimerMode
	Title    string
	Body     string
	Sound    bool
	Volume   int
	Notify   bool
}

// AutoStart asks for the next session to begin without user action.
type AutoStart struct{ Mode domain.TimerMode }

func (Persist) isEffect()           {}
func (SaveSettings) isEffect()      {}
func (RequestPermission) isEffect() {}
func (Cue) isEffect()               {}
func (AutoStart) isEffect()         {}

const cueTitle = "STEM Forge - Pomodoro Timer"

const (
	workFinishedBody  = "Great work! Time for a break."
	breakFinishedBody = "Break time is over. Ready to focus?"
)

// Transition applies e to s and returns the next state with the effects to run.
// It never fails: events that are invalid in the current state are no-ops.
func Transition(s State, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case Tick:
		if !s.IsRunning || s.SecondsRemaining <= 0 {
			return s, nil
		}
		s.SecondsRemaining--
		if s.SecondsRemaining == 0 {
			return expire(s)
		}
		return s, nil

	case Start:
		if s.IsRunning {
			return s, nil
		}
		s.IsRunning = true
		if s.Settings.NotificationsEnabled {
			return s, []Effect{RequestPermission{}}
		}
		return s, nil

	case Pause:
		s.IsRunning = false
		return s, nil

	case Reset:
		s.IsRunning = false
		s.SecondsRemaining = s.Settings.Seconds(s.Mode)
		return s, nil

	case SwitchMode:
		if s.IsRunning || !ev.Mode.Valid() {
			return s, nil
		}
		s.Mode = ev.Mode
		s.SecondsRemaining = s.Settings.Seconds(ev.Mode)
		return s, nil

	case SetTask:
		if s.CurrentTask == ev.Label {
			return s, nil
		}
		s.CurrentTask = ev.Label
		// The label survives engine eviction through the daily record.
		return s, []Effect{Persist{}}

	case UpdateSettings:
		s.Settings = ev.Settings.Clamp()
		if !s.IsRunning {
			s.SecondsRemaining = s.Settings.Seconds(s.Mode)
		}
		// Focus minutes are derived from the work duration.
		return s, []Effect{SaveSettings{}, Persist{}}
	}
	return s, nil
}

func expire(s State) (State, []Effect) {
	s.IsRunning = false
	finished := s.Mode

	var effects []Effect
	var autoStart bool
	if finished == domain.ModeWork {
		s.CompletedWorkSessions++
		if task := strings.TrimSpace(s.CurrentTask); task != "" {
			s.CompletedTasks = append(append([]string(nil), s.CompletedTasks...), task)
			s.CurrentTask = ""
		}
		s.Mode = domain.ModeShortBreak
		if s.CompletedWorkSessions%s.Settings.LongBreakInterval == 0 {
			s.Mode = domain.ModeLongBreak
		}
		autoStart = s.Settings.AutoStartBreaks
		effects = append(effects, Persist{})
	} else {
		s.Mode = domain.ModeWork
		autoStart = s.Settings.AutoStartNextWork
	}
	s.SecondsRemaining = s.Settings.Seconds(s.Mode)

	body := breakFinishedBody
	if finished == domain.ModeWork {
		body = workFinishedBody
	}
	effects = append(effects, Cue{
		Finished: finished,
		Next:     s.Mode,
		Title:    cueTitle,
		Body:     body,
		Sound:    s.Settings.SoundEnabled,
		Volume:   s.Settings.SoundVolume,
		Notify:   s.Settings.NotificationsEnabled,
	})
	if autoStart {
		effects = append(effects, AutoStart{Mode: s.Mode})
	}
	return s, effects
}
