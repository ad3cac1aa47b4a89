package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar key used for daily timer records.
const DateLayout = "2006-01-02"

// TimerMode is one of the three pomodoro phases.
type TimerMode string

const (
	ModeWork       TimerMode = "work"
	ModeShortBreak TimerMode = "shortBreak"
	ModeLongBreak  TimerMode = "longBreak"
)

// Valid reports whether m is a known mode.
func (m TimerMode) Valid() bool {
	switch m {
	case ModeWork, ModeShortBreak, ModeLongBreak:
		return true
	}
	return false
}

// Title returns the label shown for the mode.
func (m TimerMode) Title() string {
	switch m {
	case ModeShortBreak:
		return "Short Break"
	case ModeLongBreak:
		return "Long Break"
	default:
		return "Focus Time"
	}
}

// ParseTimerMode parses a mode name as sent by clients.
func ParseTimerMode(raw string) (TimerMode, error) {
	m := TimerMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("unknown timer mode %q", raw)
	}
	return m, nil
}

// TimerSettings holds per-user pomodoro configuration.
type TimerSettings struct {
	WorkMinutes          int  `json:"workMinutes"`
	ShortBreakMinutes    int  `json:"shortBreakMinutes"`
	LongBreakMinutes     int  `json:"longBreakMinutes"`
	LongBreakInterval    int  `json:"longBreakInterval"`
	AutoStartBreaks      bool `json:"autoStartBreaks"`
	AutoStartNextWork    bool `json:"autoStartNextWork"`
	SoundEnabled         bool `json:"soundEnabled"`
	SoundVolume          int  `json:"soundVolume"`
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// DefaultTimerSettings returns the settings a new user starts with.
func DefaultTimerSettings() TimerSettings {
	return TimerSettings{
		WorkMinutes:          25,
		ShortBreakMinutes:    5,
		LongBreakMinutes:     15,
		LongBreakInterval:    4,
		AutoStartBreaks:      true,
		AutoStartNextWork:    false,
		SoundEnabled:         true,
		SoundVolume:          50,
		NotificationsEnabled: true,
	}
}

// Clamp returns a copy of s with every numeric field forced into its allowed range.
func (s TimerSettings) Clamp() TimerSettings {
	s.WorkMinutes = clamp(s.WorkMinutes, 1, 60)
	s.ShortBreakMinutes = clamp(s.ShortBreakMinutes, 1, 30)
	s.LongBreakMinutes = clamp(s.LongBreakMinutes, 5, 60)
	s.LongBreakInterval = clamp(s.LongBreakInterval, 2, 8)
	s.SoundVolume = clamp(s.SoundVolume, 0, 100)
	return s
}

// Seconds returns the configured length of mode m in whole seconds.
func (s TimerSettings) Seconds(m TimerMode) int {
	switch m {
	case ModeShortBreak:
		return s.ShortBreakMinutes * 60
	case ModeLongBreak:
		return s.LongBreakMinutes * 60
	default:
		return s.WorkMinutes * 60
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TimerState is the observable state of a pomodoro timer.
type TimerState struct {
	Mode                  TimerMode `json:"mode"`
	SecondsRemaining      int       `json:"secondsRemaining"`
	IsRunning             bool      `json:"isRunning"`
	CompletedWorkSessions int       `json:"completedWorkSessions"`
}

// DailyRecord is the persisted per-day pomodoro tally.
type DailyRecord struct {
	Date                  string   `json:"date"`
	CompletedWorkSessions int      `json:"completedWorkSessions"`
	TotalFocusMinutes     int      `json:"totalFocusMinutes"`
	CompletedTasks        []string `json:"completedTasks"`
	CurrentTask           string   `json:"currentTask,omitempty"`
}

// DateKey formats t as a daily record key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
