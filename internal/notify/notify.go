// Package notify delivers best-effort session cues to learners.
//
// Delivery is never required for correctness: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Kind categorizes a notification.
type Kind string

const (
	// KindCue announces the end of a timer session.
	KindCue Kind = "cue"
	// KindPermission asks the client to request desktop notification permission.
	KindPermission Kind = "permission"
)

// Notification is a single message for one learner.
type Notification struct {
	UserID  string `json:"-"`
	Kind    Kind   `json:"kind"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Next    string `json:"next,omitempty"`
	Sound   bool   `json:"sound"`
	Volume  int    `json:"volume"`
	Desktop bool   `json:"desktop"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

// Notify delivers n to every sink, continuing past failures.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at info level.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Timer notification",
		"user_id", n.UserID,
		"kind", n.Kind,
		"mode", n.Mode,
		"next", n.Next,
		"body", n.Body,
	)
	return nil
}

// Deliver sends n and logs any failure instead of returning it.
func Deliver(ctx context.Context, sink Notifier, n Notification) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, n); err != nil {
		slog.Warn("Notification delivery failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
