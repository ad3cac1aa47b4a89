// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
)

// Repository defines the interface for persisting learners, timer tallies
// and challenge completions.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// LoadDailyRecord returns the timer tally for one day, or nil, nil.
	LoadDailyRecord(ctx context.Context, userID, date string) (*domain.DailyRecord, error)

	// SaveDailyRecord replaces the timer tally for rec.Date.
	SaveDailyRecord(ctx context.Context, userID string, rec domain.DailyRecord) error

	// ListDailyRecords returns up to limit records, newest first.
	ListDailyRecords(ctx context.Context, userID string, limit int) ([]domain.DailyRecord, error)

	// LoadTimerSettings returns saved settings, or nil, nil.
	LoadTimerSettings(ctx context.Context, userID string) (*domain.TimerSettings, error)

	// SaveTimerSettings replaces the user's timer settings.
	SaveTimerSettings(ctx context.Context, userID string, settings domain.TimerSettings) error

	// RecordChallengeCompletion stores a defeated challenge.
	RecordChallengeCompletion(ctx context.Context, c domain.ChallengeCompletion) error

	// ListChallengeCompletions returns the user's completions, newest first.
	ListChallengeCompletions(ctx context.Context, userID string) ([]domain.ChallengeCompletion, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// CompletedChallengeIDs returns the set of challenge IDs the user has defeated.
func CompletedChallengeIDs(ctx context.Context, repo Repository, userID string) (map[string]bool, error) {
	completions, err := repo.ListChallengeCompletions(ctx, userID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(completions))
	for _, c := range completions {
		done[c.ChallengeID] = true
	}
	return done, nil
}
