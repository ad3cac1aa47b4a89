package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/shared"
	_ "modernc.org/sqlite"
)

var _ Repository = (*SQLiteStore)(nil)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_records (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		completed_sessions INTEGER NOT NULL DEFAULT 0,
		focus_minutes INTEGER NOT NULL DEFAULT 0,
		tasks_json TEXT NOT NULL DEFAULT '[]',
		current_task TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE TABLE IF NOT EXISTS timer_settings (
		user_id TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS challenge_completions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		total_score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_completions_user ON challenge_completions(user_id, completed_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.ensureColumn("daily_records", "current_task", "TEXT NOT NULL DEFAULT ''")
}

// ensureColumn adds a column that databases created by older builds lack.
func (s *SQLiteStore) ensureColumn(table, column, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}

	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	slog.Info("Added database column", "table", table, "column", column)
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// LoadDailyRecord returns the tally for date, or nil, nil when none exists.
func (s *SQLiteStore) LoadDailyRecord(ctx context.Context, userID, date string) (*domain.DailyRecord, error) {
	query := `
		SELECT date, completed_sessions, focus_minutes, tasks_json, current_task
		FROM daily_records WHERE user_id = ? AND date = ?`

	rec, err := scanDailyRecord(s.db.QueryRowContext(ctx, query, userID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDailyRecord(row rowScanner) (*domain.DailyRecord, error) {
	var rec domain.DailyRecord
	var tasksJSON string
	if err := row.Scan(&rec.Date, &rec.CompletedWorkSessions, &rec.TotalFocusMinutes, &tasksJSON, &rec.CurrentTask); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan daily record: %w", err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &rec.CompletedTasks); err != nil {
		return nil, fmt.Errorf("decode completed tasks for %s: %w", rec.Date, err)
	}
	return &rec, nil
}

// SaveDailyRecord upserts the tally for rec.Date. The last writer wins.
func (s *SQLiteStore) SaveDailyRecord(ctx context.Context, userID string, rec domain.DailyRecord) error {
	tasks := rec.CompletedTasks
	if tasks == nil {
		tasks = []string{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode completed tasks: %w", err)
	}

	query := `
	INSERT INTO daily_records (user_id, date, completed_sessions, focus_minutes, tasks_json, current_task, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, date) DO UPDATE SET
		completed_sessions = excluded.completed_sessions,
		focus_minutes = excluded.focus_minutes,
		tasks_json = excluded.tasks_json,
		current_task = excluded.current_task,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "save_daily_record", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			userID, rec.Date, rec.CompletedWorkSessions, rec.TotalFocusMinutes,
			string(tasksJSON), rec.CurrentTask, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert daily record: %w", err)
		}
		return nil
	})
}

// ListDailyRecords returns up to limit records for the user, newest first.
func (s *SQLiteStore) ListDailyRecords(ctx context.Context, userID string, limit int) ([]domain.DailyRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `
		SELECT date, completed_sessions, focus_minutes, tasks_json, current_task
		FROM daily_records WHERE user_id = ?
		ORDER BY date DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query daily records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close daily record rows", "error", closeErr)
		}
	}()

	var records []domain.DailyRecord
	for rows.Next() {
		rec, err := scanDailyRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily records: %w", err)
	}
	return records, nil
}

// LoadTimerSettings returns saved settings, or nil, nil when none exist.
func (s *SQLiteStore) LoadTimerSettings(ctx context.Context, userID string) (*domain.TimerSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings_json FROM timer_settings WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan timer settings: %w", err)
	}

	// Start from defaults so fields added later keep sane values.
	settings := domain.DefaultTimerSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("decode timer settings: %w", err)
	}
	settings = settings.Clamp()
	return &settings, nil
}

// SaveTimerSettings stores settings under the user's key.
func (s *SQLiteStore) SaveTimerSettings(ctx context.Context, userID string, settings domain.TimerSettings) error {
	raw, err := json.Marshal(settings.Clamp())
	if err != nil {
		return fmt.Errorf("encode timer settings: %w", err)
	}

	query := `
	INSERT INTO timer_settings (user_id, settings_json, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		settings_json = excluded.settings_json,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "save_timer_settings", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query, userID, string(raw), time.Now().Unix()); err != nil {
			return fmt.Errorf("upsert timer settings: %w", err)
		}
		return nil
	})
}

// RecordChallengeCompletion inserts a completion row.
func (s *SQLiteStore) RecordChallengeCompletion(ctx context.Context, c domain.ChallengeCompletion) error {
	query := `
	INSERT INTO challenge_completions (id, user_id, challenge_id, total_score, max_score, completed_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, s.retry, "record_challenge_completion", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			c.ID, c.UserID, c.ChallengeID, c.TotalScore, c.MaxScore, c.CompletedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert challenge completion: %w", err)
		}
		return nil
	})
}

// ListChallengeCompletions returns the user's completions, newest first.
func (s *SQLiteStore) ListChallengeCompletions(ctx context.Context, userID string) ([]domain.ChallengeCompletion, error) {
	query := `
		SELECT id, user_id, challenge_id, total_score, max_score, completed_at
		FROM challenge_completions WHERE user_id = ?
		ORDER BY completed_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query challenge completions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close challenge completion rows", "error", closeErr)
		}
	}()

	var completions []domain.ChallengeCompletion
	for rows.Next() {
		var c domain.ChallengeCompletion
		var completedAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChallengeID, &c.TotalScore, &c.MaxScore, &completedAt); err != nil {
			return nil, fmt.Errorf("scan challenge completion: %w", err)
		}
		c.CompletedAt = time.Unix(completedAt, 0).UTC()
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenge completions: %w", err)
	}
	return completions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
