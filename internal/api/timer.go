package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/pomodoro"
)

// TimerSource hands out the per-learner timer engine.
type TimerSource interface {
	Get(ctx context.Context, userID string) (*pomodoro.Engine, error)
}

// HistoryStore reads persisted daily tallies.
type HistoryStore interface {
	LoadDailyRecord(ctx context.Context, userID, date string) (*domain.DailyRecord, error)
	ListDailyRecords(ctx context.Context, userID string, limit int) ([]domain.DailyRecord, error)
}

// TimerHandler exposes the pomodoro engine over HTTP.
type TimerHandler struct {
	timers  TimerSource
	history HistoryStore
	now     func() time.Time
}

// NewTimerHandler creates a timer handler.
func NewTimerHandler(timers TimerSource, history HistoryStore) *TimerHandler {
	return &TimerHandler{timers: timers, history: history, now: time.Now}
}

// RegisterRoutes registers timer routes on r.
func (h *TimerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/timer", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/start", h.command(func(ctx context.Context, e *pomodoro.Engine) pomodoro.Snapshot { return e.Start(ctx) }))
		r.Post("/pause", h.command(func(ctx context.Context, e *pomodoro.Engine) pomodoro.Snapshot { return e.Pause(ctx) }))
		r.Post("/reset", h.command(func(ctx context.Context, e *pomodoro.Engine) pomodoro.Snapshot { return e.Reset(ctx) }))
		r.Post("/mode", h.SwitchMode)
		r.Post("/task", h.SetTask)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/daily", h.Daily)
		r.Get("/history", h.History)
	})
}

func (h *TimerHandler) engine(w http.ResponseWriter, r *http.Request) (*pomodoro.Engine, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	e, err := h.timers.Get(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load timer", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load timer")
		return nil, false
	}
	return e, true
}

func (h *TimerHandler) command(fn func(context.Context, *pomodoro.Engine) pomodoro.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := h.engine(w, r)
		if !ok {
			return
		}
		JSON(w, http.StatusOK, fn(r.Context(), e))
	}
}

// Get returns the learner's timer snapshot.
func (h *TimerHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, e.Snapshot())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// SwitchMode selects a mode. It is ignored while the timer runs.
func (h *TimerHandler) SwitchMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := domain.ParseTimerMode(req.Mode)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, e.SwitchMode(r.Context(), mode))
}

type taskRequest struct {
	Task string `json:"task"`
}

// SetTask sets the label archived by the next completed work session.
func (h *TimerHandler) SetTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, e.SetTask(r.Context(), req.Task))
}

// GetSettings returns the learner's timer settings.
func (h *TimerHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, e.Snapshot().Settings)
}

// UpdateSettings merges the body over the current settings. Values are clamped.
func (h *TimerHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	settings := e.Snapshot().Settings
	if err := decodeJSON(r, &settings); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, e.UpdateSettings(r.Context(), settings))
}

// Daily returns the tally for ?date=YYYY-MM-DD, today by default.
func (h *TimerHandler) Daily(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.DateKey(h.now())
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rec, err := h.history.LoadDailyRecord(r.Context(), userID, date)
	if err != nil {
		slog.Error("Failed to load daily record", "user_id", userID, "date", date, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load daily record")
		return
	}
	if rec == nil {
		rec = &domain.DailyRecord{Date: date, CompletedTasks: []string{}}
	}
	JSON(w, http.StatusOK, rec)
}

// History returns recent daily tallies, newest first.
func (h *TimerHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = n
	}
	records, err := h.history.ListDailyRecords(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list daily records", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list daily records")
		return
	}
	if records == nil {
		records = []domain.DailyRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"records": records})
}
