package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stemforge/stem-forge/internal/domain"
)

// Catalog lists the active boss challenges.
type Catalog interface {
	List(completed map[string]bool) []domain.Challenge
	Get(id string) (*domain.Challenge, bool)
}

// CompletionStore reads a learner's defeated challenges.
type CompletionStore interface {
	ListChallengeCompletions(ctx context.Context, userID string) ([]domain.ChallengeCompletion, error)
}

// ChallengeHandler serves the challenge catalog.
type ChallengeHandler struct {
	catalog     Catalog
	completions CompletionStore
}

// NewChallengeHandler creates a challenge handler.
func NewChallengeHandler(catalog Catalog, completions CompletionStore) *ChallengeHandler {
	return &ChallengeHandler{catalog: catalog, completions: completions}
}

// RegisterRoutes registers challenge routes on r.
func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/boss-challenges", h.List)
	r.Get("/api/boss-challenges/{id}", h.Get)
	r.Get("/api/boss-challenges/completions", h.Completions)
}

// completed returns the learner's defeated challenge IDs. Failures degrade to
// an empty set so the catalog stays readable.
func (h *ChallengeHandler) completed(ctx context.Context, userID string) map[string]bool {
	done := make(map[string]bool)
	completions, err := h.completions.ListChallengeCompletions(ctx, userID)
	if err != nil {
		slog.Warn("Failed to load challenge completions", "user_id", userID, "error", err)
		return done
	}
	for _, c := range completions {
		done[c.ChallengeID] = true
	}
	return done
}

// List returns every challenge with the learner's completion overlay.
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, h.catalog.List(h.completed(r.Context(), userID)))
}

// Get returns one challenge by ID.
func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	c, found := h.catalog.Get(chi.URLParam(r, "id"))
	if !found {
		Error(w, http.StatusNotFound, "challenge not found")
		return
	}
	c.Completed = h.completed(r.Context(), userID)[c.ID]
	JSON(w, http.StatusOK, c)
}

// Completions returns the learner's victories, newest first.
func (h *ChallengeHandler) Completions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	completions, err := h.completions.ListChallengeCompletions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list challenge completions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list completions")
		return
	}
	if completions == nil {
		completions = []domain.ChallengeCompletion{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"completions": completions})
}
