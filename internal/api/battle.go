package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stemforge/stem-forge/internal/battle"
)

// BattleHandler drives boss battles over HTTP.
type BattleHandler struct {
	battles *battle.Manager
	catalog Catalog
}

// NewBattleHandler creates a battle handler.
func NewBattleHandler(battles *battle.Manager, catalog Catalog) *BattleHandler {
	return &BattleHandler{battles: battles, catalog: catalog}
}

// RegisterRoutes registers battle routes on r.
func (h *BattleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/battle", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/enter", h.Enter)
		r.Post("/input", h.Input)
		r.Post("/answer", h.Answer)
		r.Post("/advance", h.Advance)
		r.Post("/exit", h.Exit)
	})
}

func battleStatus(err error) int {
	switch {
	case errors.Is(err, battle.ErrAlreadyRevealed),
		errors.Is(err, battle.ErrNotRevealed),
		errors.Is(err, battle.ErrNoActiveQuestion):
		return http.StatusConflict
	case errors.Is(err, battle.ErrInvalidChallenge):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *BattleHandler) respond(w http.ResponseWriter, s battle.State, err error) {
	if err != nil {
		Error(w, battleStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, battle.Render(s))
}

// Get returns the learner's current battle.
func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, battle.Render(h.battles.Get(userID)))
}

type enterRequest struct {
	ChallengeID string `json:"challengeId"`
}

// Enter starts a battle against an unlocked challenge.
func (h *BattleHandler) Enter(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req enterRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ChallengeID == "" {
		Error(w, http.StatusBadRequest, "challengeId is required")
		return
	}
	c, found := h.catalog.Get(req.ChallengeID)
	if !found {
		Error(w, http.StatusNotFound, "challenge not found")
		return
	}
	if !c.Unlocked {
		Error(w, http.StatusForbidden, "challenge is locked")
		return
	}
	s, err := h.battles.Enter(r.Context(), userID, c)
	h.respond(w, s, err)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// Input stores a draft answer without judging it.
func (h *BattleHandler) Input(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.battles.Input(r.Context(), userID, req.Answer)
	h.respond(w, s, err)
}

// Answer judges the submitted answer and reveals the solution.
func (h *BattleHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.battles.Submit(r.Context(), userID, req.Answer)
	h.respond(w, s, err)
}

// Advance moves to the next question, the next phase, or victory.
func (h *BattleHandler) Advance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, err := h.battles.Advance(r.Context(), userID)
	h.respond(w, s, err)
}

// Exit abandons the battle. It always succeeds.
func (h *BattleHandler) Exit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, battle.Render(h.battles.Exit(r.Context(), userID)))
}
