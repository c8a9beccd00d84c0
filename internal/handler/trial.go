package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/store"
	"github.com/dukerupert/prospector/internal/trial"
)

type TrialHandler struct {
	trials *trial.Manager
	logger *slog.Logger
}

func NewTrialHandler(tm *trial.Manager, logger *slog.Logger) *TrialHandler {
	return &TrialHandler{trials: tm, logger: logger}
}

// Start begins the caller's trial.
func (h *TrialHandler) Start(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	sub, err := h.trials.Start(r.Context(), ac.UserID, ac.Email)
	if errors.Is(err, store.ErrAlreadyExists) {
		writeError(w, http.StatusConflict, "trial already started")
		return
	}
	if err != nil {
		h.logger.Error("start trial", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start trial")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Restore is the support operation that puts a user back on a fresh trial.
func (h *TrialHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	sub, err := h.trials.Restore(r.Context(), userID)
	if err != nil {
		h.logger.Error("restore trial", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restore trial")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
