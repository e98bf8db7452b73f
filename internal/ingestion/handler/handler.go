package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/runlog"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/logger"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Triggerer starts a background cycle; *coordinator.Coordinator implements it.
type Triggerer interface {
	Trigger(reason string) error
}

type Handler struct {
	trigger Triggerer
	runs    runlog.Recorder
	logger  *slog.Logger
}

func New(trigger Triggerer, runs runlog.Recorder) *Handler {
	return &Handler{
		trigger: trigger,
		runs:    runs,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/runs", h.Runs)
}

// Reindex starts a cycle and answers 202, or 409 if one is already running.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	if err := h.trigger.Trigger("http"); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, apperrors.ErrCycleInProgress) {
			log.Info("reindex rejected: cycle in progress")
		} else {
			log.Error("reindex trigger failed", "error", err)
		}
		h.writeError(w, status, apperrors.Message(err, "reindex failed"))
		return
	}
	log.Info("reindex accepted")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Runs lists recent ingestion cycles, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}
	if h.runs == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"runs": []runlog.Run{}})
		return
	}
	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.FromContext(r.Context()).Error("listing runs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
