package orchestrator

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
)

// Handler serves the pricing run endpoints.
type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// StartRun handles POST /api/v1/pricing/runs. Starting while a run is in
// flight returns that run's status instead of a duplicate; quota exhaustion
// maps to 429.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	status, err := h.orch.StartRun(r.Context(), userID)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, quota.ErrRunQuotaExceeded):
			api.HandleError(w, api.ErrQuotaExceeded)
		case errors.As(err, &verr):
			api.HandleError(w, api.NewValidationError(verr.Error()))
		default:
			slog.Error("starting pricing run", "error", err, "user_id", userID)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusAccepted, status)
}

// GetRun handles GET /api/v1/pricing/runs/{taskID}. A task belonging to a
// different user reads as not found.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	status, found := h.orch.Tracker().Get(chi.URLParam(r, "taskID"))
	if !found || status.UserID != userID {
		api.HandleError(w, api.ErrTaskNotFound)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// CancelRun handles DELETE /api/v1/pricing/runs/{taskID}.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}

	status, found := h.orch.Tracker().Get(chi.URLParam(r, "taskID"))
	if !found || status.UserID != userID {
		api.HandleError(w, api.ErrTaskNotFound)
		return
	}
	if status.State.Terminal() {
		api.HandleError(w, api.NewConflictError("run already finished"))
		return
	}

	if !h.orch.Cancel(userID) {
		api.HandleError(w, api.NewConflictError("run already finished"))
		return
	}
	api.JSONMessage(w, http.StatusAccepted, "cancellation requested")
}

func requestUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
