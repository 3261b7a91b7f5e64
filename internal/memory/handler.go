package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
)

// Handler serves the memory and decision inspection endpoints.
type Handler struct {
	store    *Store
	validate *validator.Validate
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:    store,
		validate: validator.New(),
	}
}

// ListMemories handles GET /api/v1/memories. Filters: agent, types (comma
// separated), days_back, limit.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	agent := r.URL.Query().Get("agent")

	var types []Type
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, ok := ParseType(part)
			if !ok {
				api.HandleError(w, api.NewBadRequestError("unknown memory type: "+part))
				return
			}
			types = append(types, t)
		}
	}

	daysBack := queryInt(r, "days_back", DefaultDaysBack)
	limit := queryInt(r, "limit", DefaultLimit)

	records, err := h.store.RetrieveRecent(r.Context(), userID, agent, types, daysBack, limit)
	if err != nil {
		slog.Error("listing memories", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, records)
}

// ListDecisions handles GET /api/v1/decisions.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	daysBack := queryInt(r, "days_back", DefaultDaysBack)
	limit := queryInt(r, "limit", DefaultLimit)

	decisions, err := h.store.RetrieveDecisions(r.Context(), userID, daysBack, limit)
	if err != nil {
		slog.Error("listing decisions", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, decisions)
}

// RecordOutcome handles POST /api/v1/decisions/{decisionID}/outcome.
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	decisionID, err := uuid.Parse(chi.URLParam(r, "decisionID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid decision id"))
		return
	}

	var req RecordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	err = h.store.LearnOutcome(r.Context(), decisionID, userID, req.OutcomeMetrics, req.SuccessRating)
	switch {
	case err == nil:
		api.JSONMessage(w, http.StatusOK, "outcome recorded")
	case errors.Is(err, ErrDecisionNotFound):
		api.HandleError(w, api.NewNotFoundError("decision not found"))
	case errors.Is(err, ErrAlreadyEvaluated):
		api.HandleError(w, api.NewConflictError("decision outcome already recorded"))
	default:
		slog.Error("recording decision outcome", "error", err, "decision_id", decisionID)
		api.HandleError(w, api.ErrInternalServer)
	}
}

func requestUserID(r *http.Request) (uuid.UUID, bool) {
	return auth.UserID(r.Context())
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
