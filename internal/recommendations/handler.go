package recommendations

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
)

const defaultListLimit = 50

// Handler serves recommendation queries.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// ListRecommendations handles GET /api/v1/recommendations. Filters:
// batch_id, limit.
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var batchID *uuid.UUID
	if raw := r.URL.Query().Get("batch_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid batch_id"))
			return
		}
		batchID = &id
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	recs, err := h.repo.List(r.Context(), userID, batchID, limit)
	if err != nil {
		slog.Error("listing recommendations", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if recs == nil {
		recs = []Recommendation{}
	}

	api.JSON(w, http.StatusOK, recs)
}
