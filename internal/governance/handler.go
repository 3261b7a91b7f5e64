// Package governance exposes the quota and audit inspection endpoints.
package governance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pricewise-ai/pricewise/internal/api"
	"github.com/pricewise-ai/pricewise/internal/auth"
	"github.com/pricewise-ai/pricewise/internal/governance/audit"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
)

type Handler struct {
	quotaSvc  *quota.Service
	auditRepo *audit.Repository
}

func NewHandler(quotaSvc *quota.Service, auditRepo *audit.Repository) *Handler {
	return &Handler{
		quotaSvc:  quotaSvc,
		auditRepo: auditRepo,
	}
}

// GetQuota handles GET /api/v1/governance/quota: the caller's remaining run
// and completion budgets.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.quotaSvc.GetQuota(r.Context(), userID)
	if err != nil {
		slog.Error("getting quota status", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// ListAuditLogs handles GET /api/v1/governance/audit with pagination and
// event/severity/time filters.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseAuditParams(r)

	logs, total, err := h.auditRepo.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing audit logs", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func parseAuditParams(r *http.Request) audit.ListParams {
	q := r.URL.Query()
	params := audit.DefaultListParams()

	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 && size <= 100 {
		params.PageSize = size
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		params.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		params.To = &t
	}

	return params
}
