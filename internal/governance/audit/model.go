// Package audit persists the audit trail. Events arrive over NATS so that
// writes never sit on a request or pipeline hot path.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types recorded in the audit trail.
const (
	EventRunStarted      = "run_started"
	EventRunCompleted    = "run_completed"
	EventRunFailed       = "run_failed"
	EventRunCancelled    = "run_cancelled"
	EventOutcomeRecorded = "outcome_recorded"
	EventQuotaViolation  = "quota_violation"
)

// Pagination bounds for audit queries.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AuditLog matches the audit_logs table schema.
type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	EventType    string          `json:"event_type"`
	Severity     string          `json:"severity"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	EventType string
	Severity  string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DefaultListParams returns the first page with default sizing.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: defaultPageSize,
	}
}

// normalized clamps pagination to supported bounds.
func (p ListParams) normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > maxPageSize {
		p.PageSize = defaultPageSize
	}
	return p
}

// filter renders the WHERE clause for this query. Placeholder numbering
// starts at $1 with the user id; every active filter claims the next slot.
func (p ListParams) filter(userID uuid.UUID) (string, []any) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(format string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(format, len(args)))
	}

	if p.EventType != "" {
		add("event_type = $%d", p.EventType)
	}
	if p.Severity != "" {
		add("severity = $%d", p.Severity)
	}
	if p.From != nil {
		add("created_at >= $%d", *p.From)
	}
	if p.To != nil {
		add("created_at <= $%d", *p.To)
	}
	return strings.Join(where, " AND "), args
}
