package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logColumns = "id, user_id, event_type, severity, resource_type, resource_id, details, created_at"

// Repository reads and writes the audit_logs table.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry. Zero ID, CreatedAt and Details fields are filled
// in so callers can hand over sparse events.
func (r *Repository) Insert(ctx context.Context, entry *AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (`+logColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.EventType, entry.Severity,
		entry.ResourceType, entry.ResourceID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListByUser returns one page of the user's audit trail, newest first, along
// with the total match count.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]AuditLog, int64, error) {
	params = params.normalized()
	where, args := params.filter(userID)

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		logColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	var entries []AuditLog
	for rows.Next() {
		var entry AuditLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.EventType, &entry.Severity,
			&entry.ResourceType, &entry.ResourceID, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}
