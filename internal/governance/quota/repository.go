package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quotaColumns = "user_id, tokens_used_today, completions_today, runs_today, last_daily_reset, updated_at"

// Repository handles user_quotas and quota_violations operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreate returns the user's quota row, creating it on first sight. The
// common path is a plain read; only a user's very first check inserts.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*UserQuota, error) {
	q, err := r.get(ctx, userID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("creating user quota: %w", err)
	}

	q, err = r.get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching created user quota: %w", err)
	}
	return q, nil
}

func (r *Repository) get(ctx context.Context, userID uuid.UUID) (*UserQuota, error) {
	var q UserQuota
	err := r.pool.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&q.UserID, &q.TokensUsedToday, &q.CompletionsToday, &q.RunsToday,
		&q.LastDailyReset, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// IncrementRuns counts one started pipeline run against today's quota.
func (r *Repository) IncrementRuns(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET runs_today = runs_today + 1,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("incrementing run count: %w", err)
	}
	return nil
}

// IncrementCompletionUsage adds token usage and one completion call to
// today's counters.
func (r *Repository) IncrementCompletionUsage(ctx context.Context, userID uuid.UUID, tokens int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET tokens_used_today = tokens_used_today + $2,
		     completions_today = completions_today + 1,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID, tokens)
	if err != nil {
		return fmt.Errorf("incrementing completion usage: %w", err)
	}
	return nil
}

// ResetDailyIfStale resets daily counters if last reset was more than 24h
// ago. Returns true if a reset was performed.
func (r *Repository) ResetDailyIfStale(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET tokens_used_today = 0,
		     completions_today = 0,
		     runs_today = 0,
		     last_daily_reset = NOW(),
		     updated_at = NOW()
		 WHERE user_id = $1 AND last_daily_reset < NOW() - INTERVAL '24 hours'`, userID)
	if err != nil {
		return false, fmt.Errorf("resetting daily quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordViolation appends one row to quota_violations.
func (r *Repository) RecordViolation(ctx context.Context, userID uuid.UUID, violationType, detail string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_violations (id, user_id, violation_type, detail)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), userID, violationType, detail)
	if err != nil {
		return fmt.Errorf("recording quota violation: %w", err)
	}
	return nil
}
