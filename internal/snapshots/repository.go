package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	InsertSnapshot(ctx context.Context, snap *Snapshot) error
	// LatestByKind returns the newest snapshot of one kind not older than
	// since, or (nil, nil) when none exists in the window.
	LatestByKind(ctx context.Context, userID uuid.UUID, kind Kind, since time.Time) (*Snapshot, error)

	InsertAnomalies(ctx context.Context, records []AnomalyRecord) error
	ListAnomaliesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]AnomalyRecord, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	payload := snap.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO analysis_snapshots (id, user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, snap.ID, snap.UserID, snap.Kind, payload, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting %s snapshot: %w", snap.Kind, err)
	}
	return nil
}

func (r *postgresRepository) LatestByKind(ctx context.Context, userID uuid.UUID, kind Kind, since time.Time) (*Snapshot, error) {
	query := `
		SELECT id, user_id, kind, payload, created_at
		FROM analysis_snapshots
		WHERE user_id = $1 AND kind = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`

	snap := &Snapshot{}
	err := r.pool.QueryRow(ctx, query, userID, kind, since).Scan(
		&snap.ID, &snap.UserID, &snap.Kind, &snap.Payload, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest %s snapshot: %w", kind, err)
	}
	return snap, nil
}

func (r *postgresRepository) InsertAnomalies(ctx context.Context, records []AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO performance_anomalies (id, user_id, anomaly_type, item_id, metric, expected, actual, severity, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		batch.Queue(query,
			rec.ID, rec.UserID, rec.AnomalyType, rec.ItemID,
			rec.Metric, rec.Expected, rec.Actual, rec.Severity, rec.DetectedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting anomaly batch: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) ListAnomaliesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]AnomalyRecord, error) {
	query := `
		SELECT id, user_id, anomaly_type, item_id, metric, expected, actual, severity, detected_at
		FROM performance_anomalies
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("listing anomalies: %w", err)
	}
	defer rows.Close()

	var records []AnomalyRecord
	for rows.Next() {
		var rec AnomalyRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AnomalyType, &rec.ItemID,
			&rec.Metric, &rec.Expected, &rec.Actual, &rec.Severity, &rec.DetectedAt); err != nil {
			return nil, fmt.Errorf("scanning anomaly: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
