package recommendations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	InsertBatch(ctx context.Context, recs []Recommendation) error
	// List returns a user's recommendations newest first, optionally scoped
	// to one batch.
	List(ctx context.Context, userID uuid.UUID, batchID *uuid.UUID, limit int) ([]Recommendation, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) InsertBatch(ctx context.Context, recs []Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	query := `
		INSERT INTO pricing_recommendations (id, batch_id, user_id, item_id, current_price, recommended_price, confidence, priority, rationale, reevaluation_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(query,
			rec.ID, rec.BatchID, rec.UserID, nullableItemID(rec.ItemID),
			rec.CurrentPrice, rec.RecommendedPrice, rec.Confidence,
			rec.Priority, rec.Rationale, rec.ReevaluationDate, rec.CreatedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range recs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting recommendation batch: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) List(ctx context.Context, userID uuid.UUID, batchID *uuid.UUID, limit int) ([]Recommendation, error) {
	query := `
		SELECT id, batch_id, user_id, item_id, current_price, recommended_price, confidence, priority, rationale, reevaluation_date, created_at
		FROM pricing_recommendations
		WHERE user_id = $1 AND ($2::uuid IS NULL OR batch_id = $2)
		ORDER BY created_at DESC, priority
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userID, batchID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var rec Recommendation
		var itemID *int64
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.UserID, &itemID,
			&rec.CurrentPrice, &rec.RecommendedPrice, &rec.Confidence,
			&rec.Priority, &rec.Rationale, &rec.ReevaluationDate, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		if itemID != nil {
			rec.ItemID = *itemID
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullableItemID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
