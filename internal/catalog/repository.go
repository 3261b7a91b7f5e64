package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	ListItems(ctx context.Context, userID uuid.UUID) ([]Item, error)
	GetItem(ctx context.Context, userID uuid.UUID, itemID int64) (*Item, error)
	CountPriceChanges(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	CompetitorObservations(ctx context.Context, userID uuid.UUID, since time.Time) ([]CompetitorItem, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) ListItems(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, user_id, name, category, current_price::float8, cost::float8, created_at, updated_at
		FROM items
		WHERE user_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.Name, &it.Category,
			&it.CurrentPrice, &it.Cost, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *postgresRepository) GetItem(ctx context.Context, userID uuid.UUID, itemID int64) (*Item, error) {
	query := `
		SELECT id, user_id, name, category, current_price::float8, cost::float8, created_at, updated_at
		FROM items
		WHERE user_id = $1 AND id = $2`

	it := &Item{}
	err := r.pool.QueryRow(ctx, query, userID, itemID).Scan(
		&it.ID, &it.UserID, &it.Name, &it.Category,
		&it.CurrentPrice, &it.Cost, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying item by id: %w", err)
	}
	return it, nil
}

func (r *postgresRepository) CountPriceChanges(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM price_history WHERE user_id = $1 AND changed_at >= $2`

	var count int64
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting price changes: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CompetitorObservations(ctx context.Context, userID uuid.UUID, since time.Time) ([]CompetitorItem, error) {
	query := `
		SELECT id, user_id, competitor, item_name, price::float8, category, observed_at
		FROM competitor_items
		WHERE user_id = $1 AND observed_at >= $2
		ORDER BY observed_at DESC`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying competitor observations: %w", err)
	}
	defer rows.Close()

	var obs []CompetitorItem
	for rows.Next() {
		var c CompetitorItem
		if err := rows.Scan(&c.ID, &c.UserID, &c.Competitor, &c.ItemName,
			&c.Price, &c.Category, &c.ObservedAt); err != nil {
			return nil, fmt.Errorf("scanning competitor row: %w", err)
		}
		obs = append(obs, c)
	}
	return obs, rows.Err()
}
