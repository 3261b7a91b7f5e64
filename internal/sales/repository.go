package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewise-ai/pricewise/internal/analytics"
)

type Repository interface {
	// DailySales returns per-item daily sales series since the given time,
	// each series ordered by date ascending. Days without sales are absent.
	DailySales(ctx context.Context, userID uuid.UUID, since time.Time) (map[int64][]analytics.SalesPoint, error)
	// PriceObservations returns charged unit prices ordered per item by
	// order time ascending.
	PriceObservations(ctx context.Context, userID uuid.UUID, since time.Time) ([]PriceObservation, error)
	// Summary aggregates order counts and revenue since the given time.
	Summary(ctx context.Context, userID uuid.UUID, since time.Time) (*Summary, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) DailySales(ctx context.Context, userID uuid.UUID, since time.Time) (map[int64][]analytics.SalesPoint, error) {
	query := `
		SELECT oi.item_id,
		       date_trunc('day', o.order_date) AS day,
		       SUM(oi.quantity)::float8,
		       SUM(oi.quantity * oi.unit_price)::float8
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = $1 AND o.order_date >= $2
		GROUP BY oi.item_id, day
		ORDER BY oi.item_id, day`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying daily sales: %w", err)
	}
	defer rows.Close()

	series := make(map[int64][]analytics.SalesPoint)
	for rows.Next() {
		var itemID int64
		var p analytics.SalesPoint
		if err := rows.Scan(&itemID, &p.Date, &p.Quantity, &p.Revenue); err != nil {
			return nil, fmt.Errorf("scanning daily sales row: %w", err)
		}
		series[itemID] = append(series[itemID], p)
	}
	return series, rows.Err()
}

func (r *postgresRepository) PriceObservations(ctx context.Context, userID uuid.UUID, since time.Time) ([]PriceObservation, error) {
	query := `
		SELECT oi.item_id, oi.unit_price::float8, o.order_date
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = $1 AND o.order_date >= $2
		ORDER BY oi.item_id, o.order_date, o.id`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying price observations: %w", err)
	}
	defer rows.Close()

	var obs []PriceObservation
	for rows.Next() {
		var o PriceObservation
		if err := rows.Scan(&o.ItemID, &o.UnitPrice, &o.SeenAt); err != nil {
			return nil, fmt.Errorf("scanning price observation: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (r *postgresRepository) Summary(ctx context.Context, userID uuid.UUID, since time.Time) (*Summary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(total), 0)::float8, MIN(order_date), MAX(order_date)
		FROM orders
		WHERE user_id = $1 AND order_date >= $2`

	s := &Summary{}
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(
		&s.OrderCount, &s.Revenue, &s.FirstOrder, &s.LastOrder)
	if err != nil {
		return nil, fmt.Errorf("querying sales summary: %w", err)
	}
	return s, nil
}
