package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

// Collector is phase 1: it loads everything the analysis phases read, in
// one pass, and grades how much signal the window carries. Later stages
// never touch the order tables directly.
type Collector struct{}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Name() string { return StageCollector }

func (c *Collector) Process(ctx context.Context, rc *RunContext) (*Result, error) {
	lookback := rc.Pipeline.SalesLookbackDays
	since := rc.StartedAt.AddDate(0, 0, -lookback)

	items, err := rc.Catalog.ListItems(ctx, rc.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	daily, err := rc.Sales.DailySales(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("loading daily sales: %w", err)
	}

	obs, err := rc.Sales.PriceObservations(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("loading price observations: %w", err)
	}
	changes := sales.PriceChanges(obs)

	competitorObs, err := rc.Catalog.CompetitorObservations(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("loading competitor observations: %w", err)
	}

	ledgerRows, err := rc.Catalog.CountPriceChanges(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("counting price changes: %w", err)
	}

	summary, err := rc.Sales.Summary(ctx, rc.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("loading sales summary: %w", err)
	}

	data := &CollectedData{
		Items:           items,
		DailySales:      daily,
		PriceChanges:    changes,
		CompetitorObs:   competitorObs,
		Summary:         summary,
		PriceChangeRows: ledgerRows,
	}
	data.Quality = assessQuality(data, lookback, rc.StartedAt)

	slog.Info("collector: window loaded",
		"user_id", rc.UserID,
		"items", len(items),
		"items_with_sales", data.Quality.ItemsWithSales,
		"orders", data.Quality.OrderCount,
		"quality", data.Quality.Level)

	if _, err := rc.Memory.Save(ctx, StageCollector, rc.UserID, memory.TypeDataQuality, data.Quality, map[string]any{
		"task_id":       rc.TaskID,
		"lookback_days": lookback,
	}); err != nil {
		return nil, err
	}

	if err := saveSnapshot(ctx, rc, snapshots.KindDataCollection, data); err != nil {
		return nil, err
	}

	return &Result{Collected: data}, nil
}

// assessQuality grades the collected window. "poor" means the analysis
// phases have nothing to work with; "partial" means some estimators will
// come back insufficient; "good" means full signal.
func assessQuality(data *CollectedData, lookbackDays int, now time.Time) DataQuality {
	q := DataQuality{
		ItemCount:      len(data.Items),
		HasCompetitors: len(data.CompetitorObs) > 0,
	}
	if data.Summary != nil {
		q.OrderCount = data.Summary.OrderCount
		if data.Summary.FirstOrder != nil {
			q.DaysCovered = int(now.Sub(*data.Summary.FirstOrder).Hours() / 24)
			if q.DaysCovered > lookbackDays {
				q.DaysCovered = lookbackDays
			}
		}
	}
	for _, series := range data.DailySales {
		if len(series) > 0 {
			q.ItemsWithSales++
		}
	}

	switch {
	case q.ItemCount == 0:
		q.Level = QualityPoor
		q.Issues = append(q.Issues, "catalog is empty")
	case q.OrderCount == 0:
		q.Level = QualityPoor
		q.Issues = append(q.Issues, "no orders in the analysis window")
	default:
		q.Level = QualityGood
		if q.DaysCovered < 14 {
			q.Level = QualityPartial
			q.Issues = append(q.Issues, fmt.Sprintf("only %d days of order history", q.DaysCovered))
		}
		if q.ItemsWithSales*2 < q.ItemCount {
			q.Level = QualityPartial
			q.Issues = append(q.Issues, "fewer than half the items have sales")
		}
		if !q.HasCompetitors {
			q.Level = QualityPartial
			q.Issues = append(q.Issues, "no competitor observations")
		}
	}
	return q
}

// saveSnapshot persists a phase snapshot, folding failures into the same
// fatal persistence taxonomy the memory store uses.
func saveSnapshot(ctx context.Context, rc *RunContext, kind snapshots.Kind, payload any) error {
	snap, err := snapshots.New(rc.UserID, kind, payload)
	if err != nil {
		return &memory.PersistenceError{Op: "snapshot marshal", Err: err}
	}
	if err := rc.Snapshots.InsertSnapshot(ctx, snap); err != nil {
		return &memory.PersistenceError{Op: "snapshot save", Err: err}
	}
	return nil
}

// describe renders the quality grade as one line for stage prompts.
func (q DataQuality) describe() string {
	msg := fmt.Sprintf("catalog of %d items, %d with sales, %d orders over %d days, quality %s",
		q.ItemCount, q.ItemsWithSales, q.OrderCount, q.DaysCovered, q.Level)
	for _, issue := range q.Issues {
		msg += "; " + issue
	}
	return msg
}
