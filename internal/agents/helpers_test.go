package agents

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

type fakeCatalog struct {
	items       []catalog.Item
	competitors []catalog.CompetitorItem
	ledgerRows  int64
	err         error
}

func (f *fakeCatalog) ListItems(context.Context, uuid.UUID) ([]catalog.Item, error) {
	return f.items, f.err
}

func (f *fakeCatalog) GetItem(_ context.Context, _ uuid.UUID, itemID int64) (*catalog.Item, error) {
	for _, it := range f.items {
		if it.ID == itemID {
			return &it, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) CountPriceChanges(context.Context, uuid.UUID, time.Time) (int64, error) {
	return f.ledgerRows, f.err
}

func (f *fakeCatalog) CompetitorObservations(context.Context, uuid.UUID, time.Time) ([]catalog.CompetitorItem, error) {
	return f.competitors, f.err
}

type fakeSales struct {
	daily   map[int64][]analytics.SalesPoint
	obs     []sales.PriceObservation
	summary *sales.Summary
}

func (f *fakeSales) DailySales(context.Context, uuid.UUID, time.Time) (map[int64][]analytics.SalesPoint, error) {
	return f.daily, nil
}

func (f *fakeSales) PriceObservations(context.Context, uuid.UUID, time.Time) ([]sales.PriceObservation, error) {
	return f.obs, nil
}

func (f *fakeSales) Summary(context.Context, uuid.UUID, time.Time) (*sales.Summary, error) {
	return f.summary, nil
}

type fakeSnapshots struct {
	saved     []snapshots.Snapshot
	anomalies []snapshots.AnomalyRecord
	prior     []snapshots.AnomalyRecord
	latest    *snapshots.Snapshot

	insertErr error
}

func (f *fakeSnapshots) InsertSnapshot(_ context.Context, snap *snapshots.Snapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.saved = append(f.saved, *snap)
	return nil
}

func (f *fakeSnapshots) LatestByKind(_ context.Context, _ uuid.UUID, kind snapshots.Kind, _ time.Time) (*snapshots.Snapshot, error) {
	if f.latest != nil && f.latest.Kind == kind {
		return f.latest, nil
	}
	return nil, nil
}

func (f *fakeSnapshots) InsertAnomalies(_ context.Context, records []snapshots.AnomalyRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.anomalies = append(f.anomalies, records...)
	return nil
}

func (f *fakeSnapshots) ListAnomaliesSince(context.Context, uuid.UUID, time.Time) ([]snapshots.AnomalyRecord, error) {
	return f.prior, nil
}

// memoryRepo is a minimal in-memory memory.Repository for stage tests.
type memoryRepo struct {
	records   []memory.MemoryRecord
	decisions []memory.DecisionRecord
	insertErr error
}

func (f *memoryRepo) Insert(_ context.Context, rec *memory.MemoryRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *memoryRepo) ListByType(_ context.Context, agent string, userID uuid.UUID, memType memory.Type, since time.Time, limit int) ([]memory.MemoryRecord, error) {
	var out []memory.MemoryRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		m := f.records[i]
		if m.AgentName == agent && m.UserID == userID && m.Type == memType && !m.CreatedAt.Before(since) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *memoryRepo) ListRecent(_ context.Context, userID uuid.UUID, agent string, types []memory.Type, since time.Time, limit int) ([]memory.MemoryRecord, error) {
	var out []memory.MemoryRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		m := f.records[i]
		if m.UserID != userID || m.CreatedAt.Before(since) {
			continue
		}
		if agent != "" && m.AgentName != agent {
			continue
		}
		if len(types) > 0 {
			found := false
			for _, t := range types {
				if m.Type == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *memoryRepo) SearchSimilar(context.Context, uuid.UUID, []float32, int, float64) ([]memory.SearchResult, error) {
	return nil, nil
}

func (f *memoryRepo) InsertDecision(_ context.Context, dec *memory.DecisionRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.decisions = append(f.decisions, *dec)
	return nil
}

func (f *memoryRepo) ListDecisions(_ context.Context, userID uuid.UUID, since time.Time, limit int) ([]memory.DecisionRecord, error) {
	var out []memory.DecisionRecord
	for i := len(f.decisions) - 1; i >= 0; i-- {
		d := f.decisions[i]
		if d.UserID == userID && !d.DecisionDate.Before(since) {
			out = append(out, d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *memoryRepo) GetDecision(_ context.Context, id, userID uuid.UUID) (*memory.DecisionRecord, error) {
	for _, d := range f.decisions {
		if d.ID == id && d.UserID == userID {
			dec := d
			return &dec, nil
		}
	}
	return nil, nil
}

func (f *memoryRepo) UpdateDecisionOutcome(context.Context, uuid.UUID, uuid.UUID, json.RawMessage, int, time.Time) (int64, error) {
	return 0, nil
}

func (f *memoryRepo) byType(memType memory.Type) []memory.MemoryRecord {
	var out []memory.MemoryRecord
	for _, m := range f.records {
		if m.Type == memType {
			out = append(out, m)
		}
	}
	return out
}

// testEnv bundles the fakes behind one RunContext.
type testEnv struct {
	catalog   *fakeCatalog
	sales     *fakeSales
	snapshots *fakeSnapshots
	memRepo   *memoryRepo
	rc        *RunContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		catalog:   &fakeCatalog{},
		sales:     &fakeSales{daily: map[int64][]analytics.SalesPoint{}, summary: &sales.Summary{}},
		snapshots: &fakeSnapshots{},
		memRepo:   &memoryRepo{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.rc = &RunContext{
		UserID:    uuid.New(),
		TaskID:    uuid.NewString(),
		BatchID:   uuid.New(),
		StartedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Catalog:   env.catalog,
		Sales:     env.sales,
		Memory:    memory.NewStore(env.memRepo, logger),
		Snapshots: env.snapshots,
		Pipeline: config.PipelineConfig{
			SalesLookbackDays:    90,
			MemoryLookbackDays:   30,
			SnapshotLookbackDays: 30,
			BaselineDays:         30,
		},
	}
	return env
}

// steadySeries builds days of constant sales ending the day before anchor.
func steadySeries(anchor time.Time, days int, qty, revenue float64) []analytics.SalesPoint {
	out := make([]analytics.SalesPoint, 0, days)
	for i := days; i >= 1; i-- {
		d := anchor.AddDate(0, 0, -i)
		out = append(out, analytics.SalesPoint{
			Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			Quantity: qty,
			Revenue:  revenue,
		})
	}
	return out
}

// flatRange builds one point per day for days starting at start.
func flatRange(start time.Time, days int, qty, revenue float64) []analytics.SalesPoint {
	out := make([]analytics.SalesPoint, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		out = append(out, analytics.SalesPoint{
			Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
			Quantity: qty,
			Revenue:  revenue,
		})
	}
	return out
}

// collapsedSeries is steady history whose last week falls to nearly nothing.
func collapsedSeries(anchor time.Time, days int, qty, revenue float64) []analytics.SalesPoint {
	series := steadySeries(anchor, days, qty, revenue)
	for i := range series {
		if !series[i].Date.Before(anchor.AddDate(0, 0, -recentWindowDays)) {
			series[i].Quantity = qty * 0.1
			series[i].Revenue = revenue * 0.1
		}
	}
	return series
}
