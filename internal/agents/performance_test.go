package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

func perfCollected(env *testEnv) *CollectedData {
	data := &CollectedData{
		Items: []catalog.Item{
			{ID: 1, Name: "Flat White", CurrentPrice: 4.40, Cost: 1.20},
		},
		DailySales:   map[int64][]analytics.SalesPoint{},
		PriceChanges: map[int64][]analytics.PriceChange{},
		Quality:      DataQuality{Level: QualityGood},
	}
	env.rc.WithCollected(data)
	return data
}

func TestPerformanceMonitor_RequiresCollectedData(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewPerformanceMonitor().Process(context.Background(), env.rc)
	require.Error(t, err)
}

func TestPerformanceMonitor_SteadyDataHasNoAnomalies(t *testing.T) {
	env := newTestEnv(t)
	data := perfCollected(env)

	// End the series on a Sunday so the last ISO week is complete and the
	// weekly totals carry no partial-week artifact.
	end := env.rc.StartedAt
	for end.Weekday() != time.Monday {
		end = end.AddDate(0, 0, -1)
	}
	data.DailySales[1] = steadySeries(end, 60, 20, 90)

	res, err := NewPerformanceMonitor().Process(context.Background(), env.rc)
	require.NoError(t, err)
	require.NotNil(t, res.Performance)

	assert.Empty(t, res.Performance.Anomalies)
	assert.Empty(t, env.snapshots.anomalies)
	assert.Empty(t, res.Recommendations)

	require.Len(t, res.Performance.Momentum, 1)
	assert.Equal(t, analytics.TrendStable, res.Performance.Momentum[0].Result.Trend)

	require.Len(t, env.memRepo.byType(memory.TypePerformanceBaseline), 1)
	require.Len(t, env.snapshots.saved, 1)
	assert.Equal(t, snapshots.KindPerformanceBaseline, env.snapshots.saved[0].Kind)
	assert.NotEmpty(t, res.Performance.Narrative)
}

func TestPerformanceMonitor_DetectsQuantityCollapse(t *testing.T) {
	env := newTestEnv(t)
	data := perfCollected(env)
	data.DailySales[1] = collapsedSeries(env.rc.StartedAt, 60, 20, 90)

	res, err := NewPerformanceMonitor().Process(context.Background(), env.rc)
	require.NoError(t, err)

	var drop *analytics.Anomaly
	for i := range res.Performance.Anomalies {
		if res.Performance.Anomalies[i].Type == analytics.AnomalyQuantityDrop {
			drop = &res.Performance.Anomalies[i]
		}
	}
	require.NotNil(t, drop, "expected a quantity drop anomaly")
	assert.Equal(t, int64(1), drop.ItemID)
	assert.Equal(t, analytics.SeverityHigh, drop.Severity)
	assert.Equal(t, analytics.ClassificationNew, res.Performance.Classifications[anomalyKey(*drop)])

	assert.NotEmpty(t, env.snapshots.anomalies)
	assert.NotEmpty(t, env.memRepo.byType(memory.TypePerformanceAnomaly))

	var rec *recommendations.Recommendation
	for i := range res.Recommendations {
		if res.Recommendations[i].ItemID == 1 {
			rec = &res.Recommendations[i]
		}
	}
	require.NotNil(t, rec)
	assert.Equal(t, recommendations.PriorityHigh, rec.Priority)
}

func TestPerformanceMonitor_ClassifiesAgainstHistory(t *testing.T) {
	itemID := int64(1)

	env := newTestEnv(t)
	data := perfCollected(env)
	data.DailySales[1] = collapsedSeries(env.rc.StartedAt, 60, 20, 90)
	env.snapshots.prior = []snapshots.AnomalyRecord{{
		UserID:      env.rc.UserID,
		AnomalyType: analytics.AnomalyQuantityDrop,
		ItemID:      &itemID,
		Metric:      "daily_quantity",
		Severity:    analytics.SeverityHigh,
		DetectedAt:  env.rc.StartedAt.AddDate(0, 0, -10),
	}}

	res, err := NewPerformanceMonitor().Process(context.Background(), env.rc)
	require.NoError(t, err)

	key := analytics.AnomalyQuantityDrop + ":1"
	assert.Equal(t, analytics.ClassificationRecurring, res.Performance.Classifications[key])
}

func TestPerformanceMonitor_EscalatedSeverityIsWorsening(t *testing.T) {
	itemID := int64(1)

	env := newTestEnv(t)
	data := perfCollected(env)
	data.DailySales[1] = collapsedSeries(env.rc.StartedAt, 60, 20, 90)
	env.snapshots.prior = []snapshots.AnomalyRecord{{
		UserID:      env.rc.UserID,
		AnomalyType: analytics.AnomalyQuantityDrop,
		ItemID:      &itemID,
		Metric:      "daily_quantity",
		Severity:    analytics.SeverityMedium,
		DetectedAt:  env.rc.StartedAt.AddDate(0, 0, -10),
	}}

	res, err := NewPerformanceMonitor().Process(context.Background(), env.rc)
	require.NoError(t, err)

	key := analytics.AnomalyQuantityDrop + ":1"
	assert.Equal(t, analytics.ClassificationWorsening, res.Performance.Classifications[key])
}

func TestPerformanceRecommend_SustainedDecline(t *testing.T) {
	p := NewPerformanceMonitor()
	data := &CollectedData{
		Items: []catalog.Item{{ID: 2, Name: "Croissant", CurrentPrice: 3.80}},
	}
	report := &PerformanceReport{
		Momentum: []ItemMomentum{{
			ItemID: 2,
			Name:   "Croissant",
			Result: analytics.MomentumResult{
				Status: analytics.StatusOK,
				Score:  -0.62,
				Trend:  analytics.TrendDecreasing,
				Weeks:  8,
			},
		}},
	}

	recs := p.recommend(data, report)
	require.Len(t, recs, 1)
	assert.Equal(t, recommendations.PriorityMedium, recs[0].Priority)
	assert.Equal(t, int64(2), recs[0].ItemID)
	assert.Contains(t, recs[0].Rationale, "declining")
}

func TestPerformanceRecommend_AnomalyOutranksMomentum(t *testing.T) {
	p := NewPerformanceMonitor()
	data := &CollectedData{
		Items: []catalog.Item{{ID: 1, Name: "Flat White", CurrentPrice: 4.40}},
	}
	report := &PerformanceReport{
		Momentum: []ItemMomentum{{
			ItemID: 1,
			Name:   "Flat White",
			Result: analytics.MomentumResult{Status: analytics.StatusOK, Score: -0.8, Trend: analytics.TrendDecreasing, Weeks: 6},
		}},
		Anomalies: []analytics.Anomaly{{
			Type:     analytics.AnomalyQuantityDrop,
			ItemID:   1,
			Metric:   "daily_quantity",
			Severity: analytics.SeverityHigh,
			DropPct:  90,
		}},
		Classifications: map[string]string{"quantity_drop:1": analytics.ClassificationNew},
	}

	recs := p.recommend(data, report)
	require.Len(t, recs, 1, "the anomaly recommendation should absorb the momentum one")
	assert.Equal(t, recommendations.PriorityHigh, recs[0].Priority)
}
