package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/metrics"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

const (
	// recentWindowDays is the "now" window a quantity drop is judged over.
	recentWindowDays = 7
	// minRevenueBaselineDays guards the revenue z-score against baselines
	// too thin to define normal.
	minRevenueBaselineDays = 7
	// priorAnomalyLookbackDays is how far back classification looks for
	// recurring patterns.
	priorAnomalyLookbackDays = 90
	// strongDeclineScore marks momentum bad enough to act on.
	strongDeclineScore = -0.5
)

// PerformanceMonitor is the other half of phase 2: per-item sales trends,
// seasonal patterns, and anomalies classified against detection history.
type PerformanceMonitor struct{}

func NewPerformanceMonitor() *PerformanceMonitor { return &PerformanceMonitor{} }

func (p *PerformanceMonitor) Name() string { return StagePerformance }

func (p *PerformanceMonitor) Process(ctx context.Context, rc *RunContext) (*Result, error) {
	data := rc.Collected()
	if data == nil {
		return nil, fmt.Errorf("performance monitor requires collected data")
	}

	report := &PerformanceReport{
		Momentum:    p.momentum(data),
		Seasonality: p.seasonality(data),
	}
	report.Anomalies = p.detectAnomalies(data, rc.Pipeline.BaselineDays, rc.StartedAt)

	if len(report.Anomalies) > 0 {
		if err := p.classifyAndPersist(ctx, rc, report); err != nil {
			return nil, err
		}
	}

	recs := p.recommend(data, report)

	report.Narrative = narrative(ctx, rc, StagePerformance, p.prompt(report),
		p.fallbackNarrative(report))

	slog.Info("performance monitor: report complete",
		"user_id", rc.UserID,
		"items_tracked", len(report.Momentum),
		"anomalies", len(report.Anomalies),
		"recommendations", len(recs))

	if _, err := rc.Memory.Save(ctx, StagePerformance, rc.UserID, memory.TypePerformanceBaseline, report, map[string]any{
		"task_id": rc.TaskID,
	}); err != nil {
		return nil, err
	}
	if err := saveSnapshot(ctx, rc, snapshots.KindPerformanceBaseline, report); err != nil {
		return nil, err
	}

	return &Result{Performance: report, Recommendations: recs}, nil
}

func (p *PerformanceMonitor) momentum(data *CollectedData) []ItemMomentum {
	out := make([]ItemMomentum, 0, len(data.Items))
	for _, it := range data.Items {
		series := data.DailySales[it.ID]
		if len(series) == 0 {
			continue
		}
		out = append(out, ItemMomentum{
			ItemID: it.ID,
			Name:   it.Name,
			Result: analytics.Momentum(series, analytics.DefaultMomentumWindowDays),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// seasonality keeps only detected patterns; "no pattern" is not worth
// carrying through the rest of the run.
func (p *PerformanceMonitor) seasonality(data *CollectedData) []ItemSeasonality {
	var out []ItemSeasonality
	for id, series := range data.DailySales {
		res := analytics.Seasonality(series, analytics.DefaultSeasonalityWindowDays)
		if res.Detected {
			out = append(out, ItemSeasonality{ItemID: id, Result: res})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// detectAnomalies runs the merchant-level revenue z-score and the per-item
// quantity-drop check. Detection windows anchor on the run start, not on
// wall clock, so reruns over the same data reproduce the same findings.
func (p *PerformanceMonitor) detectAnomalies(data *CollectedData, baselineDays int, now time.Time) []analytics.Anomaly {
	var found []analytics.Anomaly

	if a, ok := p.revenueAnomaly(data, baselineDays); ok {
		a.DetectedAt = now
		found = append(found, a)
	}

	recentCut := now.AddDate(0, 0, -recentWindowDays)
	baselineCut := recentCut.AddDate(0, 0, -baselineDays)
	for _, it := range data.Items {
		series := data.DailySales[it.ID]
		if len(series) == 0 {
			continue
		}
		var recent, baseline []analytics.SalesPoint
		for _, pt := range series {
			switch {
			case pt.Date.Before(baselineCut):
			case pt.Date.Before(recentCut):
				baseline = append(baseline, pt)
			default:
				recent = append(recent, pt)
			}
		}
		if a, ok := analytics.DetectQuantityDrop(recent, baseline); ok {
			a.ItemID = it.ID
			a.DetectedAt = now
			found = append(found, a)
		}
	}
	return found
}

// revenueAnomaly compares the latest sales day's total revenue against the
// preceding baseline window.
func (p *PerformanceMonitor) revenueAnomaly(data *CollectedData, baselineDays int) (analytics.Anomaly, bool) {
	revenueByDay := make(map[time.Time]float64)
	for _, series := range data.DailySales {
		for _, pt := range series {
			revenueByDay[pt.Date] += pt.Revenue
		}
	}
	if len(revenueByDay) == 0 {
		return analytics.Anomaly{}, false
	}

	days := make([]time.Time, 0, len(revenueByDay))
	for d := range revenueByDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	last := days[len(days)-1]
	cut := last.AddDate(0, 0, -baselineDays)
	var baseline []float64
	for _, d := range days[:len(days)-1] {
		if !d.Before(cut) {
			baseline = append(baseline, revenueByDay[d])
		}
	}
	if len(baseline) < minRevenueBaselineDays {
		return analytics.Anomaly{}, false
	}
	return analytics.DetectRevenueAnomaly(baseline, revenueByDay[last])
}

// classifyAndPersist matches fresh anomalies against recorded history,
// stores the new detections, and counts them.
func (p *PerformanceMonitor) classifyAndPersist(ctx context.Context, rc *RunContext, report *PerformanceReport) error {
	since := rc.StartedAt.AddDate(0, 0, -priorAnomalyLookbackDays)
	priorRecords, err := rc.Snapshots.ListAnomaliesSince(ctx, rc.UserID, since)
	if err != nil {
		return &memory.PersistenceError{Op: "anomaly history read", Err: err}
	}
	prior := make([]analytics.Anomaly, len(priorRecords))
	for i, rec := range priorRecords {
		prior[i] = rec.Anomaly()
	}

	report.Classifications = make(map[string]string, len(report.Anomalies))
	records := make([]snapshots.AnomalyRecord, 0, len(report.Anomalies))
	for _, a := range report.Anomalies {
		report.Classifications[anomalyKey(a)] = analytics.ClassifyAnomaly(a, prior)
		records = append(records, snapshots.NewAnomalyRecord(rc.UserID, a))
		metrics.AnomaliesDetectedTotal.WithLabelValues(a.Severity).Inc()
	}

	if err := rc.Snapshots.InsertAnomalies(ctx, records); err != nil {
		return &memory.PersistenceError{Op: "anomaly save", Err: err}
	}

	for _, a := range report.Anomalies {
		if _, err := rc.Memory.Save(ctx, StagePerformance, rc.UserID, memory.TypePerformanceAnomaly, a, map[string]any{
			"task_id":        rc.TaskID,
			"classification": report.Classifications[anomalyKey(a)],
		}); err != nil {
			return err
		}
	}
	return nil
}

func anomalyKey(a analytics.Anomaly) string {
	if a.ItemID != 0 {
		return fmt.Sprintf("%s:%d", a.Type, a.ItemID)
	}
	return a.Type
}

// recommend flags items that need pricing attention: hard quantity drops
// first, then strongly declining momentum.
func (p *PerformanceMonitor) recommend(data *CollectedData, report *PerformanceReport) []recommendations.Recommendation {
	names := make(map[int64]string, len(data.Items))
	prices := make(map[int64]float64, len(data.Items))
	for _, it := range data.Items {
		names[it.ID] = it.Name
		prices[it.ID] = it.CurrentPrice
	}

	var recs []recommendations.Recommendation
	for _, a := range report.Anomalies {
		if a.Type != analytics.AnomalyQuantityDrop {
			continue
		}
		priority := recommendations.PriorityMedium
		confidence := 0.6
		if a.Severity == analytics.SeverityHigh {
			priority = recommendations.PriorityHigh
			confidence = 0.8
		}
		class := report.Classifications[anomalyKey(a)]
		recs = append(recs, recommendations.Recommendation{
			ItemID:       a.ItemID,
			CurrentPrice: prices[a.ItemID],
			Confidence:   confidence,
			Priority:     priority,
			Rationale: fmt.Sprintf("%s sales fell %.0f%% against its own baseline (%s anomaly); review price and placement",
				names[a.ItemID], a.DropPct, class),
		})
	}

	flagged := make(map[int64]bool, len(recs))
	for _, r := range recs {
		flagged[r.ItemID] = true
	}
	for _, m := range report.Momentum {
		if flagged[m.ItemID] || m.Result.Status != analytics.StatusOK {
			continue
		}
		if m.Result.Trend == analytics.TrendDecreasing && m.Result.Score <= strongDeclineScore {
			recs = append(recs, recommendations.Recommendation{
				ItemID:       m.ItemID,
				CurrentPrice: prices[m.ItemID],
				Confidence:   0.55,
				Priority:     recommendations.PriorityMedium,
				Rationale: fmt.Sprintf("%s shows sustained declining sales (momentum %.2f over %d weeks); consider a promotional price",
					names[m.ItemID], m.Result.Score, m.Result.Weeks),
			})
		}
	}
	return recs
}

func (p *PerformanceMonitor) prompt(report *PerformanceReport) []llm.Message {
	var b strings.Builder
	for _, m := range report.Momentum {
		if m.Result.Status == analytics.StatusOK {
			fmt.Fprintf(&b, "Item %q trend %s (score %.2f).\n", m.Name, m.Result.Trend, m.Result.Score)
		}
	}
	for _, a := range report.Anomalies {
		fmt.Fprintf(&b, "Anomaly: %s on %s, severity %s, classified %s.\n",
			a.Type, a.Metric, a.Severity, report.Classifications[anomalyKey(a)])
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a sales performance analyst for a small merchant. Summarize the performance picture in at most three sentences, plain language."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func (p *PerformanceMonitor) fallbackNarrative(report *PerformanceReport) string {
	declining := 0
	for _, m := range report.Momentum {
		if m.Result.Trend == analytics.TrendDecreasing {
			declining++
		}
	}
	return fmt.Sprintf("Performance report: %d items tracked, %d declining, %d seasonal patterns, %d anomalies.",
		len(report.Momentum), declining, len(report.Seasonality), len(report.Anomalies))
}
