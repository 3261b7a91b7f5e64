package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

const (
	// competitorGapPct is the price gap beyond which positioning against a
	// competitor becomes worth a recommendation.
	competitorGapPct = 10.0
	// maxCorrelationTargets bounds the pairwise correlation work to the
	// highest-revenue items.
	maxCorrelationTargets = 5
)

// MarketAnalyst is one half of phase 2: price elasticity per item, item
// relationships, and positioning against competitor observations.
type MarketAnalyst struct{}

func NewMarketAnalyst() *MarketAnalyst { return &MarketAnalyst{} }

func (a *MarketAnalyst) Name() string { return StageMarket }

func (a *MarketAnalyst) Process(ctx context.Context, rc *RunContext) (*Result, error) {
	data := rc.Collected()
	if data == nil {
		return nil, fmt.Errorf("market analyst requires collected data")
	}

	analysis := &MarketAnalysis{
		Elasticities: a.elasticities(data),
		Correlations: a.correlations(data),
		Competitors:  catalog.MatchCompetitors(data.Items, data.CompetitorObs),
	}

	recs := a.recommend(data, analysis)

	analysis.Narrative = narrative(ctx, rc, StageMarket, a.prompt(data, analysis),
		a.fallbackNarrative(analysis))

	slog.Info("market analyst: analysis complete",
		"user_id", rc.UserID,
		"elasticities", len(analysis.Elasticities),
		"competitor_matches", len(analysis.Competitors),
		"recommendations", len(recs))

	if _, err := rc.Memory.Save(ctx, StageMarket, rc.UserID, memory.TypeMarketInsight, analysis, map[string]any{
		"task_id": rc.TaskID,
	}); err != nil {
		return nil, err
	}
	if err := saveSnapshot(ctx, rc, snapshots.KindMarketAnalysis, analysis); err != nil {
		return nil, err
	}

	return &Result{Market: analysis, Recommendations: recs}, nil
}

// elasticities estimates price elasticity for every item that has a sales
// series. Items without qualifying price changes keep an unestimated
// result so the strategy phase can see the gap.
func (a *MarketAnalyst) elasticities(data *CollectedData) []ItemElasticity {
	out := make([]ItemElasticity, 0, len(data.Items))
	for _, it := range data.Items {
		series := data.DailySales[it.ID]
		if len(series) == 0 {
			continue
		}
		out = append(out, ItemElasticity{
			ItemID: it.ID,
			Name:   it.Name,
			Result: analytics.Elasticity(data.PriceChanges[it.ID], series),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// correlations relates the top-revenue items to the rest of the catalog.
// Pairwise Pearson over the whole catalog would be quadratic, so only the
// highest earners get the target seat.
func (a *MarketAnalyst) correlations(data *CollectedData) map[int64][]analytics.ItemCorrelation {
	if len(data.DailySales) < 2 {
		return nil
	}

	type itemRevenue struct {
		id      int64
		revenue float64
	}
	ranked := make([]itemRevenue, 0, len(data.DailySales))
	for id, series := range data.DailySales {
		var rev float64
		for _, p := range series {
			rev += p.Revenue
		}
		ranked = append(ranked, itemRevenue{id, rev})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].revenue > ranked[j].revenue })
	if len(ranked) > maxCorrelationTargets {
		ranked = ranked[:maxCorrelationTargets]
	}

	out := make(map[int64][]analytics.ItemCorrelation)
	for _, target := range ranked {
		candidates := make(map[int64][]analytics.SalesPoint, len(data.DailySales)-1)
		for id, series := range data.DailySales {
			if id != target.id {
				candidates[id] = series
			}
		}
		correlated := analytics.Correlations(data.DailySales[target.id], candidates,
			analytics.DefaultMinOverlapDays, analytics.DefaultCorrelationThreshold)
		if len(correlated) > 0 {
			out[target.id] = correlated
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// recommend turns competitor gaps into positioning recommendations, using
// each item's elasticity to size priority and confidence.
func (a *MarketAnalyst) recommend(data *CollectedData, analysis *MarketAnalysis) []recommendations.Recommendation {
	sensitivity := make(map[int64]analytics.ElasticityResult, len(analysis.Elasticities))
	for _, e := range analysis.Elasticities {
		sensitivity[e.ItemID] = e.Result
	}

	// Per item keep only the widest gap across competitors.
	widest := make(map[int64]catalog.CompetitorMatch)
	for _, m := range analysis.Competitors {
		if prev, ok := widest[m.ItemID]; !ok || abs(m.DeltaPct) > abs(prev.DeltaPct) {
			widest[m.ItemID] = m
		}
	}

	var recs []recommendations.Recommendation
	for _, m := range widest {
		es := sensitivity[m.ItemID]
		switch {
		case m.DeltaPct > competitorGapPct:
			priority := recommendations.PriorityMedium
			confidence := 0.5
			if es.Estimated && es.Sensitivity == analytics.SensitivityHigh {
				priority = recommendations.PriorityHigh
				confidence = 0.75
			}
			recs = append(recs, recommendations.Recommendation{
				ItemID:           m.ItemID,
				CurrentPrice:     m.OurPrice,
				RecommendedPrice: boundedPrice(m.OurPrice, m.TheirPrice*1.02),
				Confidence:       confidence,
				Priority:         priority,
				Rationale: fmt.Sprintf("%s is %.0f%% above %s (%.2f vs %.2f); demand sensitivity %s",
					m.ItemName, m.DeltaPct, m.Competitor, m.OurPrice, m.TheirPrice, es.Sensitivity),
			})
		case m.DeltaPct < -competitorGapPct:
			confidence := 0.5
			if es.Estimated && es.Sensitivity == analytics.SensitivityLow {
				confidence = 0.7
			}
			recs = append(recs, recommendations.Recommendation{
				ItemID:           m.ItemID,
				CurrentPrice:     m.OurPrice,
				RecommendedPrice: boundedPrice(m.OurPrice, m.TheirPrice*0.98),
				Confidence:       confidence,
				Priority:         recommendations.PriorityMedium,
				Rationale: fmt.Sprintf("%s is %.0f%% below %s (%.2f vs %.2f); room to raise while staying cheaper",
					m.ItemName, -m.DeltaPct, m.Competitor, m.OurPrice, m.TheirPrice),
			})
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ItemID < recs[j].ItemID })
	return recs
}

func (a *MarketAnalyst) prompt(data *CollectedData, analysis *MarketAnalysis) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s.\n", data.Quality.describe())
	for _, e := range analysis.Elasticities {
		if e.Result.Estimated {
			fmt.Fprintf(&b, "Item %q elasticity %.2f (%s sensitivity).\n", e.Name, e.Result.Elasticity, e.Result.Sensitivity)
		}
	}
	for _, m := range analysis.Competitors {
		fmt.Fprintf(&b, "Item %q: ours %.2f vs %s %.2f (%+.0f%%).\n", m.ItemName, m.OurPrice, m.Competitor, m.TheirPrice, m.DeltaPct)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a pricing analyst for a small merchant. Summarize the market position in at most three sentences, plain language, no advice yet."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func (a *MarketAnalyst) fallbackNarrative(analysis *MarketAnalysis) string {
	estimated := 0
	for _, e := range analysis.Elasticities {
		if e.Result.Estimated {
			estimated++
		}
	}
	return fmt.Sprintf("Market analysis: %d items with demand series, %d with measurable price sensitivity, %d competitor price points.",
		len(analysis.Elasticities), estimated, len(analysis.Competitors))
}

// boundedPrice clamps a proposed price to at most 15% away from current,
// so no single run recommends a jarring move.
func boundedPrice(current, proposed float64) float64 {
	const maxMovePct = 0.15
	lo, hi := current*(1-maxMovePct), current*(1+maxMovePct)
	if proposed < lo {
		return round2(lo)
	}
	if proposed > hi {
		return round2(hi)
	}
	return round2(proposed)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
