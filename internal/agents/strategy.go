package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

const (
	// softMovePct is the default step for momentum-driven adjustments.
	softMovePct = 0.05
	// minMovePct filters out proposals too small to bother the merchant
	// with.
	minMovePct = 0.01
	// costFloorFactor keeps every proposed price above cost.
	costFloorFactor = 1.05

	// recallLimit and recallMinSimilarity bound the semantic lookup of past
	// strategies when embeddings are available.
	recallLimit         = 3
	recallMinSimilarity = 0.75
)

// StrategySynthesizer is phase 3: it folds the two phase-2 analyses and the
// merchant's decision history into concrete price moves, records the
// decision, and asks the completion service to explain the strategy.
type StrategySynthesizer struct{}

func NewStrategySynthesizer() *StrategySynthesizer { return &StrategySynthesizer{} }

func (s *StrategySynthesizer) Name() string { return StageStrategy }

func (s *StrategySynthesizer) Process(ctx context.Context, rc *RunContext) (*Result, error) {
	data := rc.Collected()
	market := rc.Market()
	perf := rc.Performance()
	if data == nil || market == nil || perf == nil {
		return nil, fmt.Errorf("strategy synthesizer requires collected data and both phase 2 analyses")
	}

	moves := s.proposeMoves(data, market, perf)

	trend := s.revenueTrend(ctx, rc, data)

	priorLearnings, err := s.priorLearnings(ctx, rc)
	if err != nil {
		return nil, err
	}
	priorLearnings = append(priorLearnings, s.recallSimilar(ctx, rc, data, trend)...)

	out := &StrategyOutput{Moves: moves}
	out.Narrative = s.synthesize(ctx, rc, data, perf, moves, trend, priorLearnings)

	decisionID, err := s.recordDecision(ctx, rc, out, trend)
	if err != nil {
		return nil, err
	}
	out.DecisionID = decisionID

	if err := s.remember(ctx, rc, out); err != nil {
		return nil, err
	}

	slog.Info("strategy synthesizer: strategy recorded",
		"user_id", rc.UserID,
		"moves", len(moves),
		"decision_id", decisionID)

	return &Result{Strategy: out, Recommendations: s.toRecommendations(moves)}, nil
}

// itemEvidence is everything known about one item when deciding its move.
type itemEvidence struct {
	item        catalog.Item
	elasticity  analytics.ElasticityResult
	momentum    analytics.MomentumResult
	competitor  *catalog.CompetitorMatch
	quantityHit bool // flagged by a quantity-drop anomaly this run
}

// proposeMoves derives bounded price moves from the combined evidence.
// Items without enough signal simply get no move; the generic fallback at
// compile time covers the empty case.
func (s *StrategySynthesizer) proposeMoves(data *CollectedData, market *MarketAnalysis, perf *PerformanceReport) []PriceMove {
	evidence := s.gatherEvidence(data, market, perf)

	var moves []PriceMove
	for _, ev := range evidence {
		if move, ok := s.decide(ev); ok {
			moves = append(moves, move)
		}
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].ItemID < moves[j].ItemID })
	return moves
}

func (s *StrategySynthesizer) gatherEvidence(data *CollectedData, market *MarketAnalysis, perf *PerformanceReport) []itemEvidence {
	elasticity := make(map[int64]analytics.ElasticityResult, len(market.Elasticities))
	for _, e := range market.Elasticities {
		elasticity[e.ItemID] = e.Result
	}
	momentum := make(map[int64]analytics.MomentumResult, len(perf.Momentum))
	for _, m := range perf.Momentum {
		momentum[m.ItemID] = m.Result
	}
	competitor := make(map[int64]catalog.CompetitorMatch)
	for _, c := range market.Competitors {
		if prev, ok := competitor[c.ItemID]; !ok || abs(c.DeltaPct) > abs(prev.DeltaPct) {
			competitor[c.ItemID] = c
		}
	}
	dropped := make(map[int64]bool)
	for _, a := range perf.Anomalies {
		if a.Type == analytics.AnomalyQuantityDrop {
			dropped[a.ItemID] = true
		}
	}

	out := make([]itemEvidence, 0, len(data.Items))
	for _, it := range data.Items {
		ev := itemEvidence{
			item:        it,
			elasticity:  elasticity[it.ID],
			momentum:    momentum[it.ID],
			quantityHit: dropped[it.ID],
		}
		if c, ok := competitor[it.ID]; ok {
			ev.competitor = &c
		}
		out = append(out, ev)
	}
	return out
}

// decide applies the pricing rules to one item's evidence. Moves are
// clamped to 15% per run and never price below cost.
func (s *StrategySynthesizer) decide(ev itemEvidence) (PriceMove, bool) {
	current := ev.item.CurrentPrice
	if current <= 0 {
		return PriceMove{}, false
	}

	declining := ev.momentum.Status == analytics.StatusOK && ev.momentum.Trend == analytics.TrendDecreasing
	rising := ev.momentum.Status == analytics.StatusOK && ev.momentum.Trend == analytics.TrendIncreasing
	sensitive := ev.elasticity.Estimated && ev.elasticity.Sensitivity == analytics.SensitivityHigh
	insensitive := ev.elasticity.Estimated && ev.elasticity.Sensitivity == analytics.SensitivityLow

	var (
		target     float64
		confidence float64
		rationale  string
	)

	switch {
	case ev.quantityHit && sensitive:
		// Demand collapsed on a price-sensitive item: cut toward demand.
		target = current * (1 - 2*softMovePct)
		confidence = 0.75
		rationale = fmt.Sprintf("%s lost most of its volume and demand is highly price sensitive (elasticity %.2f); a visible price cut should recover sales",
			ev.item.Name, ev.elasticity.Elasticity)
	case declining && sensitive:
		target = current * (1 - softMovePct)
		confidence = 0.7
		rationale = fmt.Sprintf("%s is trending down (momentum %.2f) and demand responds strongly to price (elasticity %.2f); a modest cut should stabilize volume",
			ev.item.Name, ev.momentum.Score, ev.elasticity.Elasticity)
	case rising && insensitive:
		target = current * (1 + softMovePct)
		confidence = 0.7
		rationale = fmt.Sprintf("%s is trending up (momentum %.2f) and demand barely reacts to price (elasticity %.2f); there is headroom to raise",
			ev.item.Name, ev.momentum.Score, ev.elasticity.Elasticity)
	case rising && ev.competitor != nil && ev.competitor.DeltaPct < -competitorGapPct:
		target = ev.competitor.TheirPrice * 0.98
		confidence = 0.6
		rationale = fmt.Sprintf("%s is selling well while priced %.0f%% below %s; it can close most of that gap",
			ev.item.Name, -ev.competitor.DeltaPct, ev.competitor.Competitor)
	case declining && ev.competitor != nil && ev.competitor.DeltaPct > competitorGapPct:
		target = ev.competitor.TheirPrice * 1.02
		confidence = 0.65
		rationale = fmt.Sprintf("%s is losing volume while priced %.0f%% above %s; realign with the market",
			ev.item.Name, ev.competitor.DeltaPct, ev.competitor.Competitor)
	default:
		return PriceMove{}, false
	}

	target = boundedPrice(current, target)
	if floor := ev.item.Cost * costFloorFactor; ev.item.Cost > 0 && target < floor {
		if floor >= current {
			// No room to cut without selling at a loss.
			return PriceMove{}, false
		}
		target = round2(floor)
	}

	changePct := (target - current) / current * 100
	if abs(changePct) < minMovePct*100 {
		return PriceMove{}, false
	}

	return PriceMove{
		ItemID:       ev.item.ID,
		Name:         ev.item.Name,
		CurrentPrice: current,
		TargetPrice:  target,
		ChangePct:    changePct,
		Confidence:   confidence,
		Rationale:    rationale,
	}, true
}

// revenueTrend compares this run's revenue against the previous run's
// collection snapshot. Missing or unreadable history degrades to an empty
// trend, not an error.
func (s *StrategySynthesizer) revenueTrend(ctx context.Context, rc *RunContext, data *CollectedData) string {
	since := rc.StartedAt.AddDate(0, 0, -rc.Pipeline.SnapshotLookbackDays)
	snap, err := rc.Snapshots.LatestByKind(ctx, rc.UserID, snapshots.KindDataCollection, since)
	if err != nil {
		slog.Warn("strategy synthesizer: reading prior collection snapshot", "error", err)
		return ""
	}
	if snap == nil || data.Summary == nil {
		return ""
	}

	var prior CollectedData
	if err := json.Unmarshal(snap.Payload, &prior); err != nil || prior.Summary == nil || prior.Summary.Revenue == 0 {
		return ""
	}

	deltaPct := (data.Summary.Revenue - prior.Summary.Revenue) / prior.Summary.Revenue * 100
	direction := "up"
	if deltaPct < 0 {
		direction = "down"
	}
	return fmt.Sprintf("revenue %s %.1f%% since the %s run", direction, abs(deltaPct),
		snap.CreatedAt.Format("Jan 2"))
}

// priorLearnings pulls evaluated decisions and experiment learnings from
// the memory log so the strategy does not repeat what already failed.
func (s *StrategySynthesizer) priorLearnings(ctx context.Context, rc *RunContext) ([]string, error) {
	var learnings []string

	decisions, err := rc.Memory.RetrieveDecisions(ctx, rc.UserID, rc.Pipeline.MemoryLookbackDays, 10)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if d.SuccessRating == nil {
			continue
		}
		verdict := "worked"
		if *d.SuccessRating <= 2 {
			verdict = "did not work"
		}
		learnings = append(learnings, fmt.Sprintf("past decision %q %s (rated %d/5)", d.Rationale, verdict, *d.SuccessRating))
	}

	memories, err := rc.Memory.RetrieveRecent(ctx, rc.UserID, "", []memory.Type{memory.TypeExperimentLearning},
		rc.Pipeline.MemoryLookbackDays, 5)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		learnings = append(learnings, string(m.Content))
	}
	return learnings, nil
}

// strategyInsight is the schema the completion service must answer with.
type strategyInsight struct {
	Summary  string   `json:"summary"`
	KeyRisks []string `json:"key_risks"`
}

// synthesize asks the completion service to explain the strategy, feeding
// it the moves, the revenue trend, and prior learnings. Degrades to a
// mechanical summary whenever the service is unavailable or throttled.
func (s *StrategySynthesizer) synthesize(ctx context.Context, rc *RunContext, data *CollectedData, perf *PerformanceReport, moves []PriceMove, trend string, learnings []string) string {
	fallback := s.fallbackNarrative(moves, trend)

	var b strings.Builder
	fmt.Fprintf(&b, "Data window: %s.\n", data.Quality.describe())
	if trend != "" {
		fmt.Fprintf(&b, "Trend: %s.\n", trend)
	}
	for _, m := range moves {
		fmt.Fprintf(&b, "Move: %s from %.2f to %.2f (%+.1f%%) because %s.\n",
			m.Name, m.CurrentPrice, m.TargetPrice, m.ChangePct, m.Rationale)
	}
	for _, a := range perf.Anomalies {
		fmt.Fprintf(&b, "Anomaly: %s severity %s.\n", a.Type, a.Severity)
	}
	for _, l := range learnings {
		fmt.Fprintf(&b, "Learning: %s\n", l)
	}
	b.WriteString(`Answer with a JSON object {"summary": string, "key_risks": [string]} describing the overall pricing strategy in the summary and up to three risks.`)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a pricing strategist for a small merchant. Be concrete and brief."},
		{Role: llm.RoleUser, Content: b.String()},
	}

	var insight strategyInsight
	if err := structuredCompletion(ctx, rc, StageStrategy, messages, &insight); err != nil {
		slog.Warn("strategy synthesizer: structured insight unavailable, using mechanical summary", "error", err)
		return fallback
	}
	if insight.Summary == "" {
		return fallback
	}
	if len(insight.KeyRisks) > 0 {
		return insight.Summary + " Risks: " + strings.Join(insight.KeyRisks, "; ") + "."
	}
	return insight.Summary
}

func (s *StrategySynthesizer) fallbackNarrative(moves []PriceMove, trend string) string {
	raises, cuts := 0, 0
	for _, m := range moves {
		if m.ChangePct > 0 {
			raises++
		} else {
			cuts++
		}
	}
	msg := fmt.Sprintf("Pricing strategy: %d price moves proposed (%d raises, %d cuts).", len(moves), raises, cuts)
	if trend != "" {
		msg += " " + strings.ToUpper(trend[:1]) + trend[1:] + "."
	}
	return msg
}

// recordDecision persists the strategy as one decision record so its
// outcome can be scored later.
func (s *StrategySynthesizer) recordDecision(ctx context.Context, rc *RunContext, out *StrategyOutput, trend string) (uuid.UUID, error) {
	itemIDs := make([]int64, len(out.Moves))
	var confidence float64
	for i, m := range out.Moves {
		itemIDs[i] = m.ItemID
		confidence += m.Confidence
	}
	if len(out.Moves) > 0 {
		confidence /= float64(len(out.Moves))
	} else {
		confidence = 0.3
	}

	supporting, err := json.Marshal(map[string]any{
		"moves":   out.Moves,
		"trend":   trend,
		"task_id": rc.TaskID,
	})
	if err != nil {
		return uuid.Nil, &memory.PersistenceError{Op: "decision marshal", Err: err}
	}

	dec := &memory.DecisionRecord{
		UserID:          rc.UserID,
		DecisionType:    "pricing_strategy",
		AffectedItemIDs: itemIDs,
		Rationale:       out.Narrative,
		SupportingData:  supporting,
		Confidence:      confidence,
	}
	if err := rc.Memory.RecordDecision(ctx, dec); err != nil {
		return uuid.Nil, err
	}
	return dec.ID, nil
}

// recallSimilar surfaces past strategy memories semantically close to the
// current situation. Recall is best-effort: disabled embeddings or any
// failure yields nothing.
func (s *StrategySynthesizer) recallSimilar(ctx context.Context, rc *RunContext, data *CollectedData, trend string) []string {
	if rc.LLM == nil || !rc.LLM.EmbeddingsEnabled() {
		return nil
	}

	query := fmt.Sprintf("pricing strategy for %d items, data quality %s", len(data.Items), data.Quality.Level)
	if trend != "" {
		query += ", revenue trend " + trend
	}
	embedding, err := rc.LLM.Embed(ctx, query)
	if err != nil {
		slog.Warn("strategy synthesizer: embedding recall query", "error", err)
		return nil
	}

	results, err := rc.Memory.SearchSimilar(ctx, rc.UserID, embedding, recallLimit, recallMinSimilarity)
	if err != nil {
		slog.Warn("strategy synthesizer: similarity search", "error", err)
		return nil
	}

	insights := make([]string, 0, len(results))
	for _, res := range results {
		insights = append(insights, fmt.Sprintf("similar past strategy (%.0f%% match): %s",
			res.Similarity*100, res.Record.Content))
	}
	return insights
}

// remember appends the strategy to the memory log, with an embedding when
// the provider supports it so later runs can search it semantically.
func (s *StrategySynthesizer) remember(ctx context.Context, rc *RunContext, out *StrategyOutput) error {
	meta := map[string]any{
		"task_id":     rc.TaskID,
		"decision_id": out.DecisionID.String(),
	}

	if rc.LLM != nil && rc.LLM.EmbeddingsEnabled() && out.Narrative != "" {
		embedding, err := rc.LLM.Embed(ctx, out.Narrative)
		if err != nil {
			slog.Warn("strategy synthesizer: embedding narrative failed, saving without", "error", err)
		} else {
			_, err := rc.Memory.SaveEmbedded(ctx, StageStrategy, rc.UserID, memory.TypePricingRecommendation, out, embedding, meta)
			return err
		}
	}

	_, err := rc.Memory.Save(ctx, StageStrategy, rc.UserID, memory.TypePricingRecommendation, out, meta)
	return err
}

// toRecommendations converts price moves into persisted advice. Priority
// follows the size of the move: big corrections surface first.
func (s *StrategySynthesizer) toRecommendations(moves []PriceMove) []recommendations.Recommendation {
	recs := make([]recommendations.Recommendation, 0, len(moves))
	for _, m := range moves {
		priority := recommendations.PriorityLow
		switch {
		case abs(m.ChangePct) >= 8 || m.Confidence >= 0.75:
			priority = recommendations.PriorityHigh
		case abs(m.ChangePct) >= 3 || m.Confidence >= 0.6:
			priority = recommendations.PriorityMedium
		}
		recs = append(recs, recommendations.Recommendation{
			ItemID:           m.ItemID,
			CurrentPrice:     m.CurrentPrice,
			RecommendedPrice: m.TargetPrice,
			Confidence:       m.Confidence,
			Priority:         priority,
			Rationale:        m.Rationale,
		})
	}
	return recs
}
