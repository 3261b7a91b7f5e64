package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

func sensitiveEvidence(item catalog.Item) itemEvidence {
	return itemEvidence{
		item:       item,
		elasticity: analytics.ElasticityResult{Estimated: true, Elasticity: 2.1, Sensitivity: analytics.SensitivityHigh},
		momentum:   analytics.MomentumResult{Status: analytics.StatusOK, Score: -0.3, Trend: analytics.TrendDecreasing},
	}
}

func TestStrategyDecide_CutsDecliningSensitiveItem(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := sensitiveEvidence(catalog.Item{ID: 1, Name: "Flat White", CurrentPrice: 10.00, Cost: 2.00})

	move, ok := s.decide(ev)
	require.True(t, ok)
	assert.Equal(t, 9.50, move.TargetPrice)
	assert.InDelta(t, -5.0, move.ChangePct, 0.001)
	assert.Equal(t, 0.7, move.Confidence)
}

func TestStrategyDecide_CollapsedDemandCutsDeeper(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := sensitiveEvidence(catalog.Item{ID: 1, Name: "Flat White", CurrentPrice: 10.00, Cost: 2.00})
	ev.quantityHit = true

	move, ok := s.decide(ev)
	require.True(t, ok)
	assert.Equal(t, 9.00, move.TargetPrice)
	assert.Equal(t, 0.75, move.Confidence)
}

func TestStrategyDecide_RaisesRisingInsensitiveItem(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := itemEvidence{
		item:       catalog.Item{ID: 2, Name: "Croissant", CurrentPrice: 4.00, Cost: 1.00},
		elasticity: analytics.ElasticityResult{Estimated: true, Elasticity: 0.3, Sensitivity: analytics.SensitivityLow},
		momentum:   analytics.MomentumResult{Status: analytics.StatusOK, Score: 0.4, Trend: analytics.TrendIncreasing},
	}

	move, ok := s.decide(ev)
	require.True(t, ok)
	assert.Equal(t, 4.20, move.TargetPrice)
	assert.InDelta(t, 5.0, move.ChangePct, 0.001)
}

func TestStrategyDecide_NoSignalNoMove(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := itemEvidence{
		item:       catalog.Item{ID: 3, Name: "Sparkling Water", CurrentPrice: 2.50},
		elasticity: analytics.ElasticityResult{Sensitivity: analytics.SensitivityUnknown},
		momentum:   analytics.MomentumResult{Status: analytics.StatusInsufficientData},
	}

	_, ok := s.decide(ev)
	assert.False(t, ok)
}

func TestStrategyDecide_CostFloorBlocksUnprofitableCut(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := sensitiveEvidence(catalog.Item{ID: 4, Name: "Day-Old Bread", CurrentPrice: 10.00, Cost: 9.80})

	_, ok := s.decide(ev)
	assert.False(t, ok, "a cut that would price below cost must be dropped")
}

func TestStrategyDecide_CostFloorShrinksCut(t *testing.T) {
	s := NewStrategySynthesizer()
	ev := sensitiveEvidence(catalog.Item{ID: 5, Name: "House Blend", CurrentPrice: 10.00, Cost: 8.80})
	ev.quantityHit = true

	move, ok := s.decide(ev)
	require.True(t, ok)
	// The 10% cut would land at 9.00, below cost*1.05; it clamps to the floor.
	assert.Equal(t, 9.24, move.TargetPrice)
}

func TestStrategySynthesizer_RequiresPhaseOutputs(t *testing.T) {
	env := newTestEnv(t)
	env.rc.WithCollected(&CollectedData{})

	_, err := NewStrategySynthesizer().Process(context.Background(), env.rc)
	require.Error(t, err)
}

func strategyEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	item := catalog.Item{ID: 1, Name: "Flat White", CurrentPrice: 10.00, Cost: 2.00}
	env.rc.WithCollected(&CollectedData{
		Items:        []catalog.Item{item},
		DailySales:   map[int64][]analytics.SalesPoint{},
		PriceChanges: map[int64][]analytics.PriceChange{},
		Summary:      env.sales.summary,
		Quality:      DataQuality{Level: QualityGood, ItemCount: 1},
	})
	env.rc.WithMarket(&MarketAnalysis{
		Elasticities: []ItemElasticity{{
			ItemID: 1, Name: "Flat White",
			Result: analytics.ElasticityResult{Estimated: true, Elasticity: 2.1, Sensitivity: analytics.SensitivityHigh},
		}},
	})
	env.rc.WithPerformance(&PerformanceReport{
		Momentum: []ItemMomentum{{
			ItemID: 1, Name: "Flat White",
			Result: analytics.MomentumResult{Status: analytics.StatusOK, Score: -0.3, Trend: analytics.TrendDecreasing, Weeks: 8},
		}},
	})
	return env
}

func TestStrategySynthesizer_RecordsDecisionAndMemory(t *testing.T) {
	env := strategyEnv(t)

	res, err := NewStrategySynthesizer().Process(context.Background(), env.rc)
	require.NoError(t, err)
	require.NotNil(t, res.Strategy)

	require.Len(t, res.Strategy.Moves, 1)
	move := res.Strategy.Moves[0]
	assert.Equal(t, 9.50, move.TargetPrice)

	require.Len(t, env.memRepo.decisions, 1)
	dec := env.memRepo.decisions[0]
	assert.Equal(t, "pricing_strategy", dec.DecisionType)
	assert.Equal(t, []int64{1}, dec.AffectedItemIDs)
	assert.Equal(t, dec.ID, res.Strategy.DecisionID)
	assert.InDelta(t, 0.7, dec.Confidence, 0.001)

	memories := env.memRepo.byType(memory.TypePricingRecommendation)
	require.Len(t, memories, 1)
	assert.Equal(t, StageStrategy, memories[0].AgentName)

	require.Len(t, res.Recommendations, 1)
	rec := res.Recommendations[0]
	assert.Equal(t, 9.50, rec.RecommendedPrice)
	assert.Equal(t, recommendations.PriorityMedium, rec.Priority)

	assert.Contains(t, res.Strategy.Narrative, "price moves proposed")
}

func TestStrategySynthesizer_ComparesAgainstPriorRun(t *testing.T) {
	env := strategyEnv(t)
	env.sales.summary.Revenue = 1200
	env.rc.Collected().Summary = env.sales.summary

	priorPayload, err := json.Marshal(&CollectedData{Summary: &sales.Summary{Revenue: 1000}})
	require.NoError(t, err)
	env.snapshots.latest = &snapshots.Snapshot{
		Kind:      snapshots.KindDataCollection,
		Payload:   priorPayload,
		CreatedAt: env.rc.StartedAt.AddDate(0, 0, -7),
	}

	res, err := NewStrategySynthesizer().Process(context.Background(), env.rc)
	require.NoError(t, err)

	assert.Contains(t, res.Strategy.Narrative, "up 20.0%")
}

func TestStrategyPriorLearnings(t *testing.T) {
	env := strategyEnv(t)
	rating := 2
	env.memRepo.decisions = append(env.memRepo.decisions, memory.DecisionRecord{
		ID:            uuid.New(),
		UserID:        env.rc.UserID,
		DecisionType:  "pricing_strategy",
		Rationale:     "raise everything 10%",
		SuccessRating: &rating,
		DecisionDate:  env.rc.StartedAt.AddDate(0, 0, -5),
	})

	s := NewStrategySynthesizer()
	learnings, err := s.priorLearnings(context.Background(), env.rc)
	require.NoError(t, err)

	require.Len(t, learnings, 1)
	assert.Contains(t, learnings[0], "did not work")
}
