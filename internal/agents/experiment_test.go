package agents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise-ai/pricewise/internal/memory"
)

func experimentEnv(t *testing.T, moves []PriceMove) *testEnv {
	env := newTestEnv(t)
	env.rc.WithStrategy(&StrategyOutput{Moves: moves})
	return env
}

func TestExperimentDesigner_RequiresStrategy(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewExperimentDesigner().Process(context.Background(), env.rc)
	require.Error(t, err)
}

func TestExperimentDesigner_DesignsFromStrongestMoves(t *testing.T) {
	env := experimentEnv(t, []PriceMove{
		{ItemID: 1, Name: "Flat White", CurrentPrice: 4.40, TargetPrice: 4.10, ChangePct: -6.8, Confidence: 0.75},
		{ItemID: 2, Name: "Croissant", CurrentPrice: 3.80, TargetPrice: 4.00, ChangePct: 5.3, Confidence: 0.7},
		{ItemID: 3, Name: "Bagel", CurrentPrice: 3.00, TargetPrice: 2.85, ChangePct: -5.0, Confidence: 0.65},
		{ItemID: 4, Name: "Muffin", CurrentPrice: 3.50, TargetPrice: 3.60, ChangePct: 2.9, Confidence: 0.6},
	})

	res, err := NewExperimentDesigner().Process(context.Background(), env.rc)
	require.NoError(t, err)
	require.NotNil(t, res.Experiments)

	exps := res.Experiments.Experiments
	require.Len(t, exps, maxExperiments)
	assert.Equal(t, int64(1), exps[0].ItemID)
	assert.Equal(t, int64(2), exps[1].ItemID)
	assert.Equal(t, int64(3), exps[2].ItemID)

	cut := exps[0]
	assert.Equal(t, "daily_quantity", cut.SuccessMetric)
	assert.Equal(t, 4.40, cut.ControlPrice)
	assert.Equal(t, 4.10, cut.TestPrice)
	assert.Equal(t, experimentDays, cut.DurationDays)
	assert.Contains(t, cut.Hypothesis, "recovers daily volume")

	raise := exps[1]
	assert.Equal(t, "daily_revenue", raise.SuccessMetric)
	assert.Contains(t, raise.Hypothesis, "grows revenue")

	learnings := env.memRepo.byType(memory.TypeExperimentLearning)
	require.Len(t, learnings, maxExperiments)
	assert.Equal(t, StageExperimenter, learnings[0].AgentName)

	assert.Nil(t, res.Recommendations)
}

func TestExperimentDesigner_SkipsRecentlyTestedItems(t *testing.T) {
	env := experimentEnv(t, []PriceMove{
		{ItemID: 1, Name: "Flat White", CurrentPrice: 4.40, TargetPrice: 4.10, ChangePct: -6.8, Confidence: 0.75},
		{ItemID: 2, Name: "Croissant", CurrentPrice: 3.80, TargetPrice: 4.00, ChangePct: 5.3, Confidence: 0.7},
	})

	prior, err := json.Marshal(Experiment{ItemID: 1, Name: "Flat White"})
	require.NoError(t, err)
	env.memRepo.records = append(env.memRepo.records, memory.MemoryRecord{
		UserID:    env.rc.UserID,
		AgentName: StageExperimenter,
		Type:      memory.TypeExperimentLearning,
		Content:   prior,
		CreatedAt: time.Now().Add(-time.Hour),
	})

	res, err := NewExperimentDesigner().Process(context.Background(), env.rc)
	require.NoError(t, err)

	exps := res.Experiments.Experiments
	require.Len(t, exps, 1)
	assert.Equal(t, int64(2), exps[0].ItemID)
}

func TestExperimentDesigner_NoMovesMeansNoExperiments(t *testing.T) {
	env := experimentEnv(t, nil)

	res, err := NewExperimentDesigner().Process(context.Background(), env.rc)
	require.NoError(t, err)

	assert.Empty(t, res.Experiments.Experiments)
	assert.Contains(t, res.Experiments.Narrative, "No price experiments")
	assert.Empty(t, env.memRepo.byType(memory.TypeExperimentLearning))
}
