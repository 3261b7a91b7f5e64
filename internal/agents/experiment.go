package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
)

const (
	// maxExperiments bounds how many price tests one run may propose; a
	// small merchant cannot run ten tests at once.
	maxExperiments = 3
	// experimentDays is the default test duration, two weekly cycles.
	experimentDays = 14
)

// ExperimentDesigner is phase 4: it turns the strongest strategy moves
// into controlled price tests so the next runs can learn from measured
// outcomes instead of opinions.
type ExperimentDesigner struct{}

func NewExperimentDesigner() *ExperimentDesigner { return &ExperimentDesigner{} }

func (e *ExperimentDesigner) Name() string { return StageExperimenter }

func (e *ExperimentDesigner) Process(ctx context.Context, rc *RunContext) (*Result, error) {
	strategy := rc.Strategy()
	if strategy == nil {
		return nil, fmt.Errorf("experiment designer requires the synthesized strategy")
	}

	tested, err := e.recentlyTested(ctx, rc)
	if err != nil {
		return nil, err
	}

	plan := &ExperimentPlan{Experiments: e.design(strategy.Moves, tested)}

	plan.Narrative = narrative(ctx, rc, StageExperimenter, e.prompt(plan),
		e.fallbackNarrative(plan))

	for _, exp := range plan.Experiments {
		if _, err := rc.Memory.Save(ctx, StageExperimenter, rc.UserID, memory.TypeExperimentLearning, exp, map[string]any{
			"task_id": rc.TaskID,
			"item_id": exp.ItemID,
			"status":  "proposed",
		}); err != nil {
			return nil, err
		}
	}

	slog.Info("experiment designer: plan ready",
		"user_id", rc.UserID,
		"experiments", len(plan.Experiments))

	// Experiments are a cautious variant of moves the strategy already
	// recommended, so they ship in the run result and the memory log, not
	// as extra recommendation rows that would collapse into the moves.
	return &Result{Experiments: plan}, nil
}

// recentlyTested lists items already covered by a proposed experiment in
// the memory window, so consecutive runs do not pile tests onto the same
// item.
func (e *ExperimentDesigner) recentlyTested(ctx context.Context, rc *RunContext) (map[int64]bool, error) {
	records, err := rc.Memory.RetrieveRecent(ctx, rc.UserID, StageExperimenter,
		[]memory.Type{memory.TypeExperimentLearning}, rc.Pipeline.MemoryLookbackDays, 20)
	if err != nil {
		return nil, err
	}

	tested := make(map[int64]bool, len(records))
	for _, rec := range records {
		var exp Experiment
		if err := json.Unmarshal(rec.Content, &exp); err != nil {
			continue
		}
		if exp.ItemID != 0 {
			tested[exp.ItemID] = true
		}
	}
	return tested, nil
}

// design picks the most confident untested moves and frames each as a
// controlled test with an explicit success metric.
func (e *ExperimentDesigner) design(moves []PriceMove, tested map[int64]bool) []Experiment {
	ranked := make([]PriceMove, 0, len(moves))
	for _, m := range moves {
		if !tested[m.ItemID] {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return abs(ranked[i].ChangePct) > abs(ranked[j].ChangePct)
	})
	if len(ranked) > maxExperiments {
		ranked = ranked[:maxExperiments]
	}

	experiments := make([]Experiment, 0, len(ranked))
	for _, m := range ranked {
		exp := Experiment{
			ItemID:       m.ItemID,
			Name:         m.Name,
			ControlPrice: m.CurrentPrice,
			TestPrice:    m.TargetPrice,
			DurationDays: experimentDays,
		}
		if m.ChangePct < 0 {
			exp.SuccessMetric = "daily_quantity"
			exp.Hypothesis = fmt.Sprintf("Cutting %s from %.2f to %.2f recovers daily volume without losing total revenue.",
				m.Name, m.CurrentPrice, m.TargetPrice)
		} else {
			exp.SuccessMetric = "daily_revenue"
			exp.Hypothesis = fmt.Sprintf("Raising %s from %.2f to %.2f holds daily volume within 10%% and grows revenue.",
				m.Name, m.CurrentPrice, m.TargetPrice)
		}
		experiments = append(experiments, exp)
	}
	return experiments
}

func (e *ExperimentDesigner) prompt(plan *ExperimentPlan) []llm.Message {
	var b strings.Builder
	for _, exp := range plan.Experiments {
		fmt.Fprintf(&b, "Test %q at %.2f (control %.2f) for %d days, success metric %s.\n",
			exp.Name, exp.TestPrice, exp.ControlPrice, exp.DurationDays, exp.SuccessMetric)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are advising a small merchant on price testing. In at most two sentences, explain what these tests will establish."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func (e *ExperimentDesigner) fallbackNarrative(plan *ExperimentPlan) string {
	if len(plan.Experiments) == 0 {
		return "No price experiments proposed this run; the strategy produced no moves confident enough to test."
	}
	return fmt.Sprintf("Proposed %d price experiments of %d days each to validate the strategy before a permanent change.",
		len(plan.Experiments), experimentDays)
}

