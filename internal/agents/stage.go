// Package agents contains the pipeline stages that turn a merchant's raw
// trading data into pricing recommendations. Each stage implements Stage
// and communicates with the next through the shared RunContext; the
// orchestrator owns sequencing, timeouts and failure handling.
package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pricewise-ai/pricewise/internal/analytics"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

// Stage names double as the agent_name under which each stage writes
// memories, so retrieval filters stay stable across releases.
const (
	StageCollector    = "collector"
	StageMarket       = "market_analyst"
	StagePerformance  = "performance_monitor"
	StageStrategy     = "strategy_synthesizer"
	StageExperimenter = "experiment_designer"
)

// Stage is one unit of pipeline work. Process returns the stage's typed
// output; a non-nil error aborts the run for persistence failures only,
// analytical thinness and LLM unavailability degrade instead.
type Stage interface {
	Name() string
	Process(ctx context.Context, rc *RunContext) (*Result, error)
}

// Result carries a stage's output back to the orchestrator. Exactly one
// of the typed output fields is set, matching the stage that produced it.
// Recommendations accumulate across stages and are compiled once at the
// end of the run.
type Result struct {
	Collected       *CollectedData
	Market          *MarketAnalysis
	Performance     *PerformanceReport
	Strategy        *StrategyOutput
	Experiments     *ExperimentPlan
	Recommendations []recommendations.Recommendation
}

// RunContext is the shared state of one pricing run. The orchestrator
// builds it once per run and threads it through every stage; earlier
// phase outputs become readable by later phases via the With* setters.
type RunContext struct {
	UserID    uuid.UUID
	TaskID    string
	BatchID   uuid.UUID
	StartedAt time.Time

	Catalog         catalog.Repository
	Sales           sales.Repository
	Memory          *memory.Store
	Snapshots       snapshots.Repository
	Recommendations recommendations.Repository
	Quota           *quota.Service
	LLM             *llm.Client // nil when no completion provider is configured
	Pipeline        config.PipelineConfig

	collected   *CollectedData
	market      *MarketAnalysis
	performance *PerformanceReport
	strategy    *StrategyOutput
}

// WithCollected records phase 1 output for later phases.
func (rc *RunContext) WithCollected(d *CollectedData) *RunContext {
	rc.collected = d
	return rc
}

// WithMarket records the market analysis half of phase 2.
func (rc *RunContext) WithMarket(m *MarketAnalysis) *RunContext {
	rc.market = m
	return rc
}

// WithPerformance records the performance half of phase 2.
func (rc *RunContext) WithPerformance(p *PerformanceReport) *RunContext {
	rc.performance = p
	return rc
}

// WithStrategy records phase 3 output for the experiment designer.
func (rc *RunContext) WithStrategy(s *StrategyOutput) *RunContext {
	rc.strategy = s
	return rc
}

func (rc *RunContext) Collected() *CollectedData       { return rc.collected }
func (rc *RunContext) Market() *MarketAnalysis         { return rc.market }
func (rc *RunContext) Performance() *PerformanceReport { return rc.performance }
func (rc *RunContext) Strategy() *StrategyOutput       { return rc.strategy }

// CollectedData is phase 1 output: everything later phases read, loaded
// once so the analysis phases never touch the order tables themselves.
type CollectedData struct {
	Items           []catalog.Item                    `json:"items"`
	DailySales      map[int64][]analytics.SalesPoint  `json:"-"`
	PriceChanges    map[int64][]analytics.PriceChange `json:"-"`
	CompetitorObs   []catalog.CompetitorItem          `json:"-"`
	Summary         *sales.Summary                    `json:"summary"`
	PriceChangeRows int64                             `json:"price_change_rows"`
	Quality         DataQuality                       `json:"quality"`
}

// DataQuality grades how much signal the collected window carries. Later
// stages consult it to decide which estimators are worth running.
type DataQuality struct {
	Level          string   `json:"level"` // "good", "partial", "poor"
	DaysCovered    int      `json:"days_covered"`
	ItemCount      int      `json:"item_count"`
	ItemsWithSales int      `json:"items_with_sales"`
	OrderCount     int64    `json:"order_count"`
	HasCompetitors bool     `json:"has_competitors"`
	Issues         []string `json:"issues,omitempty"`
}

// Data quality levels.
const (
	QualityGood    = "good"
	QualityPartial = "partial"
	QualityPoor    = "poor"
)

// ItemElasticity pairs an item with its elasticity estimate.
type ItemElasticity struct {
	ItemID int64                      `json:"item_id"`
	Name   string                     `json:"name"`
	Result analytics.ElasticityResult `json:"result"`
}

// MarketAnalysis is the market half of phase 2: how the merchant's prices
// sit against competitors and how demand responds to price.
type MarketAnalysis struct {
	Elasticities []ItemElasticity                      `json:"elasticities"`
	Correlations map[int64][]analytics.ItemCorrelation `json:"correlations,omitempty"`
	Competitors  []catalog.CompetitorMatch             `json:"competitors,omitempty"`
	Narrative    string                                `json:"narrative,omitempty"`
}

// ItemMomentum pairs an item with its momentum estimate.
type ItemMomentum struct {
	ItemID int64                    `json:"item_id"`
	Name   string                   `json:"name"`
	Result analytics.MomentumResult `json:"result"`
}

// ItemSeasonality pairs an item with its seasonality estimate.
type ItemSeasonality struct {
	ItemID int64                       `json:"item_id"`
	Result analytics.SeasonalityResult `json:"result"`
}

// PerformanceReport is the performance half of phase 2: trends per item
// plus any anomalies worth acting on, already classified against history.
type PerformanceReport struct {
	Momentum        []ItemMomentum      `json:"momentum"`
	Seasonality     []ItemSeasonality   `json:"seasonality,omitempty"`
	Anomalies       []analytics.Anomaly `json:"anomalies,omitempty"`
	Classifications map[string]string   `json:"classifications,omitempty"` // anomaly key -> new/recurring/worsening
	Narrative       string              `json:"narrative,omitempty"`
}

// PriceMove is one proposed price change with the evidence behind it.
type PriceMove struct {
	ItemID       int64   `json:"item_id"`
	Name         string  `json:"name"`
	CurrentPrice float64 `json:"current_price"`
	TargetPrice  float64 `json:"target_price"`
	ChangePct    float64 `json:"change_pct"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale"`
}

// StrategyOutput is phase 3 output: the synthesized pricing strategy and
// the decision record it was persisted under.
type StrategyOutput struct {
	Moves      []PriceMove `json:"moves"`
	Narrative  string      `json:"narrative,omitempty"`
	DecisionID uuid.UUID   `json:"decision_id"`
}

// Experiment is one controlled price test proposed by the experiment
// designer.
type Experiment struct {
	ItemID        int64   `json:"item_id"`
	Name          string  `json:"name"`
	Hypothesis    string  `json:"hypothesis"`
	ControlPrice  float64 `json:"control_price"`
	TestPrice     float64 `json:"test_price"`
	DurationDays  int     `json:"duration_days"`
	SuccessMetric string  `json:"success_metric"`
}

// ExperimentPlan is phase 4 output.
type ExperimentPlan struct {
	Experiments []Experiment `json:"experiments"`
	Narrative   string       `json:"narrative,omitempty"`
}
