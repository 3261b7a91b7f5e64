// Package orchestrator drives pricing runs through their four phases,
// tracks their status for polling, and publishes lifecycle events. One run
// per user at a time; everything else about a run is free to proceed
// concurrently with other users' runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pricewise-ai/pricewise/internal/agents"
	"github.com/pricewise-ai/pricewise/internal/catalog"
	"github.com/pricewise-ai/pricewise/internal/config"
	"github.com/pricewise-ai/pricewise/internal/governance/quota"
	"github.com/pricewise-ai/pricewise/internal/llm"
	"github.com/pricewise-ai/pricewise/internal/memory"
	"github.com/pricewise-ai/pricewise/internal/metrics"
	inats "github.com/pricewise-ai/pricewise/internal/nats"
	"github.com/pricewise-ai/pricewise/internal/recommendations"
	"github.com/pricewise-ai/pricewise/internal/sales"
	"github.com/pricewise-ai/pricewise/internal/snapshots"
)

const defaultPhaseTimeout = 5 * time.Minute

// Dependencies are the shared handles every run borrows. Quota, LLM and
// Publisher may be nil: governance, narration and events then degrade to
// no-ops while the analytical pipeline keeps working.
type Dependencies struct {
	Catalog         catalog.Repository
	Sales           sales.Repository
	Memory          *memory.Store
	Snapshots       snapshots.Repository
	Recommendations recommendations.Repository
	Quota           *quota.Service
	LLM             *llm.Client
	Publisher       *inats.Publisher
	Pipeline        config.PipelineConfig
}

// RunResult is the compiled output of a completed run, kept on the task
// status for polling clients.
type RunResult struct {
	BatchID         uuid.UUID                        `json:"batch_id"`
	DataQuality     string                           `json:"data_quality,omitempty"`
	Recommendations []recommendations.Recommendation `json:"recommendations"`
	Experiments     []agents.Experiment              `json:"experiments,omitempty"`
	Narratives      map[string]string                `json:"narratives,omitempty"`
	AnomalyCount    int                              `json:"anomaly_count"`
}

// Orchestrator owns run scheduling: mutual exclusion through the tracker,
// strict phase ordering, cancellation, and terminal bookkeeping.
type Orchestrator struct {
	deps    Dependencies
	tracker *TaskStatusTracker

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		tracker: NewTracker(),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Tracker exposes the status registry for read-side handlers.
func (o *Orchestrator) Tracker() *TaskStatusTracker {
	return o.tracker
}

// StartRun begins a pricing run for the user on a background goroutine and
// returns its status. While a run is already in flight the same task id
// comes back instead of a second run. Quota exhaustion returns
// quota.ErrRunQuotaExceeded before any state is created.
func (o *Orchestrator) StartRun(ctx context.Context, userID uuid.UUID) (TaskStatus, error) {
	if userID == uuid.Nil {
		return TaskStatus{}, &ValidationError{Field: "user_id", Reason: "missing"}
	}

	if o.deps.Quota != nil {
		if err := o.deps.Quota.CheckRun(ctx, userID); err != nil {
			return TaskStatus{}, err
		}
	}

	status, started := o.tracker.Start(userID)
	if !started {
		slog.Info("orchestrator: run already in flight",
			"user_id", userID,
			"task_id", status.TaskID)
		return status, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[userID] = cancel
	o.mu.Unlock()

	metrics.RunsStartedTotal.Inc()
	o.publishRunEvent(status.TaskID, userID, inats.RunStarted, "")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(runCtx, status.TaskID, userID)
	}()

	slog.Info("orchestrator: run started", "user_id", userID, "task_id", status.TaskID)
	return status, nil
}

// Cancel cancels the user's in-flight run. It reports false when no run is
// active. In-flight stage writes complete; the run then lands in the error
// state with a cancellation message.
func (o *Orchestrator) Cancel(userID uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[userID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	cancel()
	slog.Info("orchestrator: run cancellation requested", "user_id", userID)
	return true
}

// Shutdown waits for in-flight runs to drain, up to the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, taskID string, userID uuid.UUID) {
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.cancels[userID]; ok {
			cancel()
			delete(o.cancels, userID)
		}
		o.mu.Unlock()
	}()

	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	rc := &agents.RunContext{
		UserID:          userID,
		TaskID:          taskID,
		BatchID:         uuid.New(),
		StartedAt:       time.Now().UTC(),
		Catalog:         o.deps.Catalog,
		Sales:           o.deps.Sales,
		Memory:          o.deps.Memory,
		Snapshots:       o.deps.Snapshots,
		Recommendations: o.deps.Recommendations,
		Quota:           o.deps.Quota,
		LLM:             o.deps.LLM,
		Pipeline:        o.deps.Pipeline,
	}

	result, err := o.pipeline(ctx, rc)
	if err != nil {
		o.failRun(ctx, rc, err)
		return
	}
	o.completeRun(rc, result)
}

// pipeline executes the four phases in order. Any returned error is a
// *PipelineError and aborts the remaining phases.
func (o *Orchestrator) pipeline(ctx context.Context, rc *agents.RunContext) (*RunResult, error) {
	o.tracker.Update(rc.UserID, agents.StageCollector, "collecting sales and catalog data")
	collectRes, err := o.runStage(ctx, rc, 1, agents.NewCollector())
	if err != nil {
		return nil, err
	}
	rc.WithCollected(collectRes.Collected)

	o.tracker.Update(rc.UserID, "analysis", "analyzing market position and performance")
	marketRes, perfRes, err := o.analyze(ctx, rc)
	if err != nil {
		return nil, err
	}
	rc.WithMarket(marketRes.Market)
	rc.WithPerformance(perfRes.Performance)

	o.tracker.Update(rc.UserID, agents.StageStrategy, "synthesizing pricing strategy")
	strategyRes, err := o.runStage(ctx, rc, 3, agents.NewStrategySynthesizer())
	if err != nil {
		return nil, err
	}
	rc.WithStrategy(strategyRes.Strategy)

	o.tracker.Update(rc.UserID, agents.StageExperimenter, "designing price experiments")
	expRes, err := o.runStage(ctx, rc, 4, agents.NewExperimentDesigner())
	if err != nil {
		return nil, err
	}

	compiled := recommendations.Compile(rc.BatchID, rc.UserID, rc.StartedAt,
		collectRes.Recommendations,
		marketRes.Recommendations,
		perfRes.Recommendations,
		strategyRes.Recommendations,
		expRes.Recommendations)

	if err := o.deps.Recommendations.InsertBatch(ctx, compiled); err != nil {
		return nil, &PipelineError{Phase: 4, Stage: "compile", Err: &memory.PersistenceError{Op: "recommendation save", Err: err}}
	}
	metrics.RecommendationsTotal.Add(float64(len(compiled)))

	return &RunResult{
		BatchID:         rc.BatchID,
		DataQuality:     collectRes.Collected.Quality.Level,
		Recommendations: compiled,
		Experiments:     expRes.Experiments.Experiments,
		Narratives:      collectNarratives(marketRes, perfRes, strategyRes, expRes),
		AnomalyCount:    len(perfRes.Performance.Anomalies),
	}, nil
}

// analyze is phase 2: market analysis and performance monitoring run
// concurrently over the immutable phase 1 output, sharing one phase
// timeout. The first failure cancels the sibling.
func (o *Orchestrator) analyze(ctx context.Context, rc *agents.RunContext) (*agents.Result, *agents.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &PipelineError{Phase: 2, Stage: "analysis", Err: err}
	}

	phaseCtx, cancel := context.WithTimeout(ctx, o.phaseTimeout())
	defer cancel()

	var marketRes, perfRes *agents.Result
	g, gctx := errgroup.WithContext(phaseCtx)
	g.Go(func() error {
		res, err := runStageIn(gctx, rc, 2, agents.NewMarketAnalyst())
		if err != nil {
			return err
		}
		marketRes = res
		return nil
	})
	g.Go(func() error {
		res, err := runStageIn(gctx, rc, 2, agents.NewPerformanceMonitor())
		if err != nil {
			return err
		}
		perfRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return marketRes, perfRes, nil
}

// runStage runs one single-stage phase under its own timeout.
func (o *Orchestrator) runStage(ctx context.Context, rc *agents.RunContext, phase int, stage agents.Stage) (*agents.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Phase: phase, Stage: stage.Name(), Err: err}
	}

	phaseCtx, cancel := context.WithTimeout(ctx, o.phaseTimeout())
	defer cancel()
	return runStageIn(phaseCtx, rc, phase, stage)
}

func runStageIn(ctx context.Context, rc *agents.RunContext, phase int, stage agents.Stage) (*agents.Result, error) {
	start := time.Now()
	res, err := stage.Process(ctx, rc)
	metrics.PhaseDuration.WithLabelValues(stage.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &PipelineError{Phase: phase, Stage: stage.Name(), Err: err}
	}
	return res, nil
}

func (o *Orchestrator) phaseTimeout() time.Duration {
	if o.deps.Pipeline.PhaseTimeout > 0 {
		return o.deps.Pipeline.PhaseTimeout
	}
	return defaultPhaseTimeout
}

func (o *Orchestrator) completeRun(rc *agents.RunContext, result *RunResult) {
	message := fmt.Sprintf("run completed with %d recommendations", len(result.Recommendations))
	o.tracker.Complete(rc.UserID, result, message)
	metrics.RunsFinishedTotal.WithLabelValues("completed").Inc()

	o.recordRunUsage(rc.UserID)
	o.publishRunEvent(rc.TaskID, rc.UserID, inats.RunCompleted,
		fmt.Sprintf("%d recommendations in batch %s", len(result.Recommendations), result.BatchID))

	slog.Info("orchestrator: run completed",
		"user_id", rc.UserID,
		"task_id", rc.TaskID,
		"batch_id", result.BatchID,
		"recommendations", len(result.Recommendations),
		"duration", time.Since(rc.StartedAt))
}

// failRun turns a fatal pipeline error into the terminal error state. The
// user sees a short human-readable message; the full error goes to the log
// only.
func (o *Orchestrator) failRun(ctx context.Context, rc *agents.RunContext, err error) {
	cancelled := ctx.Err() == context.Canceled || errors.Is(err, context.Canceled)

	var perr *PipelineError
	errors.As(err, &perr)

	message := "pricing analysis failed"
	event := inats.RunFailed
	outcome := "error"
	switch {
	case cancelled:
		message = "run cancelled"
		event = inats.RunCancelled
		outcome = "cancelled"
	case perr != nil:
		message = "pricing analysis failed during " + stageLabel(perr.Stage)
	}

	o.tracker.Fail(rc.UserID, message)
	metrics.RunsFinishedTotal.WithLabelValues(outcome).Inc()
	o.publishRunEvent(rc.TaskID, rc.UserID, event, message)

	logArgs := []any{"error", err, "user_id", rc.UserID, "task_id", rc.TaskID}
	if perr != nil {
		logArgs = append(logArgs, "phase", perr.Phase, "stage", perr.Stage)
	}
	if cancelled {
		slog.Info("orchestrator: run cancelled", logArgs...)
		return
	}
	slog.Error("orchestrator: run failed", logArgs...)
}

// stageLabel maps internal stage names to the words a merchant reads in a
// failure message.
func stageLabel(stage string) string {
	switch stage {
	case agents.StageCollector:
		return "data collection"
	case agents.StageMarket:
		return "market analysis"
	case agents.StagePerformance:
		return "performance monitoring"
	case agents.StageStrategy:
		return "strategy synthesis"
	case agents.StageExperimenter:
		return "experiment design"
	case "compile":
		return "recommendation compilation"
	}
	return stage
}

func collectNarratives(marketRes, perfRes, strategyRes, expRes *agents.Result) map[string]string {
	narratives := make(map[string]string, 4)
	if s := marketRes.Market.Narrative; s != "" {
		narratives[agents.StageMarket] = s
	}
	if s := perfRes.Performance.Narrative; s != "" {
		narratives[agents.StagePerformance] = s
	}
	if s := strategyRes.Strategy.Narrative; s != "" {
		narratives[agents.StageStrategy] = s
	}
	if s := expRes.Experiments.Narrative; s != "" {
		narratives[agents.StageExperimenter] = s
	}
	return narratives
}

// recordRunUsage books one run against the daily quota after completion,
// matching how completion tokens are deducted only for calls that happened.
func (o *Orchestrator) recordRunUsage(userID uuid.UUID) {
	if o.deps.Quota == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Quota.RecordRun(ctx, userID); err != nil {
		slog.Warn("orchestrator: recording run usage", "error", err, "user_id", userID)
	}
}

// publishRunEvent emits a lifecycle event for downstream notification
// services. Publishing uses its own short deadline because the run context
// may already be cancelled by the time a terminal event goes out.
func (o *Orchestrator) publishRunEvent(taskID string, userID uuid.UUID, eventType, detail string) {
	if o.deps.Publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := inats.RunEvent{
		TaskID:    taskID,
		UserID:    userID,
		EventType: eventType,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := o.deps.Publisher.PublishRunEvent(ctx, event); err != nil {
		slog.Warn("orchestrator: publishing run event", "error", err, "event_type", eventType)
	}

	audit := inats.AuditEvent{
		UserID:       userID,
		EventType:    "pipeline_" + eventType,
		Severity:     auditSeverity(eventType),
		ResourceType: "pricing_run",
		ResourceID:   taskID,
		Details:      detail,
		Timestamp:    time.Now().UTC(),
	}
	if err := o.deps.Publisher.PublishAuditEvent(ctx, audit); err != nil {
		slog.Warn("orchestrator: publishing audit event", "error", err, "event_type", eventType)
	}
}

func auditSeverity(eventType string) string {
	if eventType == inats.RunFailed {
		return "error"
	}
	return "info"
}
