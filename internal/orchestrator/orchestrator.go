package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quorumhq/quorum/internal/aggregate"
	"github.com/quorumhq/quorum/internal/decision"
	"github.com/quorumhq/quorum/internal/decompose"
	"github.com/quorumhq/quorum/internal/deliberate"
	"github.com/quorumhq/quorum/internal/dispatch"
	"github.com/quorumhq/quorum/internal/executor"
	"github.com/quorumhq/quorum/internal/feedback"
	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/internal/state"
	"github.com/quorumhq/quorum/internal/trace"
	"github.com/quorumhq/quorum/pkg/models"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// Client is the chat client used by every pipeline stage.
	Client provider.ChatClient
	// Registry holds the agents available for dispatch.
	Registry *models.AgentRegistry
	// Workspace is the directory traces and feedback are stored under.
	Workspace string
}

// Orchestrator runs the collaboration pipeline end to end and answers
// queries about past runs.
type Orchestrator struct {
	client   provider.ChatClient
	registry *models.AgentRegistry
	options  *Options
	logger   *DebugLogger

	decomposer *decompose.Decomposer
	dispatcher *dispatch.Dispatcher
	aggregator *aggregate.Aggregator
	decider    *decision.Engine

	traces    *trace.Manager
	feedback  *feedback.Loop
	history   *state.DB
	listeners []trace.Listener

	delibEvents deliberate.ProgressFunc
}

// New builds an orchestrator. The workspace directories are created as
// needed.
func New(cfg RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("orchestrator requires a chat client")
	}
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, fmt.Errorf("orchestrator requires at least one agent")
	}

	c := &orchestratorConfig{}
	for _, opt := range opts {
		opt(c)
	}
	if c.options == nil {
		c.options = DefaultOptions()
	}
	if c.logger == nil {
		c.logger = NopLogger()
	}
	setPackageLogger(c.logger)

	traces := c.traceManager
	if traces == nil {
		var err error
		traces, err = trace.NewManager(cfg.Workspace, debugLog)
		if err != nil {
			return nil, fmt.Errorf("init trace manager: %w", err)
		}
	}
	loop, err := feedback.NewLoop(cfg.Workspace, c.options.FeedbackReminderDays, debugLog)
	if err != nil {
		return nil, fmt.Errorf("init feedback loop: %w", err)
	}

	return &Orchestrator{
		client:      cfg.Client,
		registry:    cfg.Registry,
		options:     c.options,
		logger:      c.logger,
		decomposer:  decompose.New(cfg.Client, decompose.DefaultCapabilities),
		dispatcher:  dispatch.New(cfg.Registry, c.options.DispatchStrategy, debugLog),
		aggregator:  aggregate.New(cfg.Client),
		decider:     decision.New(cfg.Client, c.options.DefaultModel),
		traces:      traces,
		feedback:    loop,
		history:     c.history,
		listeners:   c.listeners,
		delibEvents: c.delibEvents,
	}, nil
}

// Options returns the orchestrator's runtime options.
func (o *Orchestrator) Options() *Options {
	return o.options
}

// Collaborate runs the full pipeline for one goal: decompose, dispatch,
// execute, aggregate, decide. The returned trace is the complete audit
// record of the run, persisted even when the run fails partway.
func (o *Orchestrator) Collaborate(ctx context.Context, request *models.CollaborationRequest) (*models.CollaborationResult, *models.CollaborationTrace, error) {
	timeout := time.Duration(o.options.TotalTimeoutSeconds) * time.Second
	if request.TimeoutSeconds > 0 {
		timeout = time.Duration(request.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runTrace := o.traces.Create(request)
	tracker := trace.NewProgressTracker(runTrace.TraceID, debugLog)
	for _, l := range o.listeners {
		tracker.AddListener(l)
	}

	o.recordRun(runTrace.TraceID, state.RunKindCollaborate, request.Goal)
	debugLog("collaboration %s started: %s", runTrace.TraceID, request.Goal)

	tracker.OnPhaseStarted("decomposition")
	tasks := o.decomposer.Decompose(ctx, request)
	for _, t := range tasks {
		if t.TimeoutSeconds == 0 {
			t.TimeoutSeconds = o.options.TaskTimeoutSeconds
		}
	}
	runTrace.Tasks = tasks
	if err := ctx.Err(); err != nil {
		return o.fatalResult(runTrace, request, err)
	}

	tracker.OnPhaseStarted("dispatching")
	assignments := o.dispatcher.Dispatch(tasks)
	for _, t := range tasks {
		t.AssignedAgent = assignments[t.ID]
	}

	tracker.OnPhaseStarted("execution")
	results := o.executeWithTrace(ctx, tasks, assignments, runTrace, tracker)
	if err := ctx.Err(); err != nil {
		return o.fatalResult(runTrace, request, err)
	}

	failed := failedTaskIDs(results)
	if len(failed) > 0 && o.options.RequiredTaskFailureMode == FailureModeAbort {
		result := &models.CollaborationResult{
			Goal:        request.Goal,
			Decision:    "aborted",
			Confidence:  0.0,
			Reasoning:   fmt.Sprintf("Critical tasks failed: %v", failed),
			TaskResults: results,
			CreatedAt:   time.Now(),
		}
		o.finishRun(runTrace, result, len(tasks), len(failed))
		return result, runTrace, nil
	}
	if len(failed) > 0 {
		debugLog("continuing despite %d failed tasks: %v", len(failed), failed)
	}

	tracker.OnPhaseStarted("aggregation")
	aggregated := o.aggregator.Aggregate(ctx, request, results)
	if err := ctx.Err(); err != nil {
		return o.fatalResult(runTrace, request, err)
	}

	tracker.OnPhaseStarted("decision")
	result := o.decider.Decide(ctx, request, aggregated, results)
	tracker.OnDecisionMade(result.Decision, result.Confidence)

	if o.options.FeedbackEnabled && request.FeedbackEnabled {
		if rec, err := o.feedback.Record(result, request); err != nil {
			debugLog("feedback record failed: %v", err)
		} else {
			result.FeedbackID = rec.FeedbackID
		}
	}

	o.finishRun(runTrace, result, len(tasks), len(failed))
	debugLog("collaboration %s decided: %s (%.2f)", runTrace.TraceID, result.Decision, result.Confidence)
	return result, runTrace, nil
}

// executeWithTrace runs the task graph and folds per-task traces and
// progress events into the run trace.
func (o *Orchestrator) executeWithTrace(
	ctx context.Context,
	tasks []*models.Task,
	assignments map[string]string,
	runTrace *models.CollaborationTrace,
	tracker *trace.ProgressTracker,
) map[string]*models.TaskResult {
	exec := executor.NewTaskExecutor(o.client, o.options.MaxRetries,
		time.Duration(o.options.RetryDelaySeconds*float64(time.Second)))
	parallel := executor.NewParallelExecutor(exec, o.options.MaxConcurrentTasks,
		func(taskID, agentID string, progress float64) {
			if progress == 0.0 {
				tracker.OnTaskStarted(taskID, agentID)
			}
		})

	results := parallel.ExecuteAll(ctx, tasks, assignments, o.registry, nil)

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := results[id]
		if r.Trace != nil {
			runTrace.TaskTraces[id] = r.Trace
		}
		switch r.Status {
		case models.TaskStatusCompleted:
			tracker.OnTaskCompleted(id, r.Output)
		default:
			tracker.OnTaskFailed(id, r.Error)
		}
	}
	return results
}

// fatalResult persists the trace and returns an error result when the
// pipeline cannot continue.
func (o *Orchestrator) fatalResult(runTrace *models.CollaborationTrace, request *models.CollaborationRequest, cause error) (*models.CollaborationResult, *models.CollaborationTrace, error) {
	debugLog("collaboration %s failed: %v", runTrace.TraceID, cause)
	result := &models.CollaborationResult{
		Goal:       request.Goal,
		Decision:   "error",
		Confidence: 0.0,
		Reasoning:  fmt.Sprintf("Collaboration failed: %v", cause),
		CreatedAt:  time.Now(),
	}
	o.finishRun(runTrace, result, len(runTrace.Tasks), 0)
	return result, runTrace, cause
}

// finishRun stamps the trace with its final result, saves it, and
// updates run history.
func (o *Orchestrator) finishRun(runTrace *models.CollaborationTrace, result *models.CollaborationResult, taskCount, failedCount int) {
	runTrace.FinalResult = result
	if o.options.TraceEnabled {
		if err := o.traces.Save(runTrace); err != nil {
			debugLog("trace save failed: %v", err)
		}
	} else {
		runTrace.MarkCompleted()
	}
	if o.history != nil {
		if err := o.history.FinishRun(runTrace.TraceID, string(statusForDecision(result.Decision)),
			result.Decision, result.Confidence, taskCount, failedCount, runTrace.TotalTokens); err != nil {
			debugLog("run history update failed: %v", err)
		}
	}
}

func (o *Orchestrator) recordRun(traceID, kind, goal string) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordRun(traceID, kind, goal); err != nil {
		debugLog("run history insert failed: %v", err)
	}
}

func statusForDecision(decision string) models.TaskStatus {
	switch decision {
	case "error", "aborted":
		return models.TaskStatusFailed
	default:
		return models.TaskStatusCompleted
	}
}

// failedTaskIDs returns the IDs of tasks that failed or timed out,
// sorted for stable reporting.
func failedTaskIDs(results map[string]*models.TaskResult) []string {
	var failed []string
	for id, r := range results {
		if r.Status == models.TaskStatusFailed || r.Status == models.TaskStatusTimeout {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	return failed
}

// Deliberate runs a multi-round deliberation, persists its trace, and
// records the final decision for feedback when enabled.
func (o *Orchestrator) Deliberate(ctx context.Context, request *models.DeliberationRequest) (*models.DeliberationResult, *models.DeliberationTrace, error) {
	timeout := time.Duration(request.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(o.options.TotalTimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	engine := deliberate.New(o.client, o.options.DefaultModel, o.delibEvents, debugLog)
	result, delibTrace := engine.Deliberate(ctx, request)

	// History is keyed by the trace ID so `history` output resolves in
	// `traces show`; the ID only exists once the engine has run.
	o.recordRun(delibTrace.TraceID, state.RunKindDeliberate, request.Goal)

	if o.options.TraceEnabled {
		if err := o.traces.SaveDeliberation(delibTrace); err != nil {
			debugLog("deliberation trace save failed: %v", err)
		}
	}

	if o.options.FeedbackEnabled && request.FeedbackEnabled && result.FinalDecision != "error" {
		record := &models.CollaborationResult{
			Goal:       request.Goal,
			Decision:   result.FinalDecision,
			Confidence: result.OverallConfidence,
			Reasoning:  result.ExecutiveSummary,
		}
		feedbackReq := &models.CollaborationRequest{
			Goal:      request.Goal,
			Context:   request.Context,
			RequestID: request.RequestID,
		}
		if rec, err := o.feedback.Record(record, feedbackReq); err != nil {
			debugLog("feedback record failed: %v", err)
		} else {
			result.FeedbackID = rec.FeedbackID
		}
	}

	if o.history != nil {
		status := "completed"
		if result.FinalDecision == "error" {
			status = "failed"
		}
		if err := o.history.FinishRun(delibTrace.TraceID, status, result.FinalDecision,
			result.OverallConfidence, result.TotalTasks, 0, delibTrace.TotalTokens); err != nil {
			debugLog("run history update failed: %v", err)
		}
	}
	return result, delibTrace, nil
}

// GetTrace loads one trace by ID; missing traces return (nil, nil).
func (o *Orchestrator) GetTrace(traceID string) (*models.CollaborationTrace, error) {
	return o.traces.Load(traceID)
}

// ListTraces returns recent trace summaries, newest first.
func (o *Orchestrator) ListTraces(limit, offset int) []map[string]any {
	return o.traces.List(limit, offset)
}

// SearchTraces returns traces whose goal matches the query.
func (o *Orchestrator) SearchTraces(query string, limit int) []map[string]any {
	return o.traces.Search(query, limit)
}

// VerifyDecision marks a recorded decision with its actual outcome.
func (o *Orchestrator) VerifyDecision(feedbackID, actualOutcome string, correct bool, notes string) (*models.FeedbackRecord, error) {
	return o.feedback.Verify(feedbackID, actualOutcome, correct, notes)
}

// GetAccuracyStats computes decision accuracy over a lookback window.
func (o *Orchestrator) GetAccuracyStats(decisionType string, windowDays int) (*models.AccuracyStats, error) {
	return o.feedback.AccuracyStats(decisionType, windowDays)
}

// GetPendingVerifications lists decisions awaiting verification.
func (o *Orchestrator) GetPendingVerifications() ([]*models.FeedbackRecord, error) {
	return o.feedback.PendingVerifications()
}

// GetOverdueVerifications lists unverified decisions past their reminder.
func (o *Orchestrator) GetOverdueVerifications() ([]*models.FeedbackRecord, error) {
	return o.feedback.OverdueVerifications()
}
