package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/internal/state"
	"github.com/quorumhq/quorum/pkg/models"
)

// pipelineClient routes requests by system prompt so every stage of the
// pipeline gets a plausible response.
type pipelineClient struct {
	decomposeJSON string
	taskOutput    string
	failTaskNamed string
	decisionJSON  string
}

func (c *pipelineClient) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	sys := req.System
	switch {
	case strings.Contains(sys, "task decomposition"):
		return &provider.ChatResponse{Content: c.decomposeJSON, InputTokens: 100, OutputTokens: 50}, nil
	case strings.Contains(sys, "result aggregation"):
		return &provider.ChatResponse{Content: "combined analysis", InputTokens: 60, OutputTokens: 30}, nil
	case strings.Contains(sys, "decision-making specialist"):
		return &provider.ChatResponse{Content: c.decisionJSON, InputTokens: 80, OutputTokens: 40}, nil
	case strings.Contains(sys, "strategic planning expert"):
		return &provider.ChatResponse{Content: `{"topics": [
			{"title": "Feasibility", "description": "Can it work?", "focus_questions": ["Q1?"]}
		]}`, InputTokens: 40, OutputTokens: 20}, nil
	case strings.Contains(sys, "collaborative analyst"):
		return &provider.ChatResponse{Content: "round analysis", InputTokens: 40, OutputTokens: 20}, nil
	case strings.Contains(sys, "synthesis expert"):
		return &provider.ChatResponse{Content: `{"conclusion": "round conclusion", "key_findings": ["f1"]}`, InputTokens: 40, OutputTokens: 20}, nil
	case strings.Contains(sys, "strategic advisor"):
		return &provider.ChatResponse{Content: `{"final_decision": "proceed", "overall_confidence": 0.8, "executive_summary": "summary"}`, InputTokens: 40, OutputTokens: 20}, nil
	default: // task execution
		if c.failTaskNamed != "" && strings.Contains(userContent(req), c.failTaskNamed) {
			return &provider.ChatResponse{Content: ""}, context.DeadlineExceeded
		}
		return &provider.ChatResponse{Content: c.taskOutput, InputTokens: 200, OutputTokens: 100}, nil
	}
}

func userContent(req provider.ChatRequest) string {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func healthyPipeline() *pipelineClient {
	return &pipelineClient{
		decomposeJSON: `{"tasks": [
			{"name": "research", "description": "research the market", "required_capabilities": ["research"]},
			{"name": "summarize", "description": "summarize findings", "dependencies": ["research"]}
		]}`,
		taskOutput:   "detailed task output",
		decisionJSON: `{"decision": "proceed", "confidence": 0.9, "reasoning": "looks good"}`,
	}
}

func testRegistry() *models.AgentRegistry {
	r := models.NewAgentRegistry()
	r.Register(&models.AgentProfile{
		AgentID: "analyst",
		Name:    "Analyst",
		Capabilities: []models.AgentCapability{
			{ID: "research"}, {ID: "analysis"},
		},
	})
	return r
}

func newTestOrchestrator(t *testing.T, client provider.ChatClient, opts *Options) *Orchestrator {
	t.Helper()
	if opts == nil {
		opts = DefaultOptions()
	}
	o, err := New(RequiredConfig{
		Client:    client,
		Registry:  testRegistry(),
		Workspace: t.TempDir(),
	}, WithOptions(opts))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewRequiresClientAndAgents(t *testing.T) {
	if _, err := New(RequiredConfig{Registry: testRegistry(), Workspace: t.TempDir()}); err == nil {
		t.Error("expected error without a client")
	}
	if _, err := New(RequiredConfig{
		Client:    healthyPipeline(),
		Registry:  models.NewAgentRegistry(),
		Workspace: t.TempDir(),
	}); err == nil {
		t.Error("expected error without agents")
	}
}

func TestCollaborateFullPipeline(t *testing.T) {
	o := newTestOrchestrator(t, healthyPipeline(), nil)
	request := models.NewCollaborationRequest("evaluate the market")

	result, runTrace, err := o.Collaborate(context.Background(), request)
	if err != nil {
		t.Fatalf("Collaborate: %v", err)
	}
	if result.Decision != "proceed" || result.Confidence != 0.9 {
		t.Errorf("result = %q/%v", result.Decision, result.Confidence)
	}
	if len(result.TaskResults) != 2 {
		t.Errorf("task results = %d, want 2", len(result.TaskResults))
	}
	if result.FeedbackID == "" {
		t.Error("feedback should be recorded by default")
	}
	if runTrace == nil || runTrace.FinalResult != result {
		t.Fatal("returned trace should carry the final result")
	}

	// trace persisted with per-task traces and final result
	traces := o.ListTraces(10, 0)
	if len(traces) != 1 {
		t.Fatalf("traces = %d, want 1", len(traces))
	}
	loaded, err := o.GetTrace(runTrace.TraceID)
	if err != nil || loaded == nil {
		t.Fatalf("GetTrace: %v, %v", loaded, err)
	}
	if loaded.FinalResult == nil || loaded.FinalResult.Decision != "proceed" {
		t.Errorf("trace final result = %+v", loaded.FinalResult)
	}
	if len(loaded.TaskTraces) != 2 {
		t.Errorf("task traces = %d, want 2", len(loaded.TaskTraces))
	}
	if loaded.TotalTokens == 0 {
		t.Error("token rollup missing from saved trace")
	}
}

func TestCollaborateAbortsOnTaskFailure(t *testing.T) {
	client := healthyPipeline()
	client.failTaskNamed = "research the market"

	opts := DefaultOptions()
	opts.MaxRetries = 0
	opts.RetryDelaySeconds = 0
	o := newTestOrchestrator(t, client, opts)

	result, _, err := o.Collaborate(context.Background(), models.NewCollaborationRequest("g"))
	if err != nil {
		t.Fatalf("Collaborate: %v", err)
	}
	if result.Decision != "aborted" || result.Confidence != 0.0 {
		t.Errorf("result = %q/%v, want aborted/0.0", result.Decision, result.Confidence)
	}
	if !strings.HasPrefix(result.Reasoning, "Critical tasks failed: ") {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
	if result.FeedbackID != "" {
		t.Error("aborted runs must not record feedback")
	}

	// dependent task was skipped, not executed
	skipped := 0
	for _, r := range result.TaskResults {
		if r.Status == models.TaskStatusSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}

	// trace still saved
	if len(o.ListTraces(10, 0)) != 1 {
		t.Error("aborted run should still persist its trace")
	}
}

func TestCollaborateContinueWithWarning(t *testing.T) {
	client := healthyPipeline()
	client.decomposeJSON = `{"tasks": [
		{"name": "research the market", "description": "research the market"},
		{"name": "independent check", "description": "independent check"}
	]}`
	client.failTaskNamed = "research the market"

	opts := DefaultOptions()
	opts.MaxRetries = 0
	opts.RetryDelaySeconds = 0
	opts.RequiredTaskFailureMode = FailureModeContinue
	o := newTestOrchestrator(t, client, opts)

	result, _, err := o.Collaborate(context.Background(), models.NewCollaborationRequest("g"))
	if err != nil {
		t.Fatalf("Collaborate: %v", err)
	}
	if result.Decision != "proceed" {
		t.Errorf("decision = %q, want pipeline to continue to a decision", result.Decision)
	}
}

func TestCollaborateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, healthyPipeline(), nil)
	result, _, err := o.Collaborate(ctx, models.NewCollaborationRequest("g"))

	if err == nil {
		t.Fatal("expected the context error to propagate")
	}
	if result == nil || result.Decision != "error" {
		t.Fatalf("result = %+v, want error decision", result)
	}
	if !strings.HasPrefix(result.Reasoning, "Collaboration failed: ") {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
	// trace saved even on the fatal path
	if len(o.ListTraces(10, 0)) != 1 {
		t.Error("failed run should still persist its trace")
	}
}

func TestCollaborateEmitsProgressEvents(t *testing.T) {
	var phases []string
	listener := func(e *models.ProgressEvent) error {
		if e.Type == "phase_started" {
			phases = append(phases, e.Message)
		}
		return nil
	}

	o, err := New(RequiredConfig{
		Client:    healthyPipeline(),
		Registry:  testRegistry(),
		Workspace: t.TempDir(),
	}, WithProgressListener(listener))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := o.Collaborate(context.Background(), models.NewCollaborationRequest("g")); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Phase started: decomposition",
		"Phase started: dispatching",
		"Phase started: execution",
		"Phase started: aggregation",
		"Phase started: decision",
	}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %q, want %q", i, phases[i], want[i])
		}
	}
}

func TestVerifyDecisionRoundTrip(t *testing.T) {
	o := newTestOrchestrator(t, healthyPipeline(), nil)

	result, _, err := o.Collaborate(context.Background(), models.NewCollaborationRequest("g"))
	if err != nil {
		t.Fatal(err)
	}

	pending, err := o.GetPendingVerifications()
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	verified, err := o.VerifyDecision(result.FeedbackID, "it worked", true, "")
	if err != nil || verified == nil {
		t.Fatalf("VerifyDecision: %v, %v", verified, err)
	}

	stats, err := o.GetAccuracyStats("", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.VerifiedDecisions != 1 || stats.CorrectDecisions != 1 || stats.Accuracy != 1.0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeliberateRecordsHistoryUnderTraceID(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	o, err := New(RequiredConfig{
		Client:    healthyPipeline(),
		Registry:  testRegistry(),
		Workspace: t.TempDir(),
	}, WithHistory(db))
	if err != nil {
		t.Fatal(err)
	}

	request := models.NewDeliberationRequest("open a shop")
	request.MaxRounds = 1
	result, delibTrace, err := o.Deliberate(context.Background(), request)
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if result.FinalDecision != "proceed" {
		t.Fatalf("decision = %q", result.FinalDecision)
	}

	runs, err := db.ListRuns(state.RunKindDeliberate, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	// the history row must resolve to the persisted trace file
	if runs[0].TraceID != delibTrace.TraceID {
		t.Errorf("history id = %q, trace id = %q", runs[0].TraceID, delibTrace.TraceID)
	}
	loaded, err := o.traces.LoadDeliberation(runs[0].TraceID)
	if err != nil || loaded == nil {
		t.Fatalf("LoadDeliberation(%q) = %v, %v", runs[0].TraceID, loaded, err)
	}
	if runs[0].TotalTokens == 0 {
		t.Error("token rollup missing from run history")
	}
	if delibTrace.TotalTokens == 0 || delibTrace.TotalLLMCalls == 0 {
		t.Errorf("trace rollup = %d tokens / %d calls",
			delibTrace.TotalTokens, delibTrace.TotalLLMCalls)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.MaxConcurrentTasks != 4 || opts.TaskTimeoutSeconds != 300 || opts.TotalTimeoutSeconds != 1800 {
		t.Errorf("timeouts = %+v", opts)
	}
	if opts.MaxRetries != 2 || opts.RetryDelaySeconds != 1.0 {
		t.Errorf("retries = %+v", opts)
	}
	if !opts.TraceEnabled || !opts.FeedbackEnabled || opts.FeedbackReminderDays != 7 {
		t.Errorf("feedback = %+v", opts)
	}
	if opts.RequiredTaskFailureMode != FailureModeAbort {
		t.Errorf("failure mode = %q", opts.RequiredTaskFailureMode)
	}
}
