package models

import "time"

// TaskResult is the outcome of executing one task.
type TaskResult struct {
	// TaskID identifies the task this result belongs to.
	TaskID string `json:"task_id"`
	// Status is the terminal status of the task.
	Status TaskStatus `json:"status"`
	// Output is the agent's textual output, when completed.
	Output string `json:"output,omitempty"`
	// Error describes why the task failed or was skipped.
	Error string `json:"error,omitempty"`
	// Trace is the detailed execution trace for this task.
	Trace *TaskExecutionTrace `json:"trace,omitempty"`
	// Artifacts lists paths or references produced by the task.
	Artifacts []string `json:"artifacts,omitempty"`
}

// CollaborationRequest describes one goal to collaborate on.
type CollaborationRequest struct {
	// Goal is the objective to achieve.
	Goal string `json:"goal"`
	// Context carries structured background for decomposition and execution.
	Context map[string]any `json:"context,omitempty"`
	// Mode selects the scheduling mode.
	Mode CollaborationMode `json:"mode"`
	// MaxRounds bounds iterative refinement.
	MaxRounds int `json:"max_rounds"`
	// RequireBacktest asks for a backtest before deciding.
	RequireBacktest bool `json:"require_backtest"`
	// FeedbackEnabled records the decision for later verification.
	FeedbackEnabled bool `json:"feedback_enabled"`
	// TimeoutSeconds bounds the whole collaboration.
	TimeoutSeconds int `json:"timeout_seconds"`
	// RequestID is a short unique identifier for this request.
	RequestID string `json:"request_id"`
}

// NewCollaborationRequest returns a request with the standard defaults.
func NewCollaborationRequest(goal string) *CollaborationRequest {
	return &CollaborationRequest{
		Goal:            goal,
		Mode:            ModeParallel,
		MaxRounds:       3,
		FeedbackEnabled: true,
		TimeoutSeconds:  1800,
		RequestID:       NewRequestID(),
	}
}

// DecisionFactor is one weighted input into the final decision.
type DecisionFactor struct {
	// Name identifies the factor.
	Name string `json:"name"`
	// Value is the factor's observed value.
	Value string `json:"value"`
	// Weight is the factor's relative importance.
	Weight float64 `json:"weight"`
	// SourceAgent is the agent that contributed this factor.
	SourceAgent string `json:"source_agent,omitempty"`
	// Confidence is the confidence in this factor, in [0.0, 1.0].
	Confidence float64 `json:"confidence"`
}

// CollaborationResult is the final outcome of a collaboration run.
type CollaborationResult struct {
	// Goal echoes the request goal.
	Goal string `json:"goal"`
	// Decision is the decision label, e.g. "proceed" or "error".
	Decision string `json:"decision"`
	// Confidence is the decision confidence, in [0.0, 1.0].
	Confidence float64 `json:"confidence"`
	// Reasoning explains the decision.
	Reasoning string `json:"reasoning,omitempty"`
	// Factors lists the weighted inputs behind the decision.
	Factors []DecisionFactor `json:"factors,omitempty"`
	// TaskResults maps task ID to its result.
	TaskResults map[string]*TaskResult `json:"task_results,omitempty"`
	// AgentContributions maps task ID to a preview of its output.
	AgentContributions map[string]string `json:"agent_contributions,omitempty"`
	// ExecutionPlan optionally carries a structured plan.
	ExecutionPlan map[string]any `json:"execution_plan,omitempty"`
	// BacktestResults optionally carries backtest output.
	BacktestResults map[string]any `json:"backtest_results,omitempty"`
	// FeedbackID links the recorded feedback entry, if any.
	FeedbackID string `json:"feedback_id,omitempty"`
	// CreatedAt is when the result was produced.
	CreatedAt time.Time `json:"created_at"`
}
