package models

import "time"

// LLMCallRecord captures one model invocation inside a task execution.
type LLMCallRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model,omitempty"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	LatencyMS       int       `json:"latency_ms"`
	CostEstimate    float64   `json:"cost_estimate,omitempty"`
	PromptPreview   string    `json:"prompt_preview,omitempty"`
	ResponsePreview string    `json:"response_preview,omitempty"`
}

// ToolCallRecord captures one tool invocation inside a task execution.
type ToolCallRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	ToolName   string         `json:"tool_name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	DurationMS int            `json:"duration_ms"`
	Success    bool           `json:"success"`
}

// TaskExecutionTrace records everything that happened while executing
// one task: timing, output, every LLM and tool call, and retries.
type TaskExecutionTrace struct {
	TaskID  string     `json:"task_id"`
	AgentID string     `json:"agent_id,omitempty"`
	Status  TaskStatus `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int        `json:"duration_ms,omitempty"`

	Input           map[string]any `json:"input,omitempty"`
	Output          string         `json:"output,omitempty"`
	OutputArtifacts []string       `json:"output_artifacts,omitempty"`

	LLMCalls  []LLMCallRecord  `json:"llm_calls,omitempty"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// MarkStarted transitions the trace to running.
func (t *TaskExecutionTrace) MarkStarted() {
	t.Status = TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
}

// MarkCompleted records the output and timing for a successful run.
func (t *TaskExecutionTrace) MarkCompleted(output string) {
	t.Status = TaskStatusCompleted
	now := time.Now()
	t.CompletedAt = &now
	t.Output = output
	if t.StartedAt != nil {
		t.DurationMS = int(now.Sub(*t.StartedAt).Milliseconds())
	}
}

// MarkFailed records the error and timing for a failed run.
func (t *TaskExecutionTrace) MarkFailed(errMsg string) {
	t.Status = TaskStatusFailed
	now := time.Now()
	t.CompletedAt = &now
	t.Error = errMsg
	if t.StartedAt != nil {
		t.DurationMS = int(now.Sub(*t.StartedAt).Milliseconds())
	}
}

// CollaborationTrace is the complete audit record of a collaboration run.
type CollaborationTrace struct {
	TraceID     string     `json:"trace_id"`
	Goal        string     `json:"goal"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Request    *CollaborationRequest          `json:"request,omitempty"`
	Tasks      []*Task                        `json:"tasks,omitempty"`
	TaskTraces map[string]*TaskExecutionTrace `json:"task_traces,omitempty"`

	FilePath string `json:"file_path,omitempty"`

	FinalResult *CollaborationResult `json:"final_result,omitempty"`

	TotalTokens     int `json:"total_tokens"`
	TotalLLMCalls   int `json:"total_llm_calls"`
	TotalToolCalls  int `json:"total_tool_calls"`
	TotalDurationMS int `json:"total_duration_ms"`
}

// NewCollaborationTrace returns an empty trace for the given goal.
func NewCollaborationTrace(goal string) *CollaborationTrace {
	return &CollaborationTrace{
		TraceID:    NewTraceID(),
		Goal:       goal,
		CreatedAt:  time.Now(),
		TaskTraces: make(map[string]*TaskExecutionTrace),
	}
}

// MarkCompleted stamps the completion time and rolls up token, call and
// duration totals from the per-task traces.
func (c *CollaborationTrace) MarkCompleted() {
	now := time.Now()
	c.CompletedAt = &now
	c.TotalDurationMS = int(now.Sub(c.CreatedAt).Milliseconds())

	c.TotalLLMCalls = 0
	c.TotalToolCalls = 0
	c.TotalTokens = 0
	for _, t := range c.TaskTraces {
		c.TotalLLMCalls += len(t.LLMCalls)
		c.TotalToolCalls += len(t.ToolCalls)
		for _, call := range t.LLMCalls {
			c.TotalTokens += call.InputTokens + call.OutputTokens
		}
	}
}

// Summary returns the fields shown in trace listings.
func (c *CollaborationTrace) Summary() map[string]any {
	completed, failed := 0, 0
	for _, t := range c.TaskTraces {
		switch t.Status {
		case TaskStatusCompleted:
			completed++
		case TaskStatusFailed:
			failed++
		}
	}
	s := map[string]any{
		"trace_id":         c.TraceID,
		"goal":             c.Goal,
		"duration_ms":      c.TotalDurationMS,
		"total_tokens":     c.TotalTokens,
		"total_llm_calls":  c.TotalLLMCalls,
		"total_tool_calls": c.TotalToolCalls,
		"task_count":       len(c.Tasks),
		"completed_tasks":  completed,
		"failed_tasks":     failed,
	}
	if c.FinalResult != nil {
		s["decision"] = c.FinalResult.Decision
		s["confidence"] = c.FinalResult.Confidence
	}
	return s
}

// ProgressEvent is a real-time notification emitted during execution.
type ProgressEvent struct {
	// Type is one of phase_started, task_started, task_progress,
	// task_completed, task_failed, decision_made.
	Type string `json:"type"`
	// TraceID identifies the run the event belongs to.
	TraceID string `json:"trace_id"`
	// TaskID identifies the task, for task-level events.
	TaskID string `json:"task_id,omitempty"`
	// AgentID identifies the agent, for task-level events.
	AgentID string `json:"agent_id,omitempty"`
	// Message is a human-readable description.
	Message string `json:"message,omitempty"`
	// Progress is a completion fraction in [0.0, 1.0], when known.
	Progress float64 `json:"progress,omitempty"`
	// ResultPreview is a truncated view of a task's output.
	ResultPreview string `json:"result_preview,omitempty"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}
