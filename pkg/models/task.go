// Package models defines the shared data model for the collaboration
// engine: tasks, agents, results, traces, feedback records and the
// deliberation types. All wire formats (trace files, feedback JSONL)
// serialize these structs directly.
package models

import "github.com/google/uuid"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed after all retries.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusTimeout indicates the task exceeded its per-attempt deadline.
	TaskStatusTimeout TaskStatus = "timeout"
	// TaskStatusSkipped indicates the task was never run because a
	// dependency did not complete.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusTimeout, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status will not change again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// CollaborationMode selects how decomposed tasks are scheduled.
type CollaborationMode string

const (
	// ModeParallel runs independent tasks concurrently.
	ModeParallel CollaborationMode = "parallel"
	// ModeSequential runs tasks one at a time.
	ModeSequential CollaborationMode = "sequential"
	// ModePipeline chains each task onto the previous one's output.
	ModePipeline CollaborationMode = "pipeline"
	// ModeMapReduce fans out then aggregates.
	ModeMapReduce CollaborationMode = "map_reduce"
)

// Task is a unit of work produced by decomposition and executed by an agent.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the short machine-friendly task name.
	Name string `json:"name"`
	// Description tells the assigned agent what to do.
	Description string `json:"description"`
	// RequiredCapabilities lists capability IDs the executing agent should have.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// Dependencies lists task IDs that must complete before this task runs.
	Dependencies []string `json:"dependencies,omitempty"`
	// Priority orders tasks within a batch; higher runs first.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the ID of the agent dispatched to this task.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// InputData carries extra structured input for the agent.
	InputData map[string]any `json:"input_data,omitempty"`
	// TimeoutSeconds bounds a single execution attempt.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultTaskTimeoutSeconds is applied to tasks created without an
// explicit timeout.
const DefaultTaskTimeoutSeconds = 300

// NewTask creates a pending task with a fresh ID and the default timeout.
func NewTask(name, description string) *Task {
	return &Task{
		ID:             NewTaskID(),
		Name:           name,
		Description:    description,
		Status:         TaskStatusPending,
		TimeoutSeconds: DefaultTaskTimeoutSeconds,
	}
}

// NewTaskID returns a short random task identifier.
func NewTaskID() string {
	return uuid.New().String()[:8]
}

// NewRequestID returns a short random request identifier.
func NewRequestID() string {
	return uuid.New().String()[:8]
}

// NewFeedbackID returns a short random feedback identifier.
func NewFeedbackID() string {
	return uuid.New().String()[:8]
}

// NewTraceID returns a random trace identifier.
func NewTraceID() string {
	return uuid.New().String()[:12]
}
