package orchestrator

import (
	"github.com/quorumhq/quorum/internal/deliberate"
	"github.com/quorumhq/quorum/internal/dispatch"
	"github.com/quorumhq/quorum/internal/state"
	"github.com/quorumhq/quorum/internal/trace"
)

// Failure modes for required tasks.
const (
	// FailureModeAbort stops the pipeline when any task fails.
	FailureModeAbort = "abort"
	// FailureModeContinue logs a warning and keeps going with the
	// results that did complete.
	FailureModeContinue = "continue_with_warning"
)

// Options holds the runtime tuning knobs for a collaboration run.
type Options struct {
	// MaxConcurrentTasks bounds parallel task execution.
	MaxConcurrentTasks int `json:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
	// TaskTimeoutSeconds is the per-attempt timeout applied to tasks
	// that don't set their own.
	TaskTimeoutSeconds int `json:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
	// TotalTimeoutSeconds bounds the whole pipeline.
	TotalTimeoutSeconds int `json:"total_timeout_seconds" mapstructure:"total_timeout_seconds"`
	// MaxRetries is the number of retries after a failed attempt.
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
	// RetryDelaySeconds is the base backoff delay, doubled per attempt.
	RetryDelaySeconds float64 `json:"retry_delay_seconds" mapstructure:"retry_delay_seconds"`
	// TraceEnabled persists a full trace of every run.
	TraceEnabled bool `json:"trace_enabled" mapstructure:"trace_enabled"`
	// FeedbackEnabled records decisions for later verification.
	FeedbackEnabled bool `json:"feedback_enabled" mapstructure:"feedback_enabled"`
	// FeedbackReminderDays is when verification becomes due.
	FeedbackReminderDays int `json:"feedback_reminder_days" mapstructure:"feedback_reminder_days"`
	// RequiredTaskFailureMode is FailureModeAbort or FailureModeContinue.
	RequiredTaskFailureMode string `json:"required_task_failure_mode" mapstructure:"required_task_failure_mode"`
	// DispatchStrategy selects how tasks are matched to agents.
	DispatchStrategy dispatch.Strategy `json:"dispatch_strategy" mapstructure:"dispatch_strategy"`
	// DefaultModel overrides the provider's default model, if set.
	DefaultModel string `json:"default_model" mapstructure:"default_model"`
}

// DefaultOptions returns the standard option values.
func DefaultOptions() *Options {
	return &Options{
		MaxConcurrentTasks:      4,
		TaskTimeoutSeconds:      300,
		TotalTimeoutSeconds:     1800,
		MaxRetries:              2,
		RetryDelaySeconds:       1.0,
		TraceEnabled:            true,
		FeedbackEnabled:         true,
		FeedbackReminderDays:    7,
		RequiredTaskFailureMode: FailureModeAbort,
		DispatchStrategy:        dispatch.StrategyBestMatch,
	}
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorConfig)

// orchestratorConfig holds optional construction configuration.
type orchestratorConfig struct {
	options      *Options
	logger       *DebugLogger
	history      *state.DB
	listeners    []trace.Listener
	delibEvents  deliberate.ProgressFunc
	traceManager *trace.Manager
}

// WithOptions sets the runtime options.
func WithOptions(o *Options) Option {
	return func(c *orchestratorConfig) { c.options = o }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(c *orchestratorConfig) { c.logger = l }
}

// WithHistory sets the run-history database. Recording to it is
// best-effort; failures are logged and ignored.
func WithHistory(db *state.DB) Option {
	return func(c *orchestratorConfig) { c.history = db }
}

// WithProgressListener registers a listener for progress events on
// every collaboration run.
func WithProgressListener(l trace.Listener) Option {
	return func(c *orchestratorConfig) { c.listeners = append(c.listeners, l) }
}

// WithDeliberationProgress sets the callback for deliberation events.
func WithDeliberationProgress(fn deliberate.ProgressFunc) Option {
	return func(c *orchestratorConfig) { c.delibEvents = fn }
}

// WithTraceManager sets a custom trace manager (mainly for testing).
func WithTraceManager(m *trace.Manager) Option {
	return func(c *orchestratorConfig) { c.traceManager = m }
}
