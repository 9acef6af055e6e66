package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/quorumhq/quorum/pkg/models"
)

const resultPreviewLimit = 500

// Listener receives progress events as they happen. Errors are logged
// and never propagate to the pipeline.
type Listener func(event *models.ProgressEvent) error

// ProgressTracker fans progress events out to listeners, in
// registration order, and retains every emitted event for later
// inspection.
type ProgressTracker struct {
	traceID string
	warnf   func(format string, args ...any)

	mu        sync.Mutex
	listeners []Listener
	events    []*models.ProgressEvent
}

// NewProgressTracker creates a tracker for one run. warnf may be nil.
func NewProgressTracker(traceID string, warnf func(format string, args ...any)) *ProgressTracker {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &ProgressTracker{traceID: traceID, warnf: warnf}
}

// AddListener registers a listener. Listeners are notified in the
// order they were added.
func (p *ProgressTracker) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Events returns a copy of all events emitted so far.
func (p *ProgressTracker) Events() []*models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.ProgressEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Emit records the event and notifies every listener. A listener
// failure or panic is logged and does not stop delivery to the rest.
func (p *ProgressTracker) Emit(event *models.ProgressEvent) {
	event.TraceID = p.traceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.Lock()
	p.events = append(p.events, event)
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		p.notify(l, event)
	}
}

func (p *ProgressTracker) notify(l Listener, event *models.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.warnf("progress listener panicked on %s: %v", event.Type, r)
		}
	}()
	if err := l(event); err != nil {
		p.warnf("progress listener failed on %s: %v", event.Type, err)
	}
}

// OnPhaseStarted announces a new pipeline phase.
func (p *ProgressTracker) OnPhaseStarted(phase string) {
	p.Emit(&models.ProgressEvent{
		Type:    "phase_started",
		Message: "Phase started: " + phase,
	})
}

// OnTaskStarted announces that an agent picked up a task.
func (p *ProgressTracker) OnTaskStarted(taskID, agentID string) {
	p.Emit(&models.ProgressEvent{
		Type:    "task_started",
		TaskID:  taskID,
		AgentID: agentID,
	})
}

// OnTaskProgress reports partial progress on a task.
func (p *ProgressTracker) OnTaskProgress(taskID, message string, progress float64) {
	p.Emit(&models.ProgressEvent{
		Type:     "task_progress",
		TaskID:   taskID,
		Message:  message,
		Progress: progress,
	})
}

// OnTaskCompleted reports a finished task with a truncated output
// preview.
func (p *ProgressTracker) OnTaskCompleted(taskID, output string) {
	if len(output) > resultPreviewLimit {
		output = output[:resultPreviewLimit]
	}
	p.Emit(&models.ProgressEvent{
		Type:          "task_completed",
		TaskID:        taskID,
		Progress:      1.0,
		ResultPreview: output,
	})
}

// OnTaskFailed reports a failed task.
func (p *ProgressTracker) OnTaskFailed(taskID, errMsg string) {
	p.Emit(&models.ProgressEvent{
		Type:    "task_failed",
		TaskID:  taskID,
		Message: errMsg,
	})
}

// OnDecisionMade reports the final decision of a run.
func (p *ProgressTracker) OnDecisionMade(decision string, confidence float64) {
	p.Emit(&models.ProgressEvent{
		Type:    "decision_made",
		Message: fmt.Sprintf("Decision: %s (confidence: %.2f)", decision, confidence),
	})
}
