package executor

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/quorumhq/quorum/pkg/models"
)

// DefaultMaxConcurrent bounds how many tasks run at once.
const DefaultMaxConcurrent = 4

// ProgressFunc is invoked when a task launches (progress 0.0) and when
// it finishes (1.0 on success, 0.0 otherwise).
type ProgressFunc func(taskID, agentID string, progress float64)

// ParallelExecutor runs a task graph with bounded concurrency. Tasks
// become ready only when every dependency has a COMPLETED result.
type ParallelExecutor struct {
	exec          *TaskExecutor
	maxConcurrent int
	progress      ProgressFunc
}

// NewParallelExecutor creates a graph executor around the given task
// executor. maxConcurrent <= 0 selects the default. progress may be nil.
func NewParallelExecutor(exec *TaskExecutor, maxConcurrent int, progress ProgressFunc) *ParallelExecutor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ParallelExecutor{
		exec:          exec,
		maxConcurrent: maxConcurrent,
		progress:      progress,
	}
}

// ExecuteAll executes every task, honoring dependencies and the
// concurrency bound, and returns one result per task ID. Previously
// computed results may be seeded via depResults. A batch is fully
// collected before readiness is recomputed, so a task never starts
// before all of its dependencies have completed.
//
// When no task is ready: if some remaining task is blocked on a
// dependency that resolved with a non-COMPLETED status, every remaining
// task is marked SKIPPED. Otherwise the graph contains a cycle and up to
// maxConcurrent remaining tasks are force-executed so the call always
// terminates.
func (p *ParallelExecutor) ExecuteAll(
	ctx context.Context,
	tasks []*models.Task,
	assignments map[string]string,
	registry *models.AgentRegistry,
	depResults map[string]*models.TaskResult,
) map[string]*models.TaskResult {
	results := make(map[string]*models.TaskResult, len(tasks))
	for id, r := range depResults {
		results[id] = r
	}

	taskMap := make(map[string]*models.Task, len(tasks))
	// Insertion order keeps launch order within a batch deterministic.
	var remaining []string
	for _, t := range tasks {
		taskMap[t.ID] = t
		if _, done := results[t.ID]; !done {
			remaining = append(remaining, t.ID)
		}
	}

	for len(remaining) > 0 {
		ready := p.readyTasks(remaining, taskMap, results)

		if len(ready) == 0 {
			if p.hasFailedDependency(remaining, taskMap, results) {
				for _, id := range remaining {
					taskMap[id].Status = models.TaskStatusSkipped
					results[id] = &models.TaskResult{
						TaskID: id,
						Status: models.TaskStatusSkipped,
						Error:  "Dependency failed",
					}
				}
				remaining = nil
				break
			}
			// Cycle: force progress rather than livelock.
			ready = remaining
			if len(ready) > p.maxConcurrent {
				ready = ready[:p.maxConcurrent]
			}
		}

		batch := ready
		if len(batch) > p.maxConcurrent {
			batch = batch[:p.maxConcurrent]
		}

		batchResults := p.runBatch(ctx, batch, taskMap, assignments, registry, results)

		done := make(map[string]bool, len(batch))
		for i, id := range batch {
			results[id] = batchResults[i]
			taskMap[id].Status = batchResults[i].Status
			done[id] = true
		}

		next := remaining[:0]
		for _, id := range remaining {
			if !done[id] {
				next = append(next, id)
			}
		}
		remaining = next
	}

	return results
}

// ExecuteSingle runs one task directly, outside graph scheduling.
func (p *ParallelExecutor) ExecuteSingle(ctx context.Context, task *models.Task, agent *models.AgentProfile, depContext map[string]string) *models.TaskResult {
	return p.exec.Execute(ctx, task, agent, depContext)
}

func (p *ParallelExecutor) readyTasks(remaining []string, taskMap map[string]*models.Task, results map[string]*models.TaskResult) []string {
	var ready []string
	for _, id := range remaining {
		task := taskMap[id]
		ok := true
		for _, dep := range task.Dependencies {
			res, present := results[dep]
			if !present || res.Status != models.TaskStatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// hasFailedDependency reports whether any remaining task is blocked on
// a dependency that resolved with a non-COMPLETED status.
func (p *ParallelExecutor) hasFailedDependency(remaining []string, taskMap map[string]*models.Task, results map[string]*models.TaskResult) bool {
	for _, id := range remaining {
		for _, dep := range taskMap[id].Dependencies {
			if res, present := results[dep]; present && res.Status != models.TaskStatusCompleted {
				return true
			}
		}
	}
	return false
}

func (p *ParallelExecutor) runBatch(
	ctx context.Context,
	batch []string,
	taskMap map[string]*models.Task,
	assignments map[string]string,
	registry *models.AgentRegistry,
	results map[string]*models.TaskResult,
) []*models.TaskResult {
	batchResults := make([]*models.TaskResult, len(batch))
	sem := make(chan struct{}, p.maxConcurrent)

	var wg conc.WaitGroup
	for i, id := range batch {
		i, id := i, id
		wg.Go(func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			batchResults[i] = p.runOne(ctx, taskMap[id], assignments, registry, results)
		})
	}
	wg.Wait()

	return batchResults
}

func (p *ParallelExecutor) runOne(
	ctx context.Context,
	task *models.Task,
	assignments map[string]string,
	registry *models.AgentRegistry,
	results map[string]*models.TaskResult,
) *models.TaskResult {
	agentID := assignments[task.ID]
	var agent *models.AgentProfile
	if agentID != "" {
		agent, _ = registry.Get(agentID)
	}
	if agent == nil {
		return &models.TaskResult{
			TaskID: task.ID,
			Status: models.TaskStatusFailed,
			Error:  "no agent assigned",
		}
	}

	// Dependency outputs were finalized in earlier batches; this read is
	// safe because batches never overlap.
	depContext := make(map[string]string)
	for _, dep := range task.Dependencies {
		if res, ok := results[dep]; ok && res.Output != "" {
			depContext["task_"+dep] = res.Output
		}
	}

	task.Status = models.TaskStatusRunning
	if p.progress != nil {
		p.progress(task.ID, agentID, 0.0)
	}

	result := p.exec.Execute(ctx, task, agent, depContext)

	if p.progress != nil {
		progress := 0.0
		if result.Status == models.TaskStatusCompleted {
			progress = 1.0
		}
		p.progress(task.ID, agentID, progress)
	}

	return result
}
