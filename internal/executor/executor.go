// Package executor runs tasks against their assigned agents: single-task
// execution with per-attempt timeouts and exponential backoff retries,
// and dependency-aware graph execution under a concurrency bound.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

const executorSystemPrompt = `You are a specialized agent executing a specific task as part of a larger collaboration.

Focus only on your assigned task. Be thorough and provide detailed results.
Your output will be used by other agents or aggregated into a final decision.`

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2
	// DefaultBaseDelay is the backoff unit: sleep = base * 2^attempt.
	DefaultBaseDelay = time.Second

	depPreviewLimit    = 1000
	recordPreviewLimit = 200
)

// TaskExecutor executes one task at a time with retry and timeout handling.
type TaskExecutor struct {
	client     provider.ChatClient
	maxRetries int
	baseDelay  time.Duration

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

// NewTaskExecutor creates a task executor. maxRetries < 0 selects the
// default; baseDelay <= 0 selects the default.
func NewTaskExecutor(client provider.ChatClient, maxRetries int, baseDelay time.Duration) *TaskExecutor {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &TaskExecutor{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Execute runs the task with its assigned agent. depContext carries
// outputs of completed dependencies keyed by "task_<id>". The result is
// COMPLETED on the first successful attempt, FAILED once the retry
// budget is exhausted; Execute itself never returns an error.
func (e *TaskExecutor) Execute(ctx context.Context, task *models.Task, agent *models.AgentProfile, depContext map[string]string) *models.TaskResult {
	trace := &models.TaskExecutionTrace{
		TaskID:  task.ID,
		AgentID: agent.AgentID,
		Input:   task.InputData,
	}
	trace.MarkStarted()

	timeout := time.Duration(task.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = models.DefaultTaskTimeoutSeconds * time.Second
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		trace.RetryCount = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		output, record, err := e.executeWithLLM(attemptCtx, task, agent, depContext)
		cancel()

		if err == nil {
			trace.LLMCalls = append(trace.LLMCalls, record)
			trace.MarkCompleted(output)
			return &models.TaskResult{
				TaskID: task.ID,
				Status: models.TaskStatusCompleted,
				Output: output,
				Trace:  trace,
			}
		}

		if errors.Is(err, context.DeadlineExceeded) {
			trace.Error = fmt.Sprintf("task timeout after %ds", int(timeout/time.Second))
		} else {
			trace.Error = err.Error()
		}

		if ctx.Err() != nil {
			break
		}
		if attempt < e.maxRetries {
			e.sleep(ctx, e.baseDelay*(1<<attempt))
		}
	}

	if trace.Error == "" {
		trace.Error = "unknown error"
	}
	trace.MarkFailed(trace.Error)
	return &models.TaskResult{
		TaskID: task.ID,
		Status: models.TaskStatusFailed,
		Error:  trace.Error,
		Trace:  trace,
	}
}

func (e *TaskExecutor) executeWithLLM(ctx context.Context, task *models.Task, agent *models.AgentProfile, depContext map[string]string) (string, models.LLMCallRecord, error) {
	contextBlock := ""
	if len(depContext) > 0 {
		contextBlock = "\n## Context from Previous Tasks\n"
		for key, value := range depContext {
			contextBlock += fmt.Sprintf("- %s: %s\n", key, truncate(value, depPreviewLimit))
		}
	}

	inputJSON, err := json.Marshal(task.InputData)
	if err != nil {
		inputJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(`## Your Role
%s: %s

## Your Task
%s
%s

## Task Input
%s
%s
## Instructions
Complete this task thoroughly. Focus on quality over brevity.
Provide your results in a clear, structured format.`,
		agent.Name, agent.Description,
		task.Name, task.Description,
		string(inputJSON), contextBlock)

	start := time.Now()
	resp, err := e.client.Chat(ctx, provider.ChatRequest{
		System:      executorSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       agent.Model,
		Temperature: agent.Temperature,
	})
	if err != nil {
		return "", models.LLMCallRecord{}, err
	}

	record := models.LLMCallRecord{
		Timestamp:       start,
		Model:           resp.Model,
		InputTokens:     int(resp.InputTokens),
		OutputTokens:    int(resp.OutputTokens),
		LatencyMS:       int(time.Since(start).Milliseconds()),
		PromptPreview:   truncate(prompt, recordPreviewLimit),
		ResponsePreview: truncate(resp.Content, recordPreviewLimit),
	}
	return resp.Content, record, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
