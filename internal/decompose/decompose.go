// Package decompose breaks a collaboration goal into executable tasks
// using an LLM, with a deterministic fallback when the model output is
// unusable. Decomposition never fails: the caller always receives at
// least one task.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quorumhq/quorum/internal/llmjson"
	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

const decomposeSystemPrompt = `You are a task decomposition expert. Your job is to break down a complex goal into smaller, executable subtasks.

Rules:
1. Each task should be specific and actionable
2. Tasks should have clear required capabilities (e.g., technical_analysis, data_fetch, backtest, macro_analysis)
3. Specify dependencies between tasks if some must complete before others
4. Keep tasks focused - each task should have a single responsibility
5. Assign priority: higher number = higher priority (scale 1-10)

Respond with ONLY valid JSON, no markdown fences.`

const decomposePromptTemplate = `Decompose the following goal into subtasks:

## Goal
%s

## Context
%s

## Available Capabilities
%s

## Execution Mode
%s

## Instructions
Create 3-8 subtasks that together accomplish the goal. Each task should:
- Have a clear name and description
- Specify required capabilities from the available list
- List any dependencies (task names it depends on)

Respond in this JSON format:
{
  "tasks": [
    {
      "name": "task_name",
      "description": "Detailed description of what this task should accomplish",
      "required_capabilities": ["capability1", "capability2"],
      "dependencies": [],
      "priority": 8
    }
  ]
}
`

// DefaultCapabilities is the capability vocabulary offered to the model
// when the caller does not supply one.
var DefaultCapabilities = []string{
	"technical_analysis",
	"macro_analysis",
	"data_fetch",
	"onchain_analysis",
	"backtest",
	"sentiment_analysis",
	"risk_assessment",
	"report_writing",
	"code_generation",
	"web_search",
}

// Decomposer turns collaboration goals into task lists.
type Decomposer struct {
	client       provider.ChatClient
	capabilities []string
}

// New creates a decomposer. A nil or empty capability list selects
// DefaultCapabilities.
func New(client provider.ChatClient, capabilities []string) *Decomposer {
	if len(capabilities) == 0 {
		capabilities = DefaultCapabilities
	}
	return &Decomposer{client: client, capabilities: capabilities}
}

// taskSpec is the wire shape the model responds with.
type taskSpec struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Dependencies         []string `json:"dependencies"`
	Priority             *int     `json:"priority"`
}

type decomposeResponse struct {
	Tasks []taskSpec `json:"tasks"`
}

// Decompose breaks the request's goal into tasks. It never returns an
// error: if the model call or its output fails, a single fallback task
// covering the whole goal is returned instead.
func (d *Decomposer) Decompose(ctx context.Context, request *models.CollaborationRequest) []*models.Task {
	contextJSON, err := json.MarshalIndent(request.Context, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(decomposePromptTemplate,
		request.Goal,
		string(contextJSON),
		strings.Join(d.capabilities, ", "),
		string(request.Mode),
	)

	resp, err := d.client.Chat(ctx, provider.ChatRequest{
		System:      decomposeSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return d.fallbackTasks(request)
	}

	var parsed decomposeResponse
	if err := llmjson.Unmarshal(resp.Content, &parsed); err != nil {
		return d.fallbackTasks(request)
	}
	if len(parsed.Tasks) == 0 {
		return d.fallbackTasks(request)
	}

	// First pass creates the tasks; the second resolves dependency names
	// to ids. A task may only depend on tasks earlier in the list, so
	// forward references and invented names are silently dropped.
	tasks := make([]*models.Task, 0, len(parsed.Tasks))
	nameToIndex := make(map[string]int, len(parsed.Tasks))
	for i, spec := range parsed.Tasks {
		name := spec.Name
		if name == "" {
			name = "unnamed_task"
		}
		priority := 5
		if spec.Priority != nil {
			priority = *spec.Priority
		}
		task := &models.Task{
			ID:                   models.NewTaskID(),
			Name:                 name,
			Description:          spec.Description,
			RequiredCapabilities: spec.RequiredCapabilities,
			Priority:             priority,
			Status:               models.TaskStatusPending,
			InputData:            request.Context,
			TimeoutSeconds:       models.DefaultTaskTimeoutSeconds,
		}
		tasks = append(tasks, task)
		nameToIndex[task.Name] = i
	}

	for i, spec := range parsed.Tasks {
		var depIDs []string
		for _, depName := range spec.Dependencies {
			if idx, ok := nameToIndex[depName]; ok && idx < i {
				depIDs = append(depIDs, tasks[idx].ID)
			}
		}
		tasks[i].Dependencies = depIDs
	}

	return tasks
}

// fallbackTasks returns the single catch-all task used when
// decomposition fails.
func (d *Decomposer) fallbackTasks(request *models.CollaborationRequest) []*models.Task {
	return []*models.Task{
		{
			ID:             models.NewTaskID(),
			Name:           "analyze_goal",
			Description:    fmt.Sprintf("Analyze and address the goal: %s", request.Goal),
			Priority:       10,
			Status:         models.TaskStatusPending,
			InputData:      request.Context,
			TimeoutSeconds: models.DefaultTaskTimeoutSeconds,
		},
	}
}

// DependencyGraph maps each task ID to its dependency IDs.
func DependencyGraph(tasks []*models.Task) map[string][]string {
	graph := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		graph[t.ID] = t.Dependencies
	}
	return graph
}

// ExecutionOrder groups tasks into waves: every task in a wave has all
// of its dependencies in earlier waves, so tasks within a wave can run
// in parallel. Waves are sorted by priority descending. When a cycle
// blocks progress one task is forced into the next wave so the order
// always covers every task.
func ExecutionOrder(tasks []*models.Task) [][]*models.Task {
	taskMap := make(map[string]*models.Task, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		taskMap[t.ID] = t
		inDegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := inDegree[dep]; ok {
				inDegree[t.ID]++
			}
		}
	}

	// Insertion-ordered remaining list keeps wave contents deterministic.
	remaining := make([]string, 0, len(tasks))
	for _, t := range tasks {
		remaining = append(remaining, t.ID)
	}

	var waves [][]*models.Task
	for len(remaining) > 0 {
		var ready []*models.Task
		for _, id := range remaining {
			if inDegree[id] == 0 {
				ready = append(ready, taskMap[id])
			}
		}

		if len(ready) == 0 {
			// Circular dependency: force one task through.
			ready = []*models.Task{taskMap[remaining[0]]}
		}

		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].Priority > ready[j].Priority
		})
		waves = append(waves, ready)

		picked := make(map[string]bool, len(ready))
		for _, t := range ready {
			picked[t.ID] = true
			for _, other := range taskMap {
				for _, dep := range other.Dependencies {
					if dep == t.ID {
						inDegree[other.ID]--
					}
				}
			}
		}

		next := remaining[:0]
		for _, id := range remaining {
			if !picked[id] {
				next = append(next, id)
			}
		}
		remaining = next
	}

	return waves
}
