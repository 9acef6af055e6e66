// Package aggregate folds completed task outputs into one narrative
// summary, with a deterministic fallback when the model call fails.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

const aggregatorSystemPrompt = `You are a result aggregation specialist. Your job is to combine multiple task results into a coherent, unified summary.

Rules:
1. Identify key findings from each task
2. Note any agreements or disagreements between tasks
3. Highlight the most important insights
4. Structure the output clearly for decision-making

Respond with a well-structured summary.`

const aggregatorPromptTemplate = `## Goal
%s

## Task Results
%s

## Instructions
Aggregate these task results into a comprehensive summary:
1. Key findings from each analysis
2. Areas of agreement
3. Areas of disagreement or uncertainty
4. Most critical factors for decision-making
5. Overall assessment

Provide a clear, structured summary that will help make a final decision.`

// NoResultsMessage is returned when no task completed with output.
const NoResultsMessage = "No task results available for aggregation."

const (
	promptPreviewLimit   = 2000
	fallbackPreviewLimit = 500
	maxKeyPoints         = 10
)

// Aggregator combines task results into a single summary.
type Aggregator struct {
	client provider.ChatClient
}

// New creates an aggregator.
func New(client provider.ChatClient) *Aggregator {
	return &Aggregator{client: client}
}

// Aggregate summarizes the completed task outputs. Zero completed tasks
// yields a fixed message; exactly one yields its output verbatim without
// a model call; more go through the model with a deterministic fallback
// on failure. Aggregate never returns an error.
func (a *Aggregator) Aggregate(ctx context.Context, request *models.CollaborationRequest, taskResults map[string]*models.TaskResult) string {
	ids := completedIDs(taskResults)

	if len(ids) == 0 {
		return NoResultsMessage
	}
	if len(ids) == 1 {
		return taskResults[ids[0]].Output
	}

	prompt := fmt.Sprintf(aggregatorPromptTemplate, request.Goal, formatResults(ids, taskResults))

	resp, err := a.client.Chat(ctx, provider.ChatRequest{
		System:      aggregatorSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return fallbackAggregation(ids, taskResults)
	}
	return resp.Content
}

// completedIDs returns the IDs of COMPLETED tasks with non-empty output,
// sorted for stable prompt and fallback ordering.
func completedIDs(taskResults map[string]*models.TaskResult) []string {
	var ids []string
	for id, res := range taskResults {
		if res.Status == models.TaskStatusCompleted && res.Output != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func formatResults(ids []string, results map[string]*models.TaskResult) string {
	var sb strings.Builder
	for i, id := range ids {
		res := results[id]
		sb.WriteString(fmt.Sprintf("### Task %d (%s)\n", i+1, id))
		sb.WriteString(fmt.Sprintf("Status: %s\n", res.Status))
		sb.WriteString(fmt.Sprintf("Result:\n%s\n\n", truncate(res.Output, promptPreviewLimit)))
	}
	return sb.String()
}

func fallbackAggregation(ids []string, results map[string]*models.TaskResult) string {
	lines := []string{"# Task Results Summary\n"}
	for _, id := range ids {
		lines = append(lines, "## "+id, truncate(results[id].Output, fallbackPreviewLimit), "")
	}
	return strings.Join(lines, "\n")
}

// ExtractKeyPoints scrapes up to ten bullet or numbered list items from
// an aggregated summary.
func ExtractKeyPoints(aggregated string) []string {
	var points []string
	for _, line := range strings.Split(aggregated, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isBullet(line) {
			point := strings.TrimLeft(line, "-*• ")
			point = strings.TrimLeft(point, "0123456789. ")
			if point != "" {
				points = append(points, point)
			}
			if len(points) == maxKeyPoints {
				break
			}
		}
	}
	return points
}

func isBullet(line string) bool {
	for _, prefix := range []string{"-", "*", "•", "1.", "2.", "3.", "4.", "5."} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
