// Package decision turns an aggregated analysis into a structured
// decision with confidence and weighted factors. Parsing failures
// degrade to an "inconclusive" result; the engine never returns an
// error.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/quorumhq/quorum/internal/llmjson"
	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

const decisionSystemPrompt = `You are a decision-making specialist. Your job is to make a clear, well-reasoned decision based on the analysis results.

Rules:
1. Consider all the evidence presented
2. Weigh the pros and cons
3. Provide a clear decision (not ambiguous)
4. Explain your reasoning
5. Indicate your confidence level (0.0 to 1.0)

Respond with ONLY valid JSON, no markdown fences.`

const decisionPromptTemplate = `## Goal
%s

## Context
%s

## Aggregated Analysis
%s

## Task Results Summary
%s

## Instructions
Based on the above analysis, make a decision.

Respond in this JSON format:
{
  "decision": "your decision (e.g., buy, sell, hold, proceed, abort, etc.)",
  "confidence": 0.75,
  "reasoning": "Explanation of your decision...",
  "factors": [
    {
      "name": "factor name",
      "value": "factor value or finding",
      "weight": 1.0,
      "confidence": 0.8
    }
  ],
  "execution_plan": {
    "action": "specific action to take",
    "parameters": {},
    "risk_level": "low|medium|high",
    "expected_outcome": "what we expect to happen"
  }
}
`

const (
	aggregatedPromptLimit   = 4000
	aggregatedFallbackLimit = 1000
	contributionLimit       = 500
)

// Engine makes final decisions from aggregated analysis.
type Engine struct {
	client       provider.ChatClient
	defaultModel string
}

// New creates a decision engine. defaultModel may be empty.
func New(client provider.ChatClient, defaultModel string) *Engine {
	return &Engine{client: client, defaultModel: defaultModel}
}

// decisionPayload is the wire shape the model responds with. Pointer
// fields distinguish absent values from zero values so defaults apply
// per field.
type decisionPayload struct {
	Decision      string          `json:"decision"`
	Confidence    *float64        `json:"confidence"`
	Reasoning     string          `json:"reasoning"`
	Factors       []factorPayload `json:"factors"`
	ExecutionPlan map[string]any  `json:"execution_plan"`
}

type factorPayload struct {
	Name        string   `json:"name"`
	Value       string   `json:"value"`
	Weight      *float64 `json:"weight"`
	SourceAgent string   `json:"source_agent"`
	Confidence  *float64 `json:"confidence"`
}

// Decide produces a CollaborationResult from the aggregated analysis.
// On model or parse failure it returns the inconclusive fallback with
// confidence 0.0 and a truncated excerpt of the analysis.
func (e *Engine) Decide(ctx context.Context, request *models.CollaborationRequest, aggregated string, taskResults map[string]*models.TaskResult) *models.CollaborationResult {
	contextJSON, err := json.MarshalIndent(request.Context, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(decisionPromptTemplate,
		request.Goal,
		string(contextJSON),
		truncate(aggregated, aggregatedPromptLimit),
		summarizeTasks(taskResults),
	)

	resp, err := e.client.Chat(ctx, provider.ChatRequest{
		System:      decisionSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.defaultModel,
		Temperature: 0.2,
	})
	if err != nil {
		return e.fallbackResult(request, aggregated)
	}

	var parsed decisionPayload
	if err := llmjson.Unmarshal(resp.Content, &parsed); err != nil {
		return e.fallbackResult(request, aggregated)
	}

	factors := make([]models.DecisionFactor, 0, len(parsed.Factors))
	for _, f := range parsed.Factors {
		factors = append(factors, models.DecisionFactor{
			Name:        f.Name,
			Value:       f.Value,
			Weight:      valueOr(f.Weight, 1.0),
			SourceAgent: f.SourceAgent,
			Confidence:  valueOr(f.Confidence, 0.5),
		})
	}

	decisionLabel := parsed.Decision
	if decisionLabel == "" {
		decisionLabel = "unknown"
	}

	return &models.CollaborationResult{
		Goal:               request.Goal,
		Decision:           decisionLabel,
		Confidence:         valueOr(parsed.Confidence, 0.5),
		Reasoning:          parsed.Reasoning,
		Factors:            factors,
		TaskResults:        taskResults,
		AgentContributions: contributions(taskResults),
		ExecutionPlan:      parsed.ExecutionPlan,
		CreatedAt:          time.Now(),
	}
}

// RefineDecision re-prompts with the previous decision plus feedback
// text. Every field defaults back to its previous value when the
// refinement call or parse fails.
func (e *Engine) RefineDecision(ctx context.Context, result *models.CollaborationResult, feedback string) *models.CollaborationResult {
	prompt := fmt.Sprintf(`## Previous Decision
Decision: %s
Confidence: %g
Reasoning: %s

## Feedback
%s

## Instructions
Consider the feedback and provide an updated decision in the same JSON format.`,
		result.Decision, result.Confidence, result.Reasoning, feedback)

	resp, err := e.client.Chat(ctx, provider.ChatRequest{
		System:      decisionSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.defaultModel,
		Temperature: 0.2,
	})
	if err != nil {
		return result
	}

	var parsed decisionPayload
	if err := llmjson.Unmarshal(resp.Content, &parsed); err != nil {
		return result
	}

	refined := &models.CollaborationResult{
		Goal:               result.Goal,
		Decision:           result.Decision,
		Confidence:         valueOr(parsed.Confidence, result.Confidence),
		Reasoning:          result.Reasoning,
		Factors:            result.Factors,
		TaskResults:        result.TaskResults,
		AgentContributions: result.AgentContributions,
		ExecutionPlan:      result.ExecutionPlan,
		CreatedAt:          time.Now(),
	}
	if parsed.Decision != "" {
		refined.Decision = parsed.Decision
	}
	if parsed.Reasoning != "" {
		refined.Reasoning = parsed.Reasoning
	}
	if parsed.ExecutionPlan != nil {
		refined.ExecutionPlan = parsed.ExecutionPlan
	}
	return refined
}

func (e *Engine) fallbackResult(request *models.CollaborationRequest, aggregated string) *models.CollaborationResult {
	return &models.CollaborationResult{
		Goal:       request.Goal,
		Decision:   "inconclusive",
		Confidence: 0.0,
		Reasoning:  "Decision engine failed. Raw analysis: " + truncate(aggregated, aggregatedFallbackLimit),
		CreatedAt:  time.Now(),
	}
}

func summarizeTasks(taskResults map[string]*models.TaskResult) string {
	if len(taskResults) == 0 {
		return "No task results."
	}
	completed, failed := 0, 0
	for _, r := range taskResults {
		switch r.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("Tasks: %d/%d completed, %d failed", completed, len(taskResults), failed)
}

// contributions maps each completed task to a truncated output preview.
func contributions(taskResults map[string]*models.TaskResult) map[string]string {
	if len(taskResults) == 0 {
		return nil
	}
	out := make(map[string]string)
	ids := make([]string, 0, len(taskResults))
	for id := range taskResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := taskResults[id]
		if r.Status == models.TaskStatusCompleted && r.Output != "" {
			out[id] = truncate(r.Output, contributionLimit)
		}
	}
	return out
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
