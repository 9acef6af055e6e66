// Package deliberate implements sequential multi-round deliberation:
// topic generation, per-round analysis and synthesis, and a final
// report. Rounds are strictly ordered because each round's prompt is
// conditioned on the conclusions of every previous round.
package deliberate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quorumhq/quorum/internal/llmjson"
	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

const topicGenerationSystemPrompt = `You are a strategic planning expert. Your job is to break down a complex goal into a series of progressive discussion topics.

Each topic should:
1. Build upon the conclusions of previous topics
2. Be specific and actionable
3. Have clear focus questions to guide the discussion
4. Lead towards a final comprehensive solution

Respond with ONLY valid JSON, no markdown fences.`

const topicGenerationPrompt = `## Goal
%s

## Context
%s

## Mode
%s

## Instructions
Generate %d progressive discussion topics that will help reach a comprehensive solution.

Each topic should:
- Have a clear title and description
- Include 2-4 focus questions
- Build logically towards the final goal

Example progression for "open a bubble tea shop":
1. "Feasibility Analysis" - Can this business succeed?
2. "Location Strategy" - Where should we open?
3. "Operational Planning" - How do we execute?

Respond in this JSON format:
{
  "topics": [
    {
      "title": "Topic Title",
      "description": "What this round will explore",
      "focus_questions": ["Question 1?", "Question 2?", "Question 3?"],
      "dependencies": []
    }
  ]
}
`

const roundExecutionSystemPrompt = `You are a collaborative analyst. Your job is to analyze the given topic and provide thorough insights.

Consider:
1. All previous round conclusions
2. The specific focus questions for this round
3. Practical implications and recommendations

Provide a comprehensive analysis that can inform subsequent rounds.`

const roundSynthesisSystemPrompt = `You are a synthesis expert. Your job is to synthesize multiple analyses into clear conclusions.

Extract:
1. Key findings (list of main points)
2. A clear conclusion for this round
3. Open questions that need further exploration (if any)

Respond with ONLY valid JSON, no markdown fences.`

const finalReportSystemPrompt = `You are a strategic advisor. Your job is to compile a comprehensive final report from multiple rounds of deliberation.

The report should include:
1. Executive Summary (2-3 paragraphs)
2. Detailed Analysis (synthesis of all rounds)
3. Clear Decision/Recommendation
4. Action Items (specific next steps)
5. Risks and Mitigations
6. Overall Confidence Assessment

Be thorough but practical. This report will guide real-world decision making.`

const (
	maxGeneratedTopics     = 5
	analysisSynthesisLimit = 3000
	prevConclusionLimit    = 200
	conclusionFallback     = 500
	progressPreviewLimit   = 500
)

// ProgressFunc receives deliberation phase events. Errors are swallowed
// and logged, never propagated.
type ProgressFunc func(eventType string, payload map[string]any) error

// Engine drives multi-round deliberation.
type Engine struct {
	client   provider.ChatClient
	model    string
	progress ProgressFunc
	warnf    func(format string, args ...any)

	// usage rollup for the run trace; rounds are sequential so plain
	// counters suffice
	tokens   int
	llmCalls int
}

// New creates a deliberation engine. model, progress and warnf are all
// optional.
func New(client provider.ChatClient, model string, progress ProgressFunc, warnf func(format string, args ...any)) *Engine {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &Engine{client: client, model: model, progress: progress, warnf: warnf}
}

// chat forwards to the client and accumulates token usage for the
// run trace.
func (e *Engine) chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	resp, err := e.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	e.llmCalls++
	e.tokens += int(resp.InputTokens + resp.OutputTokens)
	return resp, nil
}

// emitProgress delivers an event best-effort: listener errors and
// panics are logged and never interrupt the deliberation.
func (e *Engine) emitProgress(eventType string, payload map[string]any) {
	if e.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.warnf("progress callback panic: %v", r)
		}
	}()
	if err := e.progress(eventType, payload); err != nil {
		e.warnf("progress callback error: %v", err)
	}
}

type topicPayload struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	FocusQuestions []string `json:"focus_questions"`
}

type topicsResponse struct {
	Topics []topicPayload `json:"topics"`
}

// GenerateTopics plans the deliberation rounds. Caller-supplied topics
// are used as-is (renumbered by position) when auto-generation is off;
// otherwise the model proposes up to min(max_rounds, 5) topics, each
// generated topic depending on the one before it. On failure a fixed
// two-topic fallback is returned.
func (e *Engine) GenerateTopics(ctx context.Context, request *models.DeliberationRequest) []*models.RoundTopic {
	if len(request.InitialTopics) > 0 && !request.AutoGenerateTopics {
		topics := make([]*models.RoundTopic, 0, len(request.InitialTopics))
		for i, t := range request.InitialTopics {
			id := t.ID
			if id == "" {
				id = fmt.Sprintf("topic_%d", i+1)
			}
			title := t.Title
			if title == "" {
				title = fmt.Sprintf("Round %d", i+1)
			}
			topics = append(topics, &models.RoundTopic{
				ID:             id,
				RoundNumber:    i + 1,
				Title:          title,
				Description:    t.Description,
				FocusQuestions: t.FocusQuestions,
				Dependencies:   t.Dependencies,
				Generated:      false,
			})
		}
		return topics
	}

	contextJSON, err := json.MarshalIndent(request.Context, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}
	numTopics := request.MaxRounds
	if numTopics > maxGeneratedTopics {
		numTopics = maxGeneratedTopics
	}

	prompt := fmt.Sprintf(topicGenerationPrompt,
		request.Goal, string(contextJSON), string(request.Mode), numTopics)

	resp, err := e.chat(ctx, provider.ChatRequest{
		System:      topicGenerationSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.model,
		Temperature: 0.4,
	})
	if err != nil {
		return e.fallbackTopics(request)
	}

	var parsed topicsResponse
	if err := llmjson.Unmarshal(resp.Content, &parsed); err != nil || len(parsed.Topics) == 0 {
		return e.fallbackTopics(request)
	}

	topics := make([]*models.RoundTopic, 0, len(parsed.Topics))
	for i, td := range parsed.Topics {
		title := td.Title
		if title == "" {
			title = fmt.Sprintf("Round %d", i+1)
		}
		// generated topics form a chain: each depends on its predecessor
		var deps []string
		if i > 0 {
			deps = []string{fmt.Sprintf("topic_%d", i)}
		}
		topics = append(topics, &models.RoundTopic{
			ID:             fmt.Sprintf("topic_%d", i+1),
			RoundNumber:    i + 1,
			Title:          title,
			Description:    td.Description,
			FocusQuestions: td.FocusQuestions,
			Dependencies:   deps,
			Generated:      true,
		})
	}
	return topics
}

func (e *Engine) fallbackTopics(request *models.DeliberationRequest) []*models.RoundTopic {
	return []*models.RoundTopic{
		{
			ID:             "topic_1",
			RoundNumber:    1,
			Title:          "Initial Analysis",
			Description:    fmt.Sprintf("Analyze the goal: %s", request.Goal),
			FocusQuestions: []string{"What are the key considerations?"},
		},
		{
			ID:             "topic_2",
			RoundNumber:    2,
			Title:          "Detailed Planning",
			Description:    "Develop specific recommendations",
			FocusQuestions: []string{"What are the recommended actions?"},
			Dependencies:   []string{"topic_1"},
		},
	}
}

// ExecuteRound runs one round: free-text analysis conditioned on all
// previous round conclusions, then structured synthesis. An analysis
// failure becomes the round's conclusion text; a synthesis failure
// falls back to a truncated copy of the raw analysis.
func (e *Engine) ExecuteRound(ctx context.Context, topic *models.RoundTopic, request *models.DeliberationRequest, previous []*models.RoundResult) *models.RoundResult {
	now := time.Now()
	result := &models.RoundResult{
		RoundID:     fmt.Sprintf("round_%d", topic.RoundNumber),
		RoundNumber: topic.RoundNumber,
		Topic:       topic,
		StartedAt:   &now,
	}

	var questions strings.Builder
	for _, q := range topic.FocusQuestions {
		questions.WriteString("- " + q + "\n")
	}

	prompt := fmt.Sprintf(`## Round Topic: %s

%s

## Focus Questions
%s
## Context from Previous Rounds
%s

## Original Goal
%s

## Instructions
Analyze this topic thoroughly. Address each focus question.
Provide specific, actionable insights that will inform subsequent rounds.`,
		topic.Title, topic.Description, questions.String(),
		buildRoundContext(previous), request.Goal)

	resp, err := e.chat(ctx, provider.ChatRequest{
		System:      roundExecutionSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.model,
		Temperature: 0.6,
	})
	if err != nil {
		result.Conclusion = fmt.Sprintf("Analysis failed: %v", err)
		done := time.Now()
		result.CompletedAt = &done
		return result
	}

	analysis := resp.Content
	synthesis := e.synthesizeRound(ctx, analysis, previous)
	result.Conclusion = synthesis.Conclusion
	result.KeyFindings = synthesis.KeyFindings
	result.OpenQuestions = synthesis.OpenQuestions

	done := time.Now()
	result.CompletedAt = &done
	result.DurationMS = int(done.Sub(now).Milliseconds())
	return result
}

type synthesisPayload struct {
	Conclusion    string   `json:"conclusion"`
	KeyFindings   []string `json:"key_findings"`
	OpenQuestions []string `json:"open_questions"`
}

func (e *Engine) synthesizeRound(ctx context.Context, analysis string, previous []*models.RoundResult) synthesisPayload {
	prevContext := ""
	if len(previous) > 0 {
		prevContext = "\n\n## Previous Round Conclusions\n"
		for _, pr := range previous {
			prevContext += fmt.Sprintf("- Round %d (%s): %s\n",
				pr.RoundNumber, pr.Topic.Title, truncate(pr.Conclusion, prevConclusionLimit))
		}
	}

	prompt := fmt.Sprintf(`## Analysis to Synthesize

%s
%s

## Instructions
Extract the key conclusions from this analysis.

Respond in this JSON format:
{
  "conclusion": "A clear, concise conclusion (2-3 sentences)",
  "key_findings": ["Finding 1", "Finding 2", "Finding 3"],
  "open_questions": ["Any unresolved questions that need further exploration"]
}
`, truncate(analysis, analysisSynthesisLimit), prevContext)

	resp, err := e.chat(ctx, provider.ChatRequest{
		System:      roundSynthesisSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.model,
		Temperature: 0.3,
	})
	if err == nil {
		var parsed synthesisPayload
		if perr := llmjson.Unmarshal(resp.Content, &parsed); perr == nil {
			return parsed
		}
	}

	e.warnf("round synthesis failed, using raw analysis")
	conclusion := truncate(analysis, conclusionFallback)
	if conclusion == "" {
		conclusion = "No conclusion"
	}
	return synthesisPayload{Conclusion: conclusion}
}

func buildRoundContext(previous []*models.RoundResult) string {
	if len(previous) == 0 {
		return "This is the first round. No previous context available."
	}
	var sb strings.Builder
	for _, pr := range previous {
		sb.WriteString(fmt.Sprintf("### Round %d: %s\n", pr.RoundNumber, pr.Topic.Title))
		sb.WriteString("Conclusion: " + pr.Conclusion + "\n")
		if len(pr.KeyFindings) > 0 {
			sb.WriteString("Key Findings:\n")
			for _, f := range pr.KeyFindings {
				sb.WriteString("  - " + f + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

type reportPayload struct {
	FinalDecision     string           `json:"final_decision"`
	OverallConfidence *float64         `json:"overall_confidence"`
	ExecutiveSummary  string           `json:"executive_summary"`
	DetailedReport    string           `json:"detailed_report"`
	ActionItems       []map[string]any `json:"action_items"`
	Risks             []map[string]any `json:"risks"`
	Recommendations   []string         `json:"recommendations"`
}

// GenerateFinalReport compiles the rounds into the final result. On
// model or parse failure it assembles a deterministic report from the
// round conclusions with decision "see detailed report".
func (e *Engine) GenerateFinalReport(ctx context.Context, request *models.DeliberationRequest, rounds []*models.RoundResult) *models.DeliberationResult {
	contextJSON, err := json.MarshalIndent(request.Context, "", "  ")
	if err != nil {
		contextJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(`## Original Goal
%s

## Initial Context
%s

## Deliberation Rounds Summary
%s

## Instructions
Compile a comprehensive final report based on all deliberation rounds.

Include:
1. A clear final decision/recommendation
2. Executive summary (2-3 paragraphs)
3. Key action items (specific steps to take)
4. Risks and mitigations
5. Overall confidence level (0.0 to 1.0)

Respond in this JSON format:
{
  "final_decision": "clear decision or recommendation",
  "overall_confidence": 0.75,
  "executive_summary": "2-3 paragraph summary...",
  "detailed_report": "Full analysis report in markdown format",
  "action_items": [
    {"priority": "high", "action": "specific action", "timeline": "when"}
  ],
  "risks": [
    {"risk": "description", "mitigation": "how to address", "severity": "high/medium/low"}
  ],
  "recommendations": ["Recommendation 1", "Recommendation 2"]
}
`, request.Goal, string(contextJSON), summarizeRounds(rounds))

	resp, err := e.chat(ctx, provider.ChatRequest{
		System:      finalReportSystemPrompt,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:       e.model,
		Temperature: 0.3,
	})
	if err != nil {
		return e.fallbackReport(request, rounds)
	}

	var parsed reportPayload
	if err := llmjson.Unmarshal(resp.Content, &parsed); err != nil {
		return e.fallbackReport(request, rounds)
	}

	decision := parsed.FinalDecision
	if decision == "" {
		decision = "inconclusive"
	}
	confidence := 0.5
	if parsed.OverallConfidence != nil {
		confidence = *parsed.OverallConfidence
	}

	totalTasks := 0
	for _, r := range rounds {
		totalTasks += len(r.TaskResults)
	}

	now := time.Now()
	return &models.DeliberationResult{
		Goal:              request.Goal,
		FinalDecision:     decision,
		OverallConfidence: confidence,
		ExecutiveSummary:  parsed.ExecutiveSummary,
		DetailedReport:    parsed.DetailedReport,
		RoundResults:      rounds,
		ActionItems:       parsed.ActionItems,
		Risks:             parsed.Risks,
		Recommendations:   parsed.Recommendations,
		TotalRounds:       len(rounds),
		TotalTasks:        totalTasks,
		CreatedAt:         now,
		CompletedAt:       &now,
	}
}

func summarizeRounds(rounds []*models.RoundResult) string {
	var sb strings.Builder
	for _, rr := range rounds {
		sb.WriteString(fmt.Sprintf("### Round %d: %s\n", rr.RoundNumber, rr.Topic.Title))
		sb.WriteString("Description: " + rr.Topic.Description + "\n")
		sb.WriteString("Conclusion: " + rr.Conclusion + "\n")
		if len(rr.KeyFindings) > 0 {
			sb.WriteString("Key Findings:\n")
			for _, f := range rr.KeyFindings {
				sb.WriteString("  - " + f + "\n")
			}
		}
		if len(rr.OpenQuestions) > 0 {
			sb.WriteString("Open Questions:\n")
			for _, q := range rr.OpenQuestions {
				sb.WriteString("  - " + q + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *Engine) fallbackReport(request *models.DeliberationRequest, rounds []*models.RoundResult) *models.DeliberationResult {
	var conclusions []string
	for _, r := range rounds {
		if r.Conclusion != "" {
			conclusions = append(conclusions, r.Conclusion)
		}
	}

	now := time.Now()
	return &models.DeliberationResult{
		Goal:              request.Goal,
		FinalDecision:     "see detailed report",
		OverallConfidence: 0.5,
		ExecutiveSummary:  strings.Join(conclusions, "\n\n"),
		DetailedReport:    "Report generation failed. See individual round conclusions.",
		RoundResults:      rounds,
		TotalRounds:       len(rounds),
		CreatedAt:         now,
		CompletedAt:       &now,
	}
}

// Deliberate executes the full multi-round deliberation: topic
// generation, eligible rounds in order, early stop at max_rounds, final
// report. A topic whose dependencies were not all completed is skipped
// and never appears in the round results. Cancellation of ctx produces
// an "error" result; Deliberate itself never returns an error.
func (e *Engine) Deliberate(ctx context.Context, request *models.DeliberationRequest) (*models.DeliberationResult, *models.DeliberationTrace) {
	trace := models.NewDeliberationTrace(request.Goal)
	trace.Request = request
	e.tokens, e.llmCalls = 0, 0

	e.emitProgress("deliberation_start", map[string]any{
		"goal":       request.Goal,
		"max_rounds": request.MaxRounds,
		"mode":       string(request.Mode),
	})

	topics := e.GenerateTopics(ctx, request)
	trace.Topics = topics

	topicSummaries := make([]map[string]any, 0, len(topics))
	for _, t := range topics {
		topicSummaries = append(topicSummaries, map[string]any{
			"id": t.ID, "title": t.Title, "description": t.Description,
		})
	}
	e.emitProgress("topics_generated", map[string]any{"topics": topicSummaries})

	var rounds []*models.RoundResult
	completed := make(map[string]bool)

	for i, topic := range topics {
		if err := ctx.Err(); err != nil {
			return e.errorResult(request, trace, err)
		}

		if !depsSatisfied(topic, completed) {
			e.warnf("skipping topic %s: dependencies not met", topic.ID)
			continue
		}

		e.emitProgress("round_start", map[string]any{
			"round_number": i + 1,
			"total_rounds": len(topics),
			"topic": map[string]any{
				"id":              topic.ID,
				"title":           topic.Title,
				"description":     topic.Description,
				"focus_questions": topic.FocusQuestions,
			},
		})

		roundResult := e.ExecuteRound(ctx, topic, request, rounds)
		rounds = append(rounds, roundResult)
		trace.RoundResults = append(trace.RoundResults, roundResult)
		completed[topic.ID] = true

		e.emitProgress("round_complete", map[string]any{
			"round_number": i + 1,
			"topic":        topic.Title,
			"conclusion":   truncate(roundResult.Conclusion, progressPreviewLimit),
			"key_findings": firstN(roundResult.KeyFindings, 5),
		})

		if len(rounds) >= request.MaxRounds {
			break
		}
	}

	e.emitProgress("generating_report", map[string]any{"rounds_completed": len(rounds)})

	if err := ctx.Err(); err != nil {
		return e.errorResult(request, trace, err)
	}

	finalResult := e.GenerateFinalReport(ctx, request, rounds)
	trace.FinalResult = finalResult
	trace.TotalTokens = e.tokens
	trace.TotalLLMCalls = e.llmCalls
	trace.MarkCompleted()

	e.emitProgress("deliberation_complete", map[string]any{
		"final_decision": finalResult.FinalDecision,
		"confidence":     finalResult.OverallConfidence,
		"total_rounds":   finalResult.TotalRounds,
	})

	return finalResult, trace
}

func (e *Engine) errorResult(request *models.DeliberationRequest, trace *models.DeliberationTrace, cause error) (*models.DeliberationResult, *models.DeliberationTrace) {
	trace.TotalTokens = e.tokens
	trace.TotalLLMCalls = e.llmCalls
	trace.MarkCompleted()
	e.emitProgress("deliberation_error", map[string]any{"error": cause.Error()})

	result := &models.DeliberationResult{
		Goal:              request.Goal,
		FinalDecision:     "error",
		OverallConfidence: 0.0,
		ExecutiveSummary:  fmt.Sprintf("Deliberation failed: %v", cause),
		CreatedAt:         time.Now(),
	}
	trace.FinalResult = result
	return result, trace
}

func depsSatisfied(topic *models.RoundTopic, completed map[string]bool) bool {
	for _, dep := range topic.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
