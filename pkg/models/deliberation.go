package models

import "time"

// DeliberationMode selects the multi-round deliberation style.
type DeliberationMode string

const (
	// DeliberationProgressive builds each round on the previous one.
	DeliberationProgressive DeliberationMode = "progressive"
	// DeliberationIterative revisits the same question each round.
	DeliberationIterative DeliberationMode = "iterative"
	// DeliberationExploratory branches into independent angles.
	DeliberationExploratory DeliberationMode = "exploratory"
)

// RoundTopic is one topic examined in a deliberation round.
type RoundTopic struct {
	// ID is the topic identifier.
	ID string `json:"id"`
	// RoundNumber is the 1-based round index.
	RoundNumber int `json:"round_number"`
	// Title is the topic title.
	Title string `json:"title"`
	// Description explains what the round should examine.
	Description string `json:"description"`
	// FocusQuestions lists concrete questions for the round.
	FocusQuestions []string `json:"focus_questions,omitempty"`
	// Dependencies lists topic IDs whose rounds must finish first.
	Dependencies []string `json:"dependencies,omitempty"`
	// Generated marks topics produced by the engine rather than the caller.
	Generated bool `json:"generated"`
}

// RoundResult is the outcome of one deliberation round.
type RoundResult struct {
	RoundID     string      `json:"round_id"`
	RoundNumber int         `json:"round_number"`
	Topic       *RoundTopic `json:"topic"`

	Conclusion    string   `json:"conclusion,omitempty"`
	KeyFindings   []string `json:"key_findings,omitempty"`
	OpenQuestions []string `json:"open_questions,omitempty"`

	TaskResults     map[string]*TaskResult `json:"task_results,omitempty"`
	DecisionFactors []DecisionFactor       `json:"decision_factors,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int        `json:"duration_ms,omitempty"`
}

// DeliberationRequest asks for a multi-round deliberation on a goal.
type DeliberationRequest struct {
	// Goal is the question to deliberate.
	Goal string `json:"goal"`
	// Context carries structured background.
	Context map[string]any `json:"context,omitempty"`
	// Mode selects the deliberation style.
	Mode DeliberationMode `json:"mode"`

	// MaxRounds bounds the number of rounds executed.
	MaxRounds int `json:"max_rounds"`
	// AutoGenerateTopics lets the engine plan topics from the goal.
	AutoGenerateTopics bool `json:"auto_generate_topics"`
	// InitialTopics supplies topics when auto-generation is off.
	InitialTopics []*RoundTopic `json:"initial_topics,omitempty"`

	// ConvergenceCriteria names the stop condition.
	ConvergenceCriteria string `json:"convergence_criteria,omitempty"`
	// RequireConsensus demands agreement before concluding.
	RequireConsensus bool `json:"require_consensus"`

	// FeedbackEnabled records the final decision for verification.
	FeedbackEnabled bool `json:"feedback_enabled"`
	// TimeoutSeconds bounds the whole deliberation.
	TimeoutSeconds int `json:"timeout_seconds"`

	// RequestID is a short unique identifier for this request.
	RequestID string `json:"request_id"`
}

// NewDeliberationRequest returns a request with the standard defaults.
func NewDeliberationRequest(goal string) *DeliberationRequest {
	return &DeliberationRequest{
		Goal:                goal,
		Mode:                DeliberationProgressive,
		MaxRounds:           5,
		AutoGenerateTopics:  true,
		ConvergenceCriteria: "all_topics_addressed",
		FeedbackEnabled:     true,
		TimeoutSeconds:      3600,
		RequestID:           NewRequestID(),
	}
}

// DeliberationResult is the final outcome of a deliberation.
type DeliberationResult struct {
	Goal              string  `json:"goal"`
	FinalDecision     string  `json:"final_decision"`
	OverallConfidence float64 `json:"overall_confidence"`

	ExecutiveSummary string `json:"executive_summary,omitempty"`
	DetailedReport   string `json:"detailed_report,omitempty"`

	RoundResults []*RoundResult `json:"round_results,omitempty"`

	ActionItems     []map[string]any `json:"action_items,omitempty"`
	Risks           []map[string]any `json:"risks,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`

	TotalRounds int `json:"total_rounds"`
	TotalTasks  int `json:"total_tasks"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	FeedbackID string `json:"feedback_id,omitempty"`
}

// DeliberationTrace is the complete audit record of a deliberation run.
type DeliberationTrace struct {
	TraceID     string     `json:"trace_id"`
	Goal        string     `json:"goal"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Request      *DeliberationRequest `json:"request,omitempty"`
	Topics       []*RoundTopic        `json:"topics,omitempty"`
	RoundResults []*RoundResult       `json:"round_results,omitempty"`

	FinalResult *DeliberationResult `json:"final_result,omitempty"`

	TotalTokens     int `json:"total_tokens"`
	TotalLLMCalls   int `json:"total_llm_calls"`
	TotalDurationMS int `json:"total_duration_ms"`

	FilePath string `json:"file_path,omitempty"`
}

// NewDeliberationTrace returns an empty trace for the given goal.
func NewDeliberationTrace(goal string) *DeliberationTrace {
	return &DeliberationTrace{
		TraceID:   NewTraceID(),
		Goal:      goal,
		CreatedAt: time.Now(),
	}
}

// MarkCompleted stamps the completion time and total duration.
func (d *DeliberationTrace) MarkCompleted() {
	now := time.Now()
	d.CompletedAt = &now
	d.TotalDurationMS = int(now.Sub(d.CreatedAt).Milliseconds())
}

// Summary returns the fields shown in trace listings.
func (d *DeliberationTrace) Summary() map[string]any {
	s := map[string]any{
		"trace_id":        d.TraceID,
		"goal":            d.Goal,
		"total_rounds":    len(d.RoundResults),
		"duration_ms":     d.TotalDurationMS,
		"total_tokens":    d.TotalTokens,
		"total_llm_calls": d.TotalLLMCalls,
	}
	if d.FinalResult != nil {
		s["final_decision"] = d.FinalResult.FinalDecision
		s["confidence"] = d.FinalResult.OverallConfidence
	}
	return s
}
