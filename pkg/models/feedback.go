package models

import "time"

// FeedbackRecord stores a decision awaiting later verification against
// its real-world outcome.
type FeedbackRecord struct {
	// FeedbackID is the unique identifier for this record.
	FeedbackID string `json:"feedback_id"`
	// TraceID links back to the run that produced the decision.
	TraceID string `json:"trace_id,omitempty"`
	// Goal is the goal the decision was made for.
	Goal string `json:"goal,omitempty"`
	// Decision is the decision label.
	Decision string `json:"decision,omitempty"`
	// Confidence is the decision confidence at record time.
	Confidence float64 `json:"confidence"`
	// Reasoning is the decision reasoning at record time.
	Reasoning string `json:"reasoning,omitempty"`
	// Context carries extra structured context.
	Context map[string]any `json:"context,omitempty"`

	// CreatedAt is when the decision was recorded.
	CreatedAt time.Time `json:"created_at"`
	// ReminderAt is when verification becomes due.
	ReminderAt *time.Time `json:"reminder_at,omitempty"`
	// VerifiedAt is when the record was verified, if it has been.
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// ActualOutcome is what actually happened.
	ActualOutcome string `json:"actual_outcome,omitempty"`
	// OutcomeCorrect records whether the decision matched the outcome.
	OutcomeCorrect *bool `json:"outcome_correct,omitempty"`
	// Notes carries free-form verification notes.
	Notes string `json:"notes,omitempty"`
}

// Verified reports whether the record has been verified.
func (r *FeedbackRecord) Verified() bool {
	return r.VerifiedAt != nil
}

// AccuracyStats summarizes verified decision accuracy over a window.
type AccuracyStats struct {
	// TotalDecisions counts every recorded decision.
	TotalDecisions int `json:"total_decisions"`
	// VerifiedDecisions counts decisions verified within the window.
	VerifiedDecisions int `json:"verified_decisions"`
	// CorrectDecisions counts verified decisions marked correct.
	CorrectDecisions int `json:"correct_decisions"`
	// Accuracy is CorrectDecisions / VerifiedDecisions, 0 when unverified.
	Accuracy float64 `json:"accuracy"`
	// ByDecisionType breaks verified/correct counts down per decision label.
	ByDecisionType map[string]*DecisionTypeStats `json:"by_decision_type,omitempty"`
	// WindowDays is the lookback window in days.
	WindowDays int `json:"window_days"`
}

// DecisionTypeStats holds per-label verification counts.
type DecisionTypeStats struct {
	Verified int     `json:"verified"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}
