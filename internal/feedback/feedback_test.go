package feedback

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quorumhq/quorum/pkg/models"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := NewLoop(t.TempDir(), 7, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return l
}

func recordDecision(t *testing.T, l *Loop, goal, decision string, confidence float64) *models.FeedbackRecord {
	t.Helper()
	result := &models.CollaborationResult{Goal: goal, Decision: decision, Confidence: confidence, Reasoning: "because"}
	request := models.NewCollaborationRequest(goal)
	rec, err := l.Record(result, request)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return rec
}

func TestRecordSetsReminderAndPersists(t *testing.T) {
	l := newTestLoop(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	rec := recordDecision(t, l, "expand the shop", "proceed", 0.8)

	if rec.FeedbackID == "" {
		t.Error("feedback id not assigned")
	}
	if rec.ReminderAt == nil || !rec.ReminderAt.Equal(base.AddDate(0, 0, 7)) {
		t.Errorf("reminder_at = %v, want base+7d", rec.ReminderAt)
	}

	// one JSONL line on disk
	f, err := os.Open(filepath.Join(l.dir, decisionsFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var parsed models.FeedbackRecord
		if err := json.Unmarshal(scanner.Bytes(), &parsed); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		if parsed.FeedbackID != rec.FeedbackID || parsed.Decision != "proceed" {
			t.Errorf("persisted = %+v", parsed)
		}
		lines++
	}
	if lines != 1 {
		t.Errorf("lines = %d, want 1", lines)
	}
}

func TestVerifyUpdatesInPlaceAndAudits(t *testing.T) {
	l := newTestLoop(t)
	first := recordDecision(t, l, "g1", "proceed", 0.8)
	second := recordDecision(t, l, "g2", "hold", 0.6)

	verified, err := l.Verify(first.FeedbackID, "it worked", true, "solid call")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified == nil || verified.ActualOutcome != "it worked" || verified.Notes != "solid call" {
		t.Fatalf("verified = %+v", verified)
	}
	if verified.OutcomeCorrect == nil || !*verified.OutcomeCorrect {
		t.Error("outcome_correct not set")
	}
	if verified.VerifiedAt == nil {
		t.Error("verified_at not set")
	}

	// the other record stays pending after the rewrite
	pending, err := l.PendingVerifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].FeedbackID != second.FeedbackID {
		t.Errorf("pending = %+v", pending)
	}

	// audit trail appended
	data, err := os.ReadFile(filepath.Join(l.dir, verificationsFile))
	if err != nil {
		t.Fatalf("read verifications: %v", err)
	}
	var audit map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &audit); err != nil {
		t.Fatalf("audit line: %v", err)
	}
	if audit["feedback_id"] != first.FeedbackID || audit["correct"] != true {
		t.Errorf("audit = %v", audit)
	}
}

func TestVerifyUnknownIDReturnsNil(t *testing.T) {
	l := newTestLoop(t)
	recordDecision(t, l, "g", "proceed", 0.8)

	verified, err := l.Verify("missing", "outcome", true, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified != nil {
		t.Errorf("verified = %+v, want nil", verified)
	}
	if _, err := os.Stat(filepath.Join(l.dir, verificationsFile)); !os.IsNotExist(err) {
		t.Error("no audit line should be written for an unknown id")
	}
}

func TestOverdueVerifications(t *testing.T) {
	l := newTestLoop(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return base }
	due := recordDecision(t, l, "old", "proceed", 0.8)

	l.now = func() time.Time { return base.AddDate(0, 0, 5) }
	recordDecision(t, l, "recent", "hold", 0.6)

	// 8 days after the first record: only its reminder has passed
	l.now = func() time.Time { return base.AddDate(0, 0, 8) }
	overdue, err := l.OverdueVerifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 1 || overdue[0].FeedbackID != due.FeedbackID {
		t.Errorf("overdue = %+v, want only the old record", overdue)
	}

	// verifying removes it from the overdue set
	if _, err := l.Verify(due.FeedbackID, "done", true, ""); err != nil {
		t.Fatal(err)
	}
	overdue, err = l.OverdueVerifications()
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 0 {
		t.Errorf("overdue after verify = %+v", overdue)
	}
}

func TestAccuracyStats(t *testing.T) {
	l := newTestLoop(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	p1 := recordDecision(t, l, "g1", "proceed", 0.8)
	p2 := recordDecision(t, l, "g2", "proceed", 0.7)
	h1 := recordDecision(t, l, "g3", "hold", 0.6)
	recordDecision(t, l, "g4", "hold", 0.5) // never verified

	mustVerify := func(id string, correct bool) {
		t.Helper()
		if _, err := l.Verify(id, "outcome", correct, ""); err != nil {
			t.Fatal(err)
		}
	}
	mustVerify(p1.FeedbackID, true)
	mustVerify(p2.FeedbackID, false)
	mustVerify(h1.FeedbackID, true)

	stats, err := l.AccuracyStats("", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDecisions != 4 || stats.VerifiedDecisions != 3 || stats.CorrectDecisions != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Accuracy < 0.66 || stats.Accuracy > 0.67 {
		t.Errorf("accuracy = %v, want 2/3", stats.Accuracy)
	}
	proceed := stats.ByDecisionType["proceed"]
	if proceed == nil || proceed.Verified != 2 || proceed.Correct != 1 || proceed.Accuracy != 0.5 {
		t.Errorf("proceed stats = %+v", proceed)
	}

	// label filter
	stats, err = l.AccuracyStats("hold", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.VerifiedDecisions != 1 || stats.CorrectDecisions != 1 || stats.Accuracy != 1.0 {
		t.Errorf("hold stats = %+v", stats)
	}
	if _, ok := stats.ByDecisionType["proceed"]; ok {
		t.Error("filtered stats must not include other labels")
	}

	// records older than the window drop out of verified counts
	l.now = func() time.Time { return base.AddDate(0, 0, 60) }
	stats, err = l.AccuracyStats("", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDecisions != 4 || stats.VerifiedDecisions != 0 {
		t.Errorf("windowed stats = %+v", stats)
	}
	if stats.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0 with no verified records", stats.Accuracy)
	}
}

func TestAccuracyStatsAllTime(t *testing.T) {
	l := newTestLoop(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	rec := recordDecision(t, l, "g", "proceed", 0.8)
	if _, err := l.Verify(rec.FeedbackID, "it worked", true, ""); err != nil {
		t.Fatal(err)
	}

	// windowDays 0 means all time: a record verified in the past still
	// counts no matter when the query runs
	l.now = func() time.Time { return base.AddDate(1, 0, 0) }
	stats, err := l.AccuracyStats("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDecisions != 1 || stats.VerifiedDecisions != 1 || stats.CorrectDecisions != 1 {
		t.Errorf("all-time stats = %+v", stats)
	}
	if stats.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", stats.Accuracy)
	}

	// the same query with a finite window excludes it
	stats, err = l.AccuracyStats("", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.VerifiedDecisions != 0 {
		t.Errorf("windowed stats = %+v", stats)
	}
}

func TestEmptyLoop(t *testing.T) {
	l := newTestLoop(t)

	pending, err := l.PendingVerifications()
	if err != nil || len(pending) != 0 {
		t.Errorf("pending = %v, %v", pending, err)
	}
	stats, err := l.AccuracyStats("", 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDecisions != 0 || stats.Accuracy != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
