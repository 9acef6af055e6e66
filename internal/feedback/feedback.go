// Package feedback records decisions for later verification against
// real-world outcomes, and computes accuracy statistics over the
// verified history. Records live in append-friendly JSONL files under
// the workspace.
package feedback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quorumhq/quorum/pkg/models"
)

const (
	feedbackSubdir    = "collaboration/feedback"
	decisionsFile     = "decisions.jsonl"
	verificationsFile = "verifications.jsonl"
)

// Loop manages the record-verify-learn cycle for decisions.
type Loop struct {
	dir          string
	reminderDays int
	warnf        func(format string, args ...any)

	// now is swapped out in tests for deterministic reminders and
	// windows.
	now func() time.Time
}

// NewLoop creates a feedback loop rooted at workspace. reminderDays
// controls when verification becomes due. warnf may be nil.
func NewLoop(workspace string, reminderDays int, warnf func(format string, args ...any)) (*Loop, error) {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	dir := filepath.Join(workspace, filepath.FromSlash(feedbackSubdir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback dir: %w", err)
	}
	return &Loop{dir: dir, reminderDays: reminderDays, warnf: warnf, now: time.Now}, nil
}

// Record stores a decision for later verification and returns the new
// record.
func (l *Loop) Record(result *models.CollaborationResult, request *models.CollaborationRequest) (*models.FeedbackRecord, error) {
	now := l.now()
	reminder := now.AddDate(0, 0, l.reminderDays)

	record := &models.FeedbackRecord{
		FeedbackID: models.NewFeedbackID(),
		TraceID:    request.RequestID,
		Goal:       result.Goal,
		Decision:   result.Decision,
		Confidence: result.Confidence,
		Reasoning:  result.Reasoning,
		Context:    request.Context,
		CreatedAt:  now,
		ReminderAt: &reminder,
	}

	if err := l.appendRecord(decisionsFile, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Verify marks a recorded decision with its actual outcome. The
// decisions file is rewritten in place and an audit line is appended
// to the verifications file. An unknown feedbackID returns (nil, nil).
func (l *Loop) Verify(feedbackID, actualOutcome string, correct bool, notes string) (*models.FeedbackRecord, error) {
	records, err := l.readDecisions()
	if err != nil {
		return nil, err
	}

	var verified *models.FeedbackRecord
	now := l.now()
	for _, r := range records {
		if r.FeedbackID == feedbackID {
			r.ActualOutcome = actualOutcome
			r.OutcomeCorrect = &correct
			r.Notes = notes
			r.VerifiedAt = &now
			verified = r
			break
		}
	}
	if verified == nil {
		return nil, nil
	}

	if err := l.rewriteDecisions(records); err != nil {
		return nil, err
	}

	audit := map[string]any{
		"feedback_id":    feedbackID,
		"actual_outcome": actualOutcome,
		"correct":        correct,
		"notes":          notes,
		"verified_at":    now,
	}
	if err := l.appendRecord(verificationsFile, audit); err != nil {
		return nil, err
	}
	return verified, nil
}

// PendingVerifications returns every record not yet verified.
func (l *Loop) PendingVerifications() ([]*models.FeedbackRecord, error) {
	records, err := l.readDecisions()
	if err != nil {
		return nil, err
	}
	var pending []*models.FeedbackRecord
	for _, r := range records {
		if !r.Verified() {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// OverdueVerifications returns unverified records whose reminder has
// passed.
func (l *Loop) OverdueVerifications() ([]*models.FeedbackRecord, error) {
	records, err := l.readDecisions()
	if err != nil {
		return nil, err
	}
	now := l.now()
	var overdue []*models.FeedbackRecord
	for _, r := range records {
		if !r.Verified() && r.ReminderAt != nil && !r.ReminderAt.After(now) {
			overdue = append(overdue, r)
		}
	}
	return overdue, nil
}

// AccuracyStats computes accuracy over records created within the last
// windowDays; windowDays <= 0 covers all time. decisionType filters to
// one decision label; empty means all.
func (l *Loop) AccuracyStats(decisionType string, windowDays int) (*models.AccuracyStats, error) {
	records, err := l.readDecisions()
	if err != nil {
		return nil, err
	}

	cutoff := l.now().AddDate(0, 0, -windowDays)
	stats := &models.AccuracyStats{
		TotalDecisions: len(records),
		ByDecisionType: make(map[string]*models.DecisionTypeStats),
		WindowDays:     windowDays,
	}

	for _, r := range records {
		if !r.Verified() {
			continue
		}
		if windowDays > 0 && r.CreatedAt.Before(cutoff) {
			continue
		}
		if decisionType != "" && r.Decision != decisionType {
			continue
		}

		stats.VerifiedDecisions++
		byType := stats.ByDecisionType[r.Decision]
		if byType == nil {
			byType = &models.DecisionTypeStats{}
			stats.ByDecisionType[r.Decision] = byType
		}
		byType.Verified++
		if r.OutcomeCorrect != nil && *r.OutcomeCorrect {
			stats.CorrectDecisions++
			byType.Correct++
		}
	}

	if stats.VerifiedDecisions > 0 {
		stats.Accuracy = float64(stats.CorrectDecisions) / float64(stats.VerifiedDecisions)
	}
	for _, byType := range stats.ByDecisionType {
		if byType.Verified > 0 {
			byType.Accuracy = float64(byType.Correct) / float64(byType.Verified)
		}
	}
	return stats, nil
}

func (l *Loop) appendRecord(name string, record any) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode feedback record: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", name, err)
	}
	return nil
}

// readDecisions loads every record from the decisions file, skipping
// unparseable lines with a warning.
func (l *Loop) readDecisions() ([]*models.FeedbackRecord, error) {
	f, err := os.Open(filepath.Join(l.dir, decisionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open decisions: %w", err)
	}
	defer f.Close()

	var records []*models.FeedbackRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r models.FeedbackRecord
		if err := json.Unmarshal(line, &r); err != nil {
			l.warnf("skipping malformed feedback line: %v", err)
			continue
		}
		records = append(records, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	return records, nil
}

func (l *Loop) rewriteDecisions(records []*models.FeedbackRecord) error {
	path := filepath.Join(l.dir, decisionsFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp decisions: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode feedback record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush decisions: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close decisions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace decisions: %w", err)
	}
	return nil
}
