// Package trace persists and queries run traces, and broadcasts
// progress events to listeners. Collaboration traces are bucketed by
// creation month under the workspace; deliberation traces live in a
// flat directory alongside them.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quorumhq/quorum/pkg/models"
)

const (
	tracesSubdir       = "collaboration/traces"
	deliberationSubdir = "collaboration/deliberation_traces"
	monthLayout        = "2006-01"
)

// Manager stores and retrieves traces under a workspace directory.
type Manager struct {
	workspace string
	tracesDir string
	delibDir  string
	warnf     func(format string, args ...any)

	// now is swapped out in tests for stable month bucketing.
	now func() time.Time
}

// NewManager creates a manager rooted at workspace, creating the trace
// directories if needed. warnf may be nil.
func NewManager(workspace string, warnf func(format string, args ...any)) (*Manager, error) {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	m := &Manager{
		workspace: workspace,
		tracesDir: filepath.Join(workspace, filepath.FromSlash(tracesSubdir)),
		delibDir:  filepath.Join(workspace, filepath.FromSlash(deliberationSubdir)),
		warnf:     warnf,
		now:       time.Now,
	}
	if err := os.MkdirAll(m.tracesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create traces dir: %w", err)
	}
	return m, nil
}

// Create builds a new trace for the request and reserves its file path
// in the current month bucket.
func (m *Manager) Create(request *models.CollaborationRequest) *models.CollaborationTrace {
	trace := models.NewCollaborationTrace(request.Goal)
	trace.Request = request

	monthDir := filepath.Join(m.tracesDir, m.now().Format(monthLayout))
	trace.FilePath = filepath.Join(monthDir, "trace_"+trace.TraceID+".json")
	return trace
}

// Save finalizes the trace (completion time, rolled-up counters) and
// writes it to disk.
func (m *Manager) Save(trace *models.CollaborationTrace) error {
	trace.MarkCompleted()

	path := trace.FilePath
	if path == "" {
		monthDir := filepath.Join(m.tracesDir, m.now().Format(monthLayout))
		path = filepath.Join(monthDir, "trace_"+trace.TraceID+".json")
		trace.FilePath = path
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create month dir: %w", err)
	}

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Load retrieves a trace by ID, scanning all month buckets. A missing
// trace returns (nil, nil).
func (m *Manager) Load(traceID string) (*models.CollaborationTrace, error) {
	months, err := os.ReadDir(m.tracesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read traces dir: %w", err)
	}

	for _, month := range months {
		if !month.IsDir() {
			continue
		}
		path := filepath.Join(m.tracesDir, month.Name(), "trace_"+traceID+".json")
		trace, err := readTraceFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return trace, nil
	}
	return nil, nil
}

// List returns trace summaries, most recent first, paged by limit and
// offset. Unreadable files are skipped with a warning.
func (m *Manager) List(limit, offset int) []map[string]any {
	var summaries []map[string]any

	for _, month := range m.monthDirsDesc() {
		for _, path := range m.traceFilesDesc(month) {
			trace, err := readTraceFile(path)
			if err != nil {
				m.warnf("failed to load trace %s: %v", path, err)
				continue
			}
			summaries = append(summaries, trace.Summary())
		}
	}

	if offset >= len(summaries) {
		return nil
	}
	summaries = summaries[offset:]
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// Search returns summaries of traces whose goal contains the query,
// case-insensitively, capped at limit.
func (m *Manager) Search(query string, limit int) []map[string]any {
	queryLower := strings.ToLower(query)
	var results []map[string]any

	for _, month := range m.monthDirsDesc() {
		for _, path := range m.traceFilesDesc(month) {
			trace, err := readTraceFile(path)
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToLower(trace.Goal), queryLower) {
				results = append(results, trace.Summary())
				if limit > 0 && len(results) >= limit {
					return results
				}
			}
		}
	}
	return results
}

// SaveDeliberation finalizes and writes a deliberation trace.
func (m *Manager) SaveDeliberation(trace *models.DeliberationTrace) error {
	if trace.CompletedAt == nil {
		trace.MarkCompleted()
	}
	if err := os.MkdirAll(m.delibDir, 0o755); err != nil {
		return fmt.Errorf("create deliberation dir: %w", err)
	}

	path := filepath.Join(m.delibDir, "deliberation_"+trace.TraceID+".json")
	trace.FilePath = path

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deliberation trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write deliberation trace: %w", err)
	}
	return nil
}

// LoadDeliberation retrieves a deliberation trace by ID; missing
// returns (nil, nil).
func (m *Manager) LoadDeliberation(traceID string) (*models.DeliberationTrace, error) {
	path := filepath.Join(m.delibDir, "deliberation_"+traceID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read deliberation trace: %w", err)
	}
	var trace models.DeliberationTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("decode deliberation trace: %w", err)
	}
	return &trace, nil
}

// monthDirsDesc lists month bucket paths, newest first.
func (m *Manager) monthDirsDesc() []string {
	entries, err := os.ReadDir(m.tracesDir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(m.tracesDir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs
}

// traceFilesDesc lists trace file paths in a month dir, newest first by
// name.
func (m *Manager) traceFilesDesc(monthDir string) []string {
	entries, err := os.ReadDir(monthDir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "trace_") && strings.HasSuffix(name, ".json") {
			files = append(files, filepath.Join(monthDir, name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files
}

func readTraceFile(path string) (*models.CollaborationTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var trace models.CollaborationTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", path, err)
	}
	return &trace, nil
}
