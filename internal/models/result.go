package models

import (
	"sort"
	"strconv"
	"time"
)

// ExceptionInfo describes why a test failed. Line and Content follow the same
// anchor discipline as LineResult: Content is the source text at Line when
// the location was last resolved. Line is 0 when no location is known.
type ExceptionInfo struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Line    int    `json:"line,omitempty"`
	Content string `json:"content,omitempty"`
}

// HasAnchor reports whether the exception is tied to a source line.
func (e *ExceptionInfo) HasAnchor() bool {
	return e != nil && e.Line > 0 && e.Content != ""
}

// LineResult is the outcome of one test, keyed within a file by its line.
// Content is always the source text observed at Line when the result was
// recorded; reconciliation rewrites Line and Content together.
type LineResult struct {
	TestID         string         `json:"test_id"`
	RunID          string         `json:"run_id"`
	Line           int            `json:"line"`
	Content        string         `json:"content"`
	Status         Status         `json:"status"`
	Exception      *ExceptionInfo `json:"exception,omitempty"`
	TestName       string         `json:"test_name,omitempty"`
	DurationLabel  string         `json:"duration_label,omitempty"`
	PendingMessage string         `json:"pending_message,omitempty"`
}

// Clone returns a deep copy of the result.
func (r *LineResult) Clone() *LineResult {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Exception != nil {
		exception := *r.Exception
		clone.Exception = &exception
	}
	return &clone
}

// LineKey returns the map key used for a result recorded at line.
func LineKey(line int) string {
	return strconv.Itoa(line)
}

// FileResultSet holds every result recorded for one file across runs.
type FileResultSet struct {
	CurrentRunID string                 `json:"current_run_id"`
	RunPending   bool                   `json:"run_pending"`
	Results      map[string]*LineResult `json:"results"`
}

// NewFileResultSet creates an empty result set owned by runID.
func NewFileResultSet(runID string) *FileResultSet {
	return &FileResultSet{
		CurrentRunID: runID,
		Results:      make(map[string]*LineResult),
	}
}

// Put stores result under the key of its own line, replacing any prior entry.
func (s *FileResultSet) Put(result *LineResult) {
	if s.Results == nil {
		s.Results = make(map[string]*LineResult)
	}
	s.Results[LineKey(result.Line)] = result
}

// IsStale reports whether result belongs to a run other than the current one.
func (s *FileResultSet) IsStale(result *LineResult) bool {
	return result.RunID != s.CurrentRunID
}

// Clone returns a deep copy of the set.
func (s *FileResultSet) Clone() *FileResultSet {
	if s == nil {
		return nil
	}
	clone := &FileResultSet{
		CurrentRunID: s.CurrentRunID,
		RunPending:   s.RunPending,
		Results:      make(map[string]*LineResult, len(s.Results)),
	}
	for key, result := range s.Results {
		clone.Results[key] = result.Clone()
	}
	return clone
}

// Counts tallies results by status.
func (s *FileResultSet) Counts() (passed, failed, pending int) {
	for _, result := range s.Results {
		switch result.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusPending:
			pending++
		}
	}
	return passed, failed, pending
}

// FailedLines returns the lines of failed results in ascending order.
func (s *FileResultSet) FailedLines() []int {
	var lines []int
	for _, result := range s.Results {
		if result.Status == StatusFailed {
			lines = append(lines, result.Line)
		}
	}
	sort.Ints(lines)
	return lines
}

// TestResults maps an absolute file path to its result set. Interpreters
// produce partial TestResults; the results store merges them.
type TestResults map[string]*FileResultSet

// RunRecord identifies one invocation of the external runner against a file.
type RunRecord struct {
	ID      string
	File    string
	Pending bool
	Started time.Time
}
