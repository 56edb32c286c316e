// Package results owns the accumulated test results of a session and keeps
// them anchored to the live text of the documents they describe.
package results

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// Logger is the logging surface the store needs.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
}

type noopLogger struct{}

func (noopLogger) LogTrace(string) {}
func (noopLogger) LogDebug(string) {}

// Store holds one FileResultSet per absolute file path. It is safe for
// concurrent use; callers only ever see copies of the stored sets.
type Store struct {
	mu     sync.RWMutex
	files  map[string]*models.FileResultSet
	logger Logger
}

// NewStore creates an empty store. A nil logger discards output.
func NewStore(logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		files:  make(map[string]*models.FileResultSet),
		logger: logger,
	}
}

// SetTestResults merges partial into the store. Files seen for the first
// time are inserted whole. For known files the run id and pending flag are
// taken from partial and each incoming result replaces the one stored under
// the same line; results for lines partial does not mention are kept.
func (s *Store) SetTestResults(partial models.TestResults) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range sortedFiles(partial) {
		incoming := partial[file]
		if incoming == nil {
			continue
		}

		existing, ok := s.files[file]
		if !ok {
			s.files[file] = incoming.Clone()
			s.logger.LogDebug(fmt.Sprintf("Stored %d result(s) for new file %s (run %s)", len(incoming.Results), file, incoming.CurrentRunID))
			continue
		}

		existing.CurrentRunID = incoming.CurrentRunID
		existing.RunPending = incoming.RunPending
		for _, result := range incoming.Results {
			existing.Put(result.Clone())
		}
		s.logger.LogDebug(fmt.Sprintf("Merged %d result(s) into %s (run %s, %d total)", len(incoming.Results), file, incoming.CurrentRunID, len(existing.Results)))
	}
}

// SetPending marks a run as in flight for file. A file with no results yet
// gets an empty set so the awaiting state is visible immediately.
func (s *Store) SetPending(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.files[file]
	if !ok {
		set = models.NewFileResultSet("")
		s.files[file] = set
	}
	set.RunPending = true
}

// Clear deletes every result recorded for file.
func (s *Store) Clear(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[file]; !ok {
		return false
	}
	delete(s.files, file)
	return true
}

// Results returns a copy of the set stored for file.
func (s *Store) Results(file string) (*models.FileResultSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.files[file]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

// Files lists the files with stored results in lexical order.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]string, 0, len(s.files))
	for file := range s.files {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Reconcile re-anchors the results stored for doc's file against its
// current text. Files without results are left alone.
func (s *Store) Reconcile(doc workspace.Document) Report {
	if doc == nil {
		return Report{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.files[doc.Path()]
	if !ok {
		return Report{}
	}

	report := Reconcile(set, doc)
	if report.Changed() {
		s.logger.LogTrace(fmt.Sprintf("Reconciled %s: %s", doc.Path(), report))
	}
	return report
}

// Snapshot returns a deep copy of everything in the store.
func (s *Store) Snapshot() models.TestResults {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(models.TestResults, len(s.files))
	for file, set := range s.files {
		snapshot[file] = set.Clone()
	}
	return snapshot
}

// Restore replaces the store contents with a copy of snapshot.
func (s *Store) Restore(snapshot models.TestResults) {
	files := make(map[string]*models.FileResultSet, len(snapshot))
	for file, set := range snapshot {
		if set == nil {
			continue
		}
		files[file] = set.Clone()
	}

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
}

func sortedFiles(results models.TestResults) []string {
	files := make([]string, 0, len(results))
	for file := range results {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}
