package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/harrison/specrunner/internal/models"
)

// Sinks hands out one capture file per framework for a session. Each file
// is created and registered with the watcher on first use and reused by
// every later run of that framework.
type Sinks struct {
	dir       string
	sessionID string
	watcher   *Watcher

	mu    sync.Mutex
	paths map[models.Framework]string
}

// NewSinks creates sinks under dir (the system temp dir when empty) and
// registers them with w. A nil w creates unwatched sinks.
func NewSinks(dir string, w *Watcher) *Sinks {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Sinks{
		dir:       dir,
		sessionID: uuid.New().String(),
		watcher:   w,
		paths:     make(map[models.Framework]string),
	}
}

// SessionID returns the id embedded in every sink file name.
func (s *Sinks) SessionID() string {
	return s.sessionID
}

func sinkName(sessionID string, framework models.Framework) string {
	extension := ".txt"
	if framework == models.FrameworkRSpec {
		extension = ".json"
	}
	return "specrunner-" + sessionID + "-" + framework.String() + extension
}

// Path returns the sink for framework, creating it if needed.
func (s *Sinks) Path(framework models.Framework) (string, error) {
	if framework == models.FrameworkUnknown {
		return "", fmt.Errorf("no capture sink for framework %s", framework)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.paths[framework]; ok {
		return path, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sink directory %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, sinkName(s.sessionID, framework))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create capture sink: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create capture sink: %w", err)
	}

	if s.watcher != nil {
		if err := s.watcher.Add(path); err != nil {
			os.Remove(path)
			return "", err
		}
	}

	s.paths[framework] = path
	return path, nil
}

// Framework returns the framework whose sink lives at path.
func (s *Sinks) Framework(path string) (models.Framework, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path = filepath.Clean(path)
	for framework, sink := range s.paths {
		if sink == path {
			return framework, true
		}
	}
	return models.FrameworkUnknown, false
}

// Paths lists the sinks created so far.
func (s *Sinks) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.paths))
	for _, path := range s.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Close unregisters and deletes every sink.
func (s *Sinks) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for framework, path := range s.paths {
		if s.watcher != nil {
			s.watcher.Remove(path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		delete(s.paths, framework)
	}
	return errors.Join(errs...)
}
