// Package session wires the builder, interpreters, results store and
// presenter into the lifecycle of one editor session: dispatching runs,
// reacting to capture sink writes and redrawing the active document.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/harrison/specrunner/internal/command"
	"github.com/harrison/specrunner/internal/interpreter"
	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/presenter"
	"github.com/harrison/specrunner/internal/results"
	"github.com/harrison/specrunner/internal/workspace"
)

// Terminal runs a command line where the user can see it.
type Terminal interface {
	SendText(ctx context.Context, command string) error
}

// Debugger starts a debug session from a launch configuration.
type Debugger interface {
	StartDebugging(ctx context.Context, launch *command.LaunchConfig) error
}

// Notifier shows a message to the user.
type Notifier interface {
	ShowError(message string)
}

// Logger is the logging surface the session needs.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// History records dispatched runs and the results they produced.
type History interface {
	RecordDispatch(ctx context.Context, run models.RunRecord, mode models.Mode, command string) error
	RecordResults(ctx context.Context, runID, file string, set *models.FileResultSet) error
}

// Sinks locates capture sinks and maps a sink back to its framework.
type Sinks interface {
	command.SinkLocator
	Framework(path string) (models.Framework, bool)
	Close() error
}

// Config holds the collaborators of a Session. Builder, Store, Presenter,
// Workspace and Sinks are required.
type Config struct {
	Builder   *command.Builder
	Store     *results.Store
	Presenter *presenter.Presenter
	Workspace workspace.Workspace
	Sinks     Sinks

	// ProjectPath overrides the workspace root for resolving runner paths.
	ProjectPath string
	// SnapshotPath persists the store after every change when set.
	SnapshotPath string

	Terminal Terminal
	Debugger Debugger
	Notifier Notifier
	History  History
	Logger   Logger

	// Redrawn is called after the active document was redrawn in response
	// to a sink write or a document change.
	Redrawn func(doc workspace.Document)
}

var nowFunc = time.Now

// Session owns the mutable state of one editor session.
type Session struct {
	cfg Config
	ids *models.RunIDSource

	mu          sync.Mutex
	active      string
	trackers    map[string]*interpreter.Tracker
	generations map[string]uint64
	// dispatched holds, per framework, the id of the last run whose sink
	// output has not been finalized yet.
	dispatched map[models.Framework]string
	closed     bool
}

// New creates a Session. Missing optional collaborators are replaced with
// no-op implementations.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	return &Session{
		cfg:         cfg,
		ids:         models.NewRunIDSource(),
		trackers:    make(map[string]*interpreter.Tracker),
		generations: make(map[string]uint64),
		dispatched:  make(map[models.Framework]string),
	}
}

// SetActive makes file the document the presenter draws.
func (s *Session) SetActive(file string) {
	s.mu.Lock()
	s.active = file
	s.mu.Unlock()
}

// Active returns the active document path.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Run sends the command for target to the terminal and marks its file as
// pending.
func (s *Session) Run(ctx context.Context, target models.Target) error {
	return s.dispatch(ctx, target, models.ModeRun)
}

// RunFailed re-runs the examples of file that failed last time.
func (s *Session) RunFailed(ctx context.Context, file string) error {
	return s.dispatch(ctx, models.Target{File: file, FailedOnly: true}, models.ModeRun)
}

// Debug starts the configured debugger on target.
func (s *Session) Debug(ctx context.Context, target models.Target) error {
	return s.dispatch(ctx, target, models.ModeDebug)
}

func (s *Session) dispatch(ctx context.Context, target models.Target, mode models.Mode) error {
	exe, err := s.cfg.Builder.Build(target, mode)
	if err != nil {
		return s.absorb(err, target)
	}

	run := models.RunRecord{
		ID:      s.ids.Next(),
		File:    target.File,
		Pending: true,
		Started: nowFunc(),
	}
	s.expect(exe.Framework, run.ID)

	switch mode {
	case models.ModeDebug:
		if s.cfg.Debugger == nil {
			return fmt.Errorf("no debugger available to launch %s", exe.Launch.Name)
		}
		if err := s.cfg.Debugger.StartDebugging(ctx, exe.Launch); err != nil {
			s.settle(exe.Framework, run.ID)
			return fmt.Errorf("failed to start debugger: %w", err)
		}
	default:
		if s.cfg.Terminal == nil {
			return fmt.Errorf("no terminal available to run %s", target.File)
		}
		if err := s.cfg.Terminal.SendText(ctx, exe.Command); err != nil {
			s.settle(exe.Framework, run.ID)
			return fmt.Errorf("failed to send command to terminal: %w", err)
		}
	}

	s.cfg.Logger.LogInfo(fmt.Sprintf("Dispatched %s %s for %s (run %s)", exe.Framework, mode, target.File, run.ID))

	if s.cfg.History != nil {
		commandLine := exe.Command
		if exe.Launch != nil {
			commandLine = exe.Launch.Name
		}
		if err := s.cfg.History.RecordDispatch(ctx, run, mode, commandLine); err != nil {
			s.cfg.Logger.LogWarn(fmt.Sprintf("Failed to record run history: %v", err))
		}
	}

	s.cfg.Store.SetPending(target.File)
	s.persist()
	s.render()
	return nil
}

// absorb turns the errors that must not escape a user action into
// notifications. Anything else is returned.
func (s *Session) absorb(err error, target models.Target) error {
	switch {
	case errors.Is(err, workspace.ErrNoWorkspace):
		s.cfg.Logger.LogError(fmt.Sprintf("Unable to run %s: %v", target.File, err))
		s.cfg.Notifier.ShowError("Unable to run tests. It appears that no workspace is open.")
		return nil
	case errors.Is(err, command.ErrUnknownDebugger):
		s.cfg.Logger.LogError(fmt.Sprintf("Unable to debug %s: %v", target.File, err))
		s.cfg.Notifier.ShowError(fmt.Sprintf("Unable to debug tests: %v", err))
		return nil
	default:
		return err
	}
}

// Update redraws doc and makes it the active document.
func (s *Session) Update(doc workspace.Document) bool {
	if doc == nil {
		return false
	}
	s.SetActive(doc.Path())
	changed := s.cfg.Presenter.Update(doc)
	if changed {
		s.persist()
	}
	return changed
}

// Clear removes every result recorded for file and its decorations.
func (s *Session) Clear(file string) bool {
	cleared := s.cfg.Store.Clear(file)
	if file == s.Active() {
		s.cfg.Presenter.Clear()
	}
	if cleared {
		s.cfg.Logger.LogInfo(fmt.Sprintf("Cleared results for %s", file))
		s.persist()
	}
	return cleared
}

// HandleSinkWrite reads the sink at path and, when it holds a finished
// run, merges the results and redraws. Notifications superseded by a newer
// one for the same sink while the sink was being read are dropped.
func (s *Session) HandleSinkWrite(ctx context.Context, path string) error {
	framework, ok := s.cfg.Sinks.Framework(path)
	if !ok {
		return fmt.Errorf("not a capture sink: %s", path)
	}

	tracker, generation, err := s.begin(path, framework)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read capture sink: %w", err)
	}

	if !s.current(path, generation) {
		s.cfg.Logger.LogTrace(fmt.Sprintf("Skipping superseded write to %s", path))
		return nil
	}

	runID := s.runID(framework)
	partial, finalized := tracker.Feed(raw, runID)
	if !finalized {
		s.cfg.Logger.LogDebug(fmt.Sprintf("%s sink %s: %s", framework, path, tracker.State()))
		return nil
	}
	s.settle(framework, runID)

	s.cfg.Store.SetTestResults(partial)
	for file, set := range partial {
		s.logSummary(file, set)
		if s.cfg.History != nil {
			if err := s.cfg.History.RecordResults(ctx, runID, file, set); err != nil {
				s.cfg.Logger.LogWarn(fmt.Sprintf("Failed to record results history: %v", err))
			}
		}
	}

	s.persist()
	s.render()
	return nil
}

// expect records id as the run the next output in framework's sink
// belongs to.
func (s *Session) expect(framework models.Framework, id string) {
	s.mu.Lock()
	s.dispatched[framework] = id
	s.mu.Unlock()
}

// runID returns the dispatched run awaiting results in framework's sink,
// or a fresh id for output nothing here dispatched.
func (s *Session) runID(framework models.Framework) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.dispatched[framework]; ok {
		return id
	}
	return s.ids.Next()
}

func (s *Session) settle(framework models.Framework, id string) {
	s.mu.Lock()
	if s.dispatched[framework] == id {
		delete(s.dispatched, framework)
	}
	s.mu.Unlock()
}

func (s *Session) begin(path string, framework models.Framework) (*interpreter.Tracker, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, fmt.Errorf("session is closed")
	}

	tracker, ok := s.trackers[path]
	if !ok {
		interp := interpreter.New(framework, s.cfg.Workspace, s.cfg.ProjectPath, s.cfg.Logger)
		if interp == nil {
			return nil, 0, fmt.Errorf("no interpreter for %s", framework)
		}
		tracker = interpreter.NewTracker(interp)
		s.trackers[path] = tracker
	}

	s.generations[path]++
	return tracker, s.generations[path], nil
}

func (s *Session) current(path string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[path] == generation
}

// render redraws the active document, if it can be read.
func (s *Session) render() {
	active := s.Active()
	if active == "" || s.cfg.Workspace == nil {
		return
	}
	doc, ok := s.cfg.Workspace.Document(active)
	if !ok {
		return
	}
	s.cfg.Presenter.Update(doc)
	if s.cfg.Redrawn != nil {
		s.cfg.Redrawn(doc)
	}
}

// Refresh redraws the active document after it changed on disk. Other
// paths are ignored.
func (s *Session) Refresh(path string) bool {
	if path == "" || path != s.Active() {
		return false
	}
	s.render()
	return true
}

// Reload replaces the store with the persisted snapshot, written by this or
// another process, and redraws.
func (s *Session) Reload() error {
	if s.cfg.SnapshotPath == "" {
		return nil
	}
	snapshot, err := results.LoadSnapshot(s.cfg.SnapshotPath)
	if err != nil {
		return err
	}
	s.cfg.Store.Restore(snapshot)
	s.cfg.Logger.LogDebug(fmt.Sprintf("Reloaded results for %d file(s) from %s", len(snapshot), s.cfg.SnapshotPath))
	s.render()
	return nil
}

func (s *Session) persist() {
	if s.cfg.SnapshotPath == "" {
		return
	}
	if err := results.SaveSnapshot(s.cfg.SnapshotPath, s.cfg.Store.Snapshot()); err != nil {
		s.cfg.Logger.LogWarn(fmt.Sprintf("Failed to save results snapshot: %v", err))
	}
}

// Close clears decorations and deletes the capture sinks.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.persist()
	s.cfg.Presenter.Clear()
	return s.cfg.Sinks.Close()
}

// summaryLogger is implemented by loggers that format result summaries
// themselves.
type summaryLogger interface {
	LogResultSummary(file string, set *models.FileResultSet)
}

func (s *Session) logSummary(file string, set *models.FileResultSet) {
	if l, ok := s.cfg.Logger.(summaryLogger); ok {
		l.LogResultSummary(file, set)
		return
	}
	passed, failed, pending := set.Counts()
	s.cfg.Logger.LogInfo(fmt.Sprintf("Results for %s: %d passed, %d failed, %d pending", file, passed, failed, pending))
}

type noopLogger struct{}

func (noopLogger) LogTrace(string) {}
func (noopLogger) LogDebug(string) {}
func (noopLogger) LogInfo(string)  {}
func (noopLogger) LogWarn(string)  {}
func (noopLogger) LogError(string) {}

type noopNotifier struct{}

func (noopNotifier) ShowError(string) {}
