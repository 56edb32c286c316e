package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrison/specrunner/internal/command"
	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/presenter"
	"github.com/harrison/specrunner/internal/results"
	"github.com/harrison/specrunner/internal/watcher"
	"github.com/harrison/specrunner/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const userTestPath = "/w/test/user_test.rb"

var userTestText = strings.Join([]string{
	"class UserTest < Minitest::Test",
	"  def test_one",
	"    assert true",
	"  end",
	"",
	"  # helpers",
	"",
	"  def test_two",
	"    x = 1",
	"    y = 2",
	"    z = 3",
	"    assert_equal x, y",
	"  end",
	"",
	"  def test_three",
	"    raise 'boom'",
	"  end",
	"end",
}, "\n")

type fakeTerminal struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeTerminal) SendText(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, command)
	return nil
}

type fakeDebugger struct {
	launches []*command.LaunchConfig
}

func (f *fakeDebugger) StartDebugging(_ context.Context, launch *command.LaunchConfig) error {
	f.launches = append(f.launches, launch)
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) ShowError(message string) {
	f.messages = append(f.messages, message)
}

type fakeHistory struct {
	mu         sync.Mutex
	dispatched []models.RunRecord
	recorded   []string
}

func (f *fakeHistory) RecordDispatch(_ context.Context, run models.RunRecord, _ models.Mode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, run)
	return nil
}

func (f *fakeHistory) RecordResults(_ context.Context, runID, file string, _ *models.FileResultSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, runID+" "+file)
	return nil
}

type fixture struct {
	session  *Session
	store    *results.Store
	renderer *presenter.Renderer
	sinks    *watcher.Sinks
	terminal *fakeTerminal
	debugger *fakeDebugger
	notifier *fakeNotifier
	history  *fakeHistory
	ws       *workspace.DirWorkspace
}

func newFixture(t *testing.T, ws *workspace.DirWorkspace, debugger command.Debugger) *fixture {
	t.Helper()

	f := &fixture{
		store:    results.NewStore(nil),
		renderer: presenter.NewRenderer(false),
		sinks:    watcher.NewSinks(t.TempDir(), nil),
		terminal: &fakeTerminal{},
		debugger: &fakeDebugger{},
		notifier: &fakeNotifier{},
		history:  &fakeHistory{},
		ws:       ws,
	}

	builder := command.NewBuilder(command.Options{
		RSpecCommand:    "bundle exec rspec",
		MinitestCommand: "bundle exec rails t",
		Shell:           command.ShellPOSIX,
		Debugger:        debugger,
		RSpecCapture:    true,
		MinitestCapture: true,
	}, ws, f.sinks)

	f.session = New(Config{
		Builder:   builder,
		Store:     f.store,
		Presenter: presenter.New(f.store, f.renderer, presenter.DefaultOptions()),
		Workspace: ws,
		Sinks:     f.sinks,
		Terminal:  f.terminal,
		Debugger:  f.debugger,
		Notifier:  f.notifier,
		History:   f.history,
	})
	t.Cleanup(func() { f.session.Close() })
	return f
}

func userWorkspace() *workspace.DirWorkspace {
	ws := workspace.NewDirWorkspace("/w")
	ws.Open(workspace.NewTextDocument(userTestPath, userTestText))
	return ws
}

func (f *fixture) writeMinitestSink(t *testing.T, selector string, body ...string) string {
	t.Helper()
	path, err := f.sinks.Path(models.FrameworkMinitest)
	require.NoError(t, err)

	header := []string{userTestPath, selector, "Run options: --seed 1", "", "# Running:", ""}
	content := strings.Join(append(header, body...), "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

var finishedRun = []string{
	"  1) Failure:",
	"UserTest#test_two [/w/test/user_test.rb:12]:",
	"Expected: 1",
	"  Actual: 2",
	"",
	"3 tests, 3 assertions, 1 failures, 0 errors, 0 skips",
}

func lines(decorations []presenter.Decoration) []int {
	var got []int
	for _, d := range decorations {
		got = append(got, d.Line)
	}
	return got
}

func TestRunDispatchesAndMarksPending(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	ctx := context.Background()

	require.NoError(t, f.session.Run(ctx, models.Target{File: userTestPath}))

	require.Len(t, f.terminal.commands, 1)
	sink, err := f.sinks.Path(models.FrameworkMinitest)
	require.NoError(t, err)
	assert.Contains(t, f.terminal.commands[0], "bundle exec rails t")
	assert.Contains(t, f.terminal.commands[0], sink)

	set, ok := f.store.Results(userTestPath)
	require.True(t, ok)
	assert.True(t, set.RunPending)

	require.Len(t, f.history.dispatched, 1)
	assert.Equal(t, userTestPath, f.history.dispatched[0].File)
	assert.Empty(t, f.notifier.messages)
}

func TestMinitestRunEndToEnd(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	ctx := context.Background()
	f.session.SetActive(userTestPath)

	require.NoError(t, f.session.Run(ctx, models.Target{File: userTestPath}))

	// The runner has only written the header so far.
	path := f.writeMinitestSink(t, "ALL", "..F")
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))
	set, _ := f.store.Results(userTestPath)
	assert.True(t, set.RunPending)
	assert.Empty(t, f.history.recorded)

	path = f.writeMinitestSink(t, "ALL", finishedRun...)
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))

	set, _ = f.store.Results(userTestPath)
	assert.False(t, set.RunPending)
	assert.Equal(t, models.StatusFailed, set.Results["8"].Status)
	assert.Equal(t, models.StatusPassed, set.Results["2"].Status)
	assert.Equal(t, models.StatusPassed, set.Results["15"].Status)

	assert.Equal(t, []int{8}, lines(f.renderer.Decorations(presenter.CategoryFailed)))
	assert.Equal(t, []int{12}, lines(f.renderer.Decorations(presenter.CategoryFailedLine)))
	assert.Equal(t, []int{2, 15}, lines(f.renderer.Decorations(presenter.CategoryPassed)))
	require.Len(t, f.history.recorded, 1)

	// A repeated notification for the same contents is ignored.
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))
	assert.Len(t, f.history.recorded, 1)
}

func TestResultsCarryDispatchedRunID(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	ctx := context.Background()

	require.NoError(t, f.session.Run(ctx, models.Target{File: userTestPath}))
	require.Len(t, f.history.dispatched, 1)
	runID := f.history.dispatched[0].ID

	path := f.writeMinitestSink(t, "ALL", finishedRun...)
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))

	set, _ := f.store.Results(userTestPath)
	assert.Equal(t, runID, set.CurrentRunID)
	assert.Equal(t, []string{runID + " " + userTestPath}, f.history.recorded)

	// Output rewritten without a new dispatch gets a run of its own.
	path = f.writeMinitestSink(t, "ALL", "3 tests, 3 assertions, 0 failures, 0 errors, 0 skips")
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))
	set, _ = f.store.Results(userTestPath)
	assert.NotEqual(t, runID, set.CurrentRunID)
}

func TestRunWithoutWorkspaceNotifies(t *testing.T) {
	ws := workspace.NewDirWorkspace()
	ws.Open(workspace.NewTextDocument(userTestPath, userTestText))
	f := newFixture(t, ws, command.DebuggerRdbg)

	// Directory changes need a project root.
	f.session.cfg.Builder = command.NewBuilder(command.Options{
		MinitestCommand: "bundle exec rails t",
		Shell:           command.ShellPOSIX,
		ChangeDirectory: true,
	}, ws, f.sinks)

	err := f.session.Run(context.Background(), models.Target{File: userTestPath})
	require.NoError(t, err)
	assert.Empty(t, f.terminal.commands)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "no workspace")

	_, ok := f.store.Results(userTestPath)
	assert.False(t, ok)
}

func TestDebugLaunchesDebugger(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)

	require.NoError(t, f.session.Debug(context.Background(), models.Target{File: userTestPath, Line: 8}))
	require.Len(t, f.debugger.launches, 1)
	assert.Equal(t, "rdbg", f.debugger.launches[0].Type)
	assert.Empty(t, f.terminal.commands)

	set, ok := f.store.Results(userTestPath)
	require.True(t, ok)
	assert.True(t, set.RunPending)
}

func TestDebugWithUnknownDebuggerNotifies(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.Debugger("gdb"))

	require.NoError(t, f.session.Debug(context.Background(), models.Target{File: userTestPath, Line: 8}))
	assert.Empty(t, f.debugger.launches)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "gdb")
}

func TestRunTerminalFailureIsReturned(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	f.terminal.err = errors.New("terminal gone")

	err := f.session.Run(context.Background(), models.Target{File: userTestPath})
	assert.ErrorContains(t, err, "terminal gone")
	_, ok := f.store.Results(userTestPath)
	assert.False(t, ok)
}

func TestRunNonTestFileIsReturned(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	err := f.session.Run(context.Background(), models.Target{File: "/w/lib/user.rb"})
	assert.Error(t, err)
	assert.Empty(t, f.notifier.messages)
}

func TestClear(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	ctx := context.Background()
	f.session.SetActive(userTestPath)

	require.NoError(t, f.session.Run(ctx, models.Target{File: userTestPath}))
	path := f.writeMinitestSink(t, "ALL", finishedRun...)
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))
	require.False(t, f.renderer.Empty())

	assert.True(t, f.session.Clear(userTestPath))
	assert.True(t, f.renderer.Empty())
	assert.False(t, f.session.Clear(userTestPath))
}

func TestUpdateSetsActiveDocument(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	doc, ok := f.ws.Document(userTestPath)
	require.True(t, ok)

	assert.False(t, f.session.Update(doc))
	assert.Equal(t, userTestPath, f.session.Active())
	assert.False(t, f.session.Update(nil))
}

func TestHandleSinkWriteRejectsUnknownPath(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	assert.Error(t, f.session.HandleSinkWrite(context.Background(), "/tmp/not-a-sink"))
}

func TestSnapshotPersistedAfterResults(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	f.session.cfg.SnapshotPath = filepath.Join(dir, "results.json")
	ctx := context.Background()

	path := f.writeMinitestSink(t, "ALL", finishedRun...)
	require.NoError(t, f.session.HandleSinkWrite(ctx, path))

	restored, err := results.LoadSnapshot(f.session.cfg.SnapshotPath)
	require.NoError(t, err)
	require.Contains(t, restored, userTestPath)
	assert.Len(t, restored[userTestPath].Results, 3)
}

func TestCloseRemovesSinks(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	path := f.writeMinitestSink(t, "ALL", finishedRun...)

	require.NoError(t, f.session.Close())
	assert.NoFileExists(t, path)
	require.NoError(t, f.session.Close())
}

func TestWatchProcessesSinkWrites(t *testing.T) {
	w, err := watcher.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	dir := t.TempDir()
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	f.sinks = watcher.NewSinks(dir, w)
	f.session.cfg.Sinks = f.sinks

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Watch(ctx, w) }()

	f.writeMinitestSink(t, "ALL", finishedRun...)

	require.Eventually(t, func() bool {
		set, ok := f.store.Results(userTestPath)
		return ok && len(set.Results) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRefreshRedrawsOnlyActiveDocument(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)

	var redrawn []string
	f.session.cfg.Redrawn = func(doc workspace.Document) { redrawn = append(redrawn, doc.Path()) }

	set := models.NewFileResultSet("1")
	set.Put(&models.LineResult{RunID: "1", Line: 2, Content: "  def test_one", Status: models.StatusPassed})
	f.store.SetTestResults(models.TestResults{userTestPath: set})

	assert.False(t, f.session.Refresh(userTestPath), "nothing is active yet")

	f.session.SetActive(userTestPath)
	assert.False(t, f.session.Refresh("/w/test/other_test.rb"))
	assert.True(t, f.session.Refresh(userTestPath))

	assert.Equal(t, []string{userTestPath}, redrawn)
	assert.Len(t, f.renderer.Decorations(presenter.CategoryPassed), 1)
}

func TestWatchRedrawsEditedDocument(t *testing.T) {
	w, err := watcher.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	dir := t.TempDir()
	path := filepath.Join(dir, "user_test.rb")
	require.NoError(t, os.WriteFile(path, []byte(userTestText), 0644))

	f := newFixture(t, workspace.NewDirWorkspace(dir), command.DebuggerRdbg)
	redrawn := make(chan workspace.Document, 4)
	f.session.cfg.Redrawn = func(doc workspace.Document) {
		select {
		case redrawn <- doc:
		default:
		}
	}
	f.session.SetActive(path)
	require.NoError(t, w.Add(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Watch(ctx, w) }()

	edited := "# frozen_string_literal: true\n" + userTestText
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	select {
	case doc := <-redrawn:
		assert.Equal(t, path, doc.Path())
		assert.Equal(t, "# frozen_string_literal: true", doc.Line(1))
	case <-time.After(2 * time.Second):
		t.Fatal("document was not redrawn after it changed")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReloadRestoresSnapshotFromAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	f.session.cfg.SnapshotPath = filepath.Join(dir, "results.json")
	f.session.SetActive(userTestPath)

	set := models.NewFileResultSet("5")
	set.Put(&models.LineResult{RunID: "5", Line: 8, Content: "  def test_two", Status: models.StatusFailed})
	require.NoError(t, results.SaveSnapshot(f.session.cfg.SnapshotPath, models.TestResults{userTestPath: set}))

	require.NoError(t, f.session.Reload())

	got, ok := f.store.Results(userTestPath)
	require.True(t, ok)
	assert.Equal(t, "5", got.CurrentRunID)
	assert.Len(t, f.renderer.Decorations(presenter.CategoryFailed), 1)
}

func TestReloadWithoutSnapshotPath(t *testing.T) {
	f := newFixture(t, userWorkspace(), command.DebuggerRdbg)
	assert.NoError(t, f.session.Reload())
}
