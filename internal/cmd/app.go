package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/command"
	"github.com/harrison/specrunner/internal/config"
	"github.com/harrison/specrunner/internal/history"
	"github.com/harrison/specrunner/internal/logger"
	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/presenter"
	"github.com/harrison/specrunner/internal/results"
	"github.com/harrison/specrunner/internal/session"
	"github.com/harrison/specrunner/internal/watcher"
	"github.com/harrison/specrunner/internal/workspace"
)

// app is one CLI invocation's editor session: configuration, collaborators
// and the session wiring them together.
type app struct {
	cfg     *config.Config
	dir     string
	cmdOpts command.Options

	out    io.Writer
	errOut io.Writer

	log        *logger.MultiLogger
	fileLogger *logger.FileLogger

	ws        *workspace.DirWorkspace
	watcher   *watcher.Watcher
	sinks     *watcher.Sinks
	store     *results.Store
	renderer  *presenter.Renderer
	presenter *presenter.Presenter
	history   *history.Store
	launcher  *launchPrinter
	session   *session.Session

	mu       sync.Mutex
	onRedraw func(doc workspace.Document)
}

// workspaceDir returns the --workspace flag, or the project root above the
// working directory, or the working directory itself.
func workspaceDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("workspace"); dir != "" {
		return filepath.Abs(dir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if root, err := config.FindProjectRoot(cwd); err == nil {
		return root, nil
	}
	return cwd, nil
}

// loadConfig loads the config file for dir and applies CLI flags.
func loadConfig(cmd *cobra.Command, dir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		cfg.ResolvePaths(dir)
	} else {
		cfg, err = config.LoadConfigFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := config.Flags{}
	stringFlag := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		value, _ := cmd.Flags().GetString(name)
		return &value
	}
	flags.ProjectPath = stringFlag("project-path")
	flags.Shell = stringFlag("shell")
	flags.RubyDebugger = stringFlag("debugger")
	flags.LogLevel = stringFlag("log-level")
	flags.LogDir = stringFlag("log-dir")
	if cmd.Flags().Changed("no-history") {
		noHistory, _ := cmd.Flags().GetBool("no-history")
		flags.NoHistory = &noHistory
	}
	cfg.MergeWithFlags(flags)

	if flags.LogDir != nil {
		cfg.ResolvePaths(dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp loads configuration and wires a session. withWatcher starts a file
// watcher that capture sinks register with.
func newApp(cmd *cobra.Command, withWatcher bool) (a *app, err error) {
	dir, err := workspaceDir(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return nil, err
	}

	a = &app{
		cfg:    cfg,
		dir:    dir,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	console := logger.NewConsoleLogger(a.errOut, cfg.LogLevel)
	if cfg.LogDir != "" {
		a.fileLogger, err = logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			return a, err
		}
	}
	if a.fileLogger != nil {
		a.log = logger.NewMultiLogger(console, a.fileLogger)
	} else {
		a.log = logger.NewMultiLogger(console)
	}

	a.cmdOpts, err = cfg.CommandOptions()
	if err != nil {
		return a, err
	}
	if !a.cmdOpts.Debugger.Known() {
		a.log.LogWarn(fmt.Sprintf("Unknown ruby_debugger %q; debug launches are disabled (valid: %s, %s)",
			cfg.RubyDebugger, command.DebuggerRdbg, command.DebuggerRubyLSP))
	}

	if withWatcher {
		a.watcher, err = watcher.NewWatcher()
		if err != nil {
			return a, err
		}
	}

	a.ws = workspace.NewDirWorkspace(dir)
	a.sinks = watcher.NewSinks(cfg.SinkDir, a.watcher)
	a.store = results.NewStore(a.log)
	a.renderer = presenter.NewRenderer(presenter.ColorEnabled(a.out))
	a.presenter = presenter.New(a.store, a.renderer, cfg.PresenterOptions())
	a.launcher = newLaunchPrinter(a.out)

	if cfg.SnapshotPath != "" {
		snapshot, err := results.LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return a, fmt.Errorf("failed to load results snapshot: %w", err)
		}
		a.store.Restore(snapshot)
	}

	sessionCfg := session.Config{
		Builder:      command.NewBuilder(a.cmdOpts, a.ws, a.sinks),
		Store:        a.store,
		Presenter:    a.presenter,
		Workspace:    a.ws,
		Sinks:        a.sinks,
		ProjectPath:  cfg.ProjectPath,
		SnapshotPath: cfg.SnapshotPath,
		Terminal:     newShellTerminal(a.cmdOpts.Shell, a.dir, a.out, a.errOut, a.log),
		Debugger:     a.launcher,
		Notifier:     newStderrNotifier(a.errOut),
		Logger:       a.log,
		Redrawn:      a.redrawn,
	}

	if cfg.HistoryDB != "" {
		a.history, err = history.NewStore(cfg.HistoryDB)
		if err != nil {
			return a, fmt.Errorf("failed to open history: %w", err)
		}
		sessionCfg.History = a.history
	}

	a.session = session.New(sessionCfg)
	return a, nil
}

// sessionRedrawn sets the callback run after the session redraws the
// active document in the background.
func (a *app) sessionRedrawn(fn func(doc workspace.Document)) {
	a.mu.Lock()
	a.onRedraw = fn
	a.mu.Unlock()
}

func (a *app) redrawn(doc workspace.Document) {
	a.mu.Lock()
	fn := a.onRedraw
	a.mu.Unlock()
	if fn != nil {
		fn(doc)
	}
}

// captured reports whether runs of framework write their results to a sink.
func (a *app) captured(framework models.Framework) bool {
	switch framework {
	case models.FrameworkRSpec:
		return a.cmdOpts.RSpecCapture
	case models.FrameworkMinitest:
		return a.cmdOpts.MinitestCapture
	default:
		return false
	}
}

// document returns the document at path, resolved against the working
// directory.
func (a *app) document(path string) (workspace.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	doc, ok := a.ws.Document(abs)
	if !ok {
		return nil, fmt.Errorf("cannot read %s", abs)
	}
	return doc, nil
}

// annotate draws the results for doc and prints the annotated file.
func (a *app) annotate(doc workspace.Document) error {
	a.session.Update(doc)
	if a.renderer.Empty() {
		fmt.Fprintf(a.out, "No results for %s\n", doc.Path())
		return nil
	}
	return a.renderer.Render(a.out, doc)
}

func (a *app) close() error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close())
	} else if a.sinks != nil {
		errs = append(errs, a.sinks.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.fileLogger != nil {
		errs = append(errs, a.fileLogger.Close())
	}
	return errors.Join(errs...)
}
