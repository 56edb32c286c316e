// Package command turns a test target into the terminal command line or
// debugger launch configuration that runs it, and arranges for the runner's
// output to be captured to a sink file the interpreters read back.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// ErrUnknownDebugger is returned when the configured debugger is not supported.
var ErrUnknownDebugger = errors.New("unknown debugger")

// Debugger names a debug adapter back-end.
type Debugger string

const (
	DebuggerRdbg    Debugger = "rdbg"
	DebuggerRubyLSP Debugger = "ruby_lsp"
)

// Known reports whether d is a supported back-end.
func (d Debugger) Known() bool {
	return d == DebuggerRdbg || d == DebuggerRubyLSP
}

// RSpec visible-terminal formats.
const (
	FormatProgress      = "p"
	FormatDocumentation = "d"
)

// SinkLocator resolves the capture sink for a framework, creating it on first use.
type SinkLocator interface {
	Path(framework models.Framework) (string, error)
}

// Options carries everything the builder reads from configuration.
type Options struct {
	RSpecCommand    string
	MinitestCommand string

	RSpecEnv      map[string]string
	RSpecDebugEnv map[string]string
	MinitestEnv   map[string]string

	RSpecFormat string
	Shell       Shell
	Debugger    Debugger

	// ChangeDirectory runs every command from the project root.
	ChangeDirectory bool
	// ProjectPath overrides the workspace root when non-empty.
	ProjectPath string

	// Capture toggles writing results to the sink, per framework.
	RSpecCapture    bool
	MinitestCapture bool

	RewriteTestPaths []RemapRule
}

// Executable is what a build produces: a command line for the terminal, or
// a launch configuration for the debugger.
type Executable struct {
	Framework models.Framework
	Command   string
	Launch    *LaunchConfig
}

// LaunchConfig is a debug adapter launch request. Field presence depends on
// the back-end: rdbg takes command/script/args, ruby_lsp takes program.
type LaunchConfig struct {
	Type          string            `json:"type"`
	Name          string            `json:"name"`
	Request       string            `json:"request"`
	Command       string            `json:"command,omitempty"`
	Script        string            `json:"script,omitempty"`
	Program       string            `json:"program,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Args          []string          `json:"args,omitempty"`
	AskParameters *bool             `json:"askParameters,omitempty"`
	UseTerminal   *bool             `json:"useTerminal,omitempty"`
	Cwd           string            `json:"cwd,omitempty"`
}

// Builder builds runner invocations for test targets.
type Builder struct {
	opts  Options
	ws    workspace.Workspace
	sinks SinkLocator
}

// NewBuilder creates a Builder. ws resolves the project root when
// opts.ProjectPath is empty.
func NewBuilder(opts Options, ws workspace.Workspace, sinks SinkLocator) *Builder {
	if opts.Shell == "" {
		opts.Shell = DefaultShell()
	}
	if opts.RSpecFormat == "" {
		opts.RSpecFormat = FormatProgress
	}
	return &Builder{opts: opts, ws: ws, sinks: sinks}
}

// ProjectRoot returns the configured project path or the workspace root.
// It fails with workspace.ErrNoWorkspace when neither is available.
func (b *Builder) ProjectRoot() (string, error) {
	return workspace.ProjectRoot(b.ws, b.opts.ProjectPath)
}

// Build produces the invocation for target in the given mode.
func (b *Builder) Build(target models.Target, mode models.Mode) (*Executable, error) {
	framework := target.Framework()
	if framework == models.FrameworkUnknown {
		return nil, fmt.Errorf("not a test file: %s", target.File)
	}

	file, err := RemapPath(target.File, b.opts.RewriteTestPaths)
	if err != nil {
		return nil, err
	}

	exe := &Executable{Framework: framework}
	switch {
	case mode == models.ModeDebug && framework == models.FrameworkRSpec:
		exe.Launch, err = b.rspecLaunch(target, file)
	case mode == models.ModeDebug:
		exe.Launch, err = b.minitestLaunch(target, file)
	case framework == models.FrameworkRSpec:
		exe.Command, err = b.rspecCommand(target, file)
	default:
		exe.Command, err = b.minitestCommand(target, file)
	}
	if err != nil {
		return nil, err
	}
	return exe, nil
}

func (b *Builder) rspecCommand(target models.Target, file string) (string, error) {
	capture, err := b.rspecCaptureFlag()
	if err != nil {
		return "", err
	}

	failedOnly := ""
	if target.FailedOnly {
		failedOnly = "--only-failures"
	}

	cmd := words(
		b.opts.Shell.EnvPrefix(b.opts.RSpecEnv),
		b.opts.RSpecCommand,
		failedOnly,
		"-f "+b.opts.RSpecFormat,
		capture,
		b.opts.Shell.Quote(withLine(file, target.Line)),
	)
	return b.wrapDirectory(cmd)
}

func (b *Builder) minitestCommand(target models.Target, file string) (string, error) {
	sh := b.opts.Shell
	cmd := words(sh.EnvPrefix(b.opts.MinitestEnv), b.opts.MinitestCommand, b.minitestArgs(target, file))

	if b.opts.MinitestCapture {
		sink, err := b.sinks.Path(models.FrameworkMinitest)
		if err != nil {
			return "", fmt.Errorf("minitest capture sink: %w", err)
		}
		header := sh.Join(
			fmt.Sprintf("echo %s > %s", sh.Quote(target.File), sh.Quote(sink)),
			fmt.Sprintf("echo %s >> %s", sh.Quote(models.SelectorFor(target).String()), sh.Quote(sink)),
		)
		cmd = sh.Join(header, cmd+" | "+sh.Tee(sink))
	}

	return b.wrapDirectory(cmd)
}

// minitestArgs selects tests by line for a single test and by name filter
// for a context, since minitest cannot run a set of line ranges.
func (b *Builder) minitestArgs(target models.Target, file string) string {
	if target.IsContextRun() {
		return b.opts.Shell.Quote(file) + " -- -n " + NameFilter(target.Name)
	}
	return b.opts.Shell.Quote(withLine(file, target.Line))
}

func (b *Builder) rspecLaunch(target models.Target, file string) (*LaunchConfig, error) {
	capture, err := b.rspecCaptureFlag()
	if err != nil {
		return nil, err
	}
	cwd, err := b.launchDirectory()
	if err != nil {
		return nil, err
	}

	script := b.opts.Shell.Quote(withLine(file, target.Line))
	format := "-f " + b.opts.RSpecFormat

	switch b.opts.Debugger {
	case DebuggerRdbg:
		args := []string{format}
		if capture != "" {
			args = append(args, capture)
		}
		return &LaunchConfig{
			Type:          "rdbg",
			Name:          "SpecRdbgDebugger",
			Request:       "launch",
			Command:       b.opts.RSpecCommand,
			Script:        script,
			Env:           mergeEnv(b.opts.RSpecEnv, b.opts.RSpecDebugEnv),
			Args:          args,
			AskParameters: boolPtr(false),
			UseTerminal:   boolPtr(true),
			Cwd:           cwd,
		}, nil
	case DebuggerRubyLSP:
		return &LaunchConfig{
			Type:    "ruby_lsp",
			Name:    "SpecRubyLSPDebugger",
			Request: "launch",
			Program: words(b.opts.RSpecCommand, format, capture, script),
			Env:     mergeEnv(b.opts.RSpecEnv, nil),
			Cwd:     cwd,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDebugger, b.opts.Debugger)
	}
}

func (b *Builder) minitestLaunch(target models.Target, file string) (*LaunchConfig, error) {
	cwd, err := b.launchDirectory()
	if err != nil {
		return nil, err
	}

	args := b.minitestArgs(target, file)

	switch b.opts.Debugger {
	case DebuggerRdbg:
		return &LaunchConfig{
			Type:          "rdbg",
			Name:          "MinitestRdbgDebugger",
			Request:       "launch",
			Command:       b.opts.MinitestCommand,
			Script:        args,
			Env:           mergeEnv(b.opts.MinitestEnv, nil),
			AskParameters: boolPtr(false),
			UseTerminal:   boolPtr(true),
			Cwd:           cwd,
		}, nil
	case DebuggerRubyLSP:
		return &LaunchConfig{
			Type:    "ruby_lsp",
			Name:    "MinitestRubyLSPDebugger",
			Request: "launch",
			Program: words(b.opts.MinitestCommand, args),
			Env:     mergeEnv(b.opts.MinitestEnv, nil),
			Cwd:     cwd,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDebugger, b.opts.Debugger)
	}
}

func (b *Builder) rspecCaptureFlag() (string, error) {
	if !b.opts.RSpecCapture {
		return "", nil
	}
	sink, err := b.sinks.Path(models.FrameworkRSpec)
	if err != nil {
		return "", fmt.Errorf("rspec capture sink: %w", err)
	}
	return "-f j --out " + b.opts.Shell.Quote(sink), nil
}

func (b *Builder) wrapDirectory(cmd string) (string, error) {
	if !b.opts.ChangeDirectory {
		return cmd, nil
	}
	root, err := b.ProjectRoot()
	if err != nil {
		return "", err
	}
	return b.opts.Shell.InDirectory(root, cmd), nil
}

func (b *Builder) launchDirectory() (string, error) {
	if !b.opts.ChangeDirectory {
		return "", nil
	}
	return b.ProjectRoot()
}

// NameFilter builds the minitest -n argument matching every test nested
// under the named class or context.
func NameFilter(name string) string {
	pattern := "/(^|::)" + regexp.QuoteMeta(name) + "(::|#)/"
	return `"` + strings.ReplaceAll(pattern, `"`, `\"`) + `"`
}

func withLine(file string, line int) string {
	if line <= 0 {
		return file
	}
	return file + ":" + strconv.Itoa(line)
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func boolPtr(v bool) *bool {
	return &v
}
