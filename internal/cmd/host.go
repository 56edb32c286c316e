package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/fatih/color"

	"github.com/harrison/specrunner/internal/command"
	"github.com/harrison/specrunner/internal/logger"
)

// shellTerminal runs built command lines in a child shell attached to the
// CLI's output, standing in for an editor terminal.
type shellTerminal struct {
	shell  command.Shell
	dir    string
	stdout io.Writer
	stderr io.Writer
	log    logger.Logger
}

func newShellTerminal(shell command.Shell, dir string, stdout, stderr io.Writer, log logger.Logger) *shellTerminal {
	return &shellTerminal{shell: shell, dir: dir, stdout: stdout, stderr: stderr, log: log}
}

// shellArgv returns the program and arguments that execute line.
func shellArgv(shell command.Shell, line string) []string {
	switch shell {
	case command.ShellPowerShell:
		return []string{"powershell", "-NoProfile", "-Command", line}
	case command.ShellBash:
		return []string{"bash", "-c", line}
	default:
		return []string{"sh", "-c", line}
	}
}

// SendText runs line to completion. Like a terminal it does not treat a
// failing test run as an error; only a shell that cannot start is.
func (t *shellTerminal) SendText(ctx context.Context, line string) error {
	argv := shellArgv(t.shell, line)
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = t.dir
	c.Stdout = t.stdout
	c.Stderr = t.stderr

	t.log.LogDebug(fmt.Sprintf("Running: %s", line))

	err := c.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		t.log.LogDebug(fmt.Sprintf("Runner exited with status %d", exitErr.ExitCode()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	return nil
}

// launchPrinter hands launch configurations to the user as JSON, ready to
// paste into an editor's debug configuration.
type launchPrinter struct {
	w        io.Writer
	launches int
}

func newLaunchPrinter(w io.Writer) *launchPrinter {
	return &launchPrinter{w: w}
}

func (p *launchPrinter) StartDebugging(_ context.Context, launch *command.LaunchConfig) error {
	data, err := json.MarshalIndent(launch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal launch configuration: %w", err)
	}
	if _, err := fmt.Fprintf(p.w, "%s\n", data); err != nil {
		return err
	}
	p.launches++
	return nil
}

// stderrNotifier prints user-facing errors.
type stderrNotifier struct {
	w   io.Writer
	red *color.Color
}

func newStderrNotifier(w io.Writer) *stderrNotifier {
	return &stderrNotifier{w: w, red: color.New(color.FgRed, color.Bold)}
}

func (n *stderrNotifier) ShowError(message string) {
	n.red.Fprint(n.w, "specrunner: ")
	fmt.Fprintln(n.w, message)
}
