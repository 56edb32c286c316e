package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/workspace"
)

// NewDebugCommand creates the debug command
func NewDebugCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <file>[:<line>]",
		Short: "Print a debugger launch configuration for a test",
		Long: `Print the launch configuration (rdbg or ruby_lsp, see ruby_debugger) that
debugs the given file, test or context, then wait for the debugged run to
write its results and print the annotated file.

Use --no-wait to only print the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: runDebug,
	}

	cmd.Flags().Bool("inline", false, "Treat the line as the exact test line")
	cmd.Flags().Bool("no-wait", false, "Exit after printing the launch configuration")

	return cmd
}

func runDebug(cmd *cobra.Command, args []string) error {
	path, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	inline, _ := cmd.Flags().GetBool("inline")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	a, err := newApp(cmd, !noWait)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.document(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target := resolveTarget(doc, line, inline)
	a.session.SetActive(doc.Path())
	if err := a.session.Debug(ctx, target); err != nil {
		return err
	}
	if noWait || !a.captured(target.Framework()) || a.launcher.launches == 0 {
		return nil
	}

	a.log.LogInfo("Waiting for the debugged run to finish (Ctrl-C to stop)")
	redrawn := make(chan workspace.Document, 1)
	a.sessionRedrawn(func(d workspace.Document) {
		select {
		case redrawn <- d:
		default:
		}
		cancel()
	})

	err = a.session.Watch(ctx, a.watcher)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	select {
	case d := <-redrawn:
		return a.renderer.Render(a.out, d)
	default:
		fmt.Fprintln(a.errOut, "Stopped before results arrived")
		return nil
	}
}
