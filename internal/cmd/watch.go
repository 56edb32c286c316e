package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/workspace"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Keep a test file annotated while it is edited and run",
		Long: `Print the annotated file, then print it again every time the file is saved
or new results are recorded for it, for example by "specrunner run" in
another terminal. Results follow the code they belong to as it moves.

Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.document(args[0])
	if err != nil {
		return err
	}

	if err := a.watcher.Add(doc.Path()); err != nil {
		return err
	}
	if a.cfg.SnapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.SnapshotPath), 0755); err != nil {
			return err
		}
		if err := a.watcher.Add(a.cfg.SnapshotPath); err != nil {
			return err
		}
	}

	a.sessionRedrawn(func(d workspace.Document) {
		fmt.Fprintln(a.out)
		if err := a.renderer.Render(a.out, d); err != nil {
			a.log.LogError(fmt.Sprintf("Failed to render %s: %v", d.Path(), err))
		}
	})

	if err := a.annotate(doc); err != nil {
		return err
	}
	a.log.LogInfo(fmt.Sprintf("Watching %s (Ctrl-C to stop)", doc.Path()))

	err = a.session.Watch(cmd.Context(), a.watcher)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
