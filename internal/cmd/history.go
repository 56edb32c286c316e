package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recent runs and their results",
		Long: `Show the most recent dispatched runs and result summaries, newest first,
for one file or for the whole workspace.

Use --prune to delete entries older than a duration (e.g. 720h).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 10, "Maximum number of entries to show")
	cmd.Flags().Duration("prune", 0, "Delete entries older than this duration instead of listing")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, err := workspaceDir(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}
	output := cmd.OutOrStdout()

	if cfg.HistoryDB == "" {
		return fmt.Errorf("run history is disabled (history_db is empty)")
	}
	if _, err := os.Stat(cfg.HistoryDB); os.IsNotExist(err) {
		fmt.Fprintln(output, "No runs recorded yet")
		return nil
	}

	store, err := history.NewStore(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if prune, _ := cmd.Flags().GetDuration("prune"); prune > 0 {
		removed, err := store.Prune(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(output, "Removed %d entries\n", removed)
		return nil
	}

	file := ""
	if len(args) == 1 {
		if file, err = filepath.Abs(args[0]); err != nil {
			return err
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")

	return printHistory(ctx, output, store, file, limit)
}

func printHistory(ctx context.Context, w io.Writer, store *history.Store, file string, limit int) error {
	dispatches, err := store.RecentDispatches(ctx, file, limit)
	if err != nil {
		return err
	}
	summaries, err := store.RecentResults(ctx, file, limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintln(w, "=== Runs ===")
	if len(dispatches) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, d := range dispatches {
		fmt.Fprintf(w, "  %s  %-8s %-5s %s\n", formatTimestamp(d.StartedAt), d.Framework, d.Mode, d.File)
		gray.Fprintf(w, "    %s\n", d.Command)
	}

	fmt.Fprintln(w)
	cyan.Fprintln(w, "=== Results ===")
	if len(summaries) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, r := range summaries {
		fmt.Fprintf(w, "  %s  %s  ", formatTimestamp(r.RecordedAt), r.File)
		green.Fprintf(w, "%d passed", r.Passed)
		fmt.Fprint(w, ", ")
		if r.Failed > 0 {
			red.Fprintf(w, "%d failed", r.Failed)
		} else {
			fmt.Fprintf(w, "%d failed", r.Failed)
		}
		fmt.Fprint(w, ", ")
		if r.Pending > 0 {
			yellow.Fprintf(w, "%d pending", r.Pending)
		} else {
			fmt.Fprintf(w, "%d pending", r.Pending)
		}
		fmt.Fprintln(w)
		if len(r.FailedLines) > 0 {
			lines := make([]string, len(r.FailedLines))
			for i, l := range r.FailedLines {
				lines[i] = fmt.Sprint(l)
			}
			red.Fprintf(w, "    failed lines: %s\n", strings.Join(lines, ", "))
		}
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
