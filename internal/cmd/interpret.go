package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/models"
)

// NewInterpretCommand creates the interpret command
func NewInterpretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret <output-file>",
		Short: "Record results from saved runner output",
		Long: `Read output saved from an earlier run, for example on CI, and record its
results as if the run had been started here.

RSpec output must be the JSON formatter's (rspec -f j --out results.json).
Minitest output is the plain text report; pass --file (and --selector when
only part of the file ran) unless the output already starts with those two
header lines.

Examples:
  specrunner interpret tmp/rspec.json
  specrunner interpret tmp/minitest.log --file test/models/user_test.rb`,
		Args: cobra.ExactArgs(1),
		RunE: runInterpret,
	}

	cmd.Flags().String("framework", "", "rspec or minitest (default: detected from the output)")
	cmd.Flags().String("file", "", "Minitest: the test file the output belongs to")
	cmd.Flags().String("selector", "ALL", "Minitest: which tests ran (ALL, a line, or [l1,l2,...])")

	return cmd
}

func runInterpret(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read runner output: %w", err)
	}

	frameworkFlag, _ := cmd.Flags().GetString("framework")
	framework, err := outputFramework(frameworkFlag, raw)
	if err != nil {
		return err
	}

	if file, _ := cmd.Flags().GetString("file"); file != "" && framework == models.FrameworkMinitest {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		selector, _ := cmd.Flags().GetString("selector")
		raw = append([]byte(abs+"\n"+selector+"\n"), raw...)
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	sink, err := a.sinks.Path(framework)
	if err != nil {
		return err
	}
	if err := os.WriteFile(sink, raw, 0644); err != nil {
		return fmt.Errorf("failed to write capture sink: %w", err)
	}

	before := a.store.Snapshot()
	if err := a.session.HandleSinkWrite(cmd.Context(), sink); err != nil {
		return err
	}

	if changedFiles(before, a.store.Snapshot()) == 0 {
		return fmt.Errorf("no results found in %s", args[0])
	}
	return nil
}

// outputFramework picks the framework from the flag or the output itself.
func outputFramework(flag string, raw []byte) (models.Framework, error) {
	switch strings.ToLower(flag) {
	case "rspec":
		return models.FrameworkRSpec, nil
	case "minitest":
		return models.FrameworkMinitest, nil
	case "":
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			return models.FrameworkRSpec, nil
		}
		return models.FrameworkMinitest, nil
	default:
		return models.FrameworkUnknown, fmt.Errorf("unknown framework %q (valid: rspec, minitest)", flag)
	}
}

// changedFiles counts files whose current run differs between snapshots.
func changedFiles(before, after models.TestResults) int {
	changed := 0
	for file, set := range after {
		prev, ok := before[file]
		if !ok || prev.CurrentRunID != set.CurrentRunID {
			changed++
		}
	}
	return changed
}
