package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/models"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>[:<line>]",
		Short: "Run a test file, a single test or a context",
		Long: `Run the tests in a file with RSpec or Minitest, chosen by file name
(*_spec.rb or *_test.rb), then print the file annotated with the results.

With a line number the test starting on that line is run. A bare line
inside a Minitest test is moved up to the start of that test unless
--inline is given. A line that opens a context (describe, context, class)
runs every test nested in it.

Examples:
  specrunner run spec/models/user_spec.rb
  specrunner run spec/models/user_spec.rb:12
  specrunner run test/models/user_test.rb:8 --inline
  specrunner run spec/models/user_spec.rb --failed   # RSpec --only-failures`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Bool("failed", false, "Re-run only the examples that failed last time (RSpec)")
	cmd.Flags().Bool("inline", false, "Treat the line as the exact test line")
	cmd.Flags().Bool("no-annotate", false, "Do not print the annotated file after the run")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	path, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	failed, _ := cmd.Flags().GetBool("failed")
	inline, _ := cmd.Flags().GetBool("inline")
	noAnnotate, _ := cmd.Flags().GetBool("no-annotate")

	if failed && line > 0 {
		return fmt.Errorf("--failed runs the whole file; drop the line number")
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.document(path)
	if err != nil {
		return err
	}
	if models.DetectFramework(doc.Path()) == models.FrameworkUnknown {
		return fmt.Errorf("not a test file: %s (expected *_spec.rb or *_test.rb)", doc.Path())
	}

	ctx := cmd.Context()
	target := resolveTarget(doc, line, inline)
	a.session.SetActive(doc.Path())
	a.log.LogDebug(fmt.Sprintf("Target: %s", describeTarget(target)))

	if failed {
		err = a.session.RunFailed(ctx, doc.Path())
	} else {
		err = a.session.Run(ctx, target)
	}
	if err != nil {
		return err
	}

	// The shell terminal returns once the runner has exited.
	if err := a.collect(ctx, target.Framework()); err != nil {
		return err
	}

	if noAnnotate {
		return nil
	}
	return a.annotate(doc)
}

// collect interprets whatever the finished run left in the framework's sink.
func (a *app) collect(ctx context.Context, framework models.Framework) error {
	if !a.captured(framework) {
		return nil
	}
	sink, err := a.sinks.Path(framework)
	if err != nil {
		return err
	}
	return a.session.HandleSinkWrite(ctx, sink)
}
