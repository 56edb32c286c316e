package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for specrunner
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specrunner",
		Short: "Run RSpec and Minitest tests and annotate files with their results",
		Long: `specrunner runs RSpec examples and Minitest tests from the command line
the way an editor integration would: it builds the runner command for a
file, line or context, captures machine-readable output, and annotates the
test file with passed, failed and pending markers.

Results are kept in .specrunner/results.json so that later invocations
(and a running "specrunner watch") keep showing them, moved along with the
code as the file is edited.

Configuration is loaded from .specrunner/config.yaml if present.
CLI flags override configuration file settings.`,
		Version:      Version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: .specrunner/config.yaml)")
	flags.String("workspace", "", "Workspace folder (default: nearest directory with a Gemfile, .rspec or .specrunner)")
	flags.String("project-path", "", "Project root used by the runner, when it differs from the workspace")
	flags.String("shell", "", "Shell family for built commands: posix, powershell or bash")
	flags.String("debugger", "", "Ruby debugger: rdbg or ruby_lsp")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error")
	flags.String("log-dir", "", "Directory for log files")
	flags.Bool("no-history", false, "Do not record runs in the history database")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewDebugCommand())
	cmd.AddCommand(NewAnnotateCommand())
	cmd.AddCommand(NewRegionsCommand())
	cmd.AddCommand(NewInterpretCommand())
	cmd.AddCommand(NewClearCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewWatchCommand())

	return cmd
}
