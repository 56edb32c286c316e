package cmd

import (
	"github.com/spf13/cobra"
)

// NewAnnotateCommand creates the annotate command
func NewAnnotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <file>",
		Short: "Print a test file annotated with its latest results",
		Long: `Print a test file with a gutter marker on every line that has a result:
passed, failed, pending, or running. Results from an earlier run than the
latest one are shown faint. Failure messages are listed under the file.

Results recorded before the file was edited are first moved to the line
their code moved to, or dropped when that code is gone.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnnotate,
	}
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.document(args[0])
	if err != nil {
		return err
	}
	return a.annotate(doc)
}
