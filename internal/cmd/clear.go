package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewClearCommand creates the clear command
func NewClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [file]",
		Short: "Forget recorded results for a file, or for every file with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClear,
	}

	cmd.Flags().Bool("all", false, "Clear results for every file")

	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) == 1) {
		return fmt.Errorf("pass either a file or --all")
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	var files []string
	if all {
		files = a.store.Files()
	} else {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		files = []string{abs}
	}

	cleared := 0
	for _, file := range files {
		if a.session.Clear(file) {
			cleared++
		}
	}

	fmt.Fprintf(a.out, "Cleared results for %d file(s)\n", cleared)
	return nil
}
