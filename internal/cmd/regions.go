package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/parser"
	"github.com/harrison/specrunner/internal/workspace"
)

// NewRegionsCommand creates the regions command
func NewRegionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regions <file>",
		Short: "List the runnable tests and contexts in a file",
		Long: `List every test and context specrunner recognises in a file, with the
line to pass to "specrunner run <file>:<line>". Contexts list the tests
nested in them.`,
		Args: cobra.ExactArgs(1),
		RunE: runRegions,
	}
}

func runRegions(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if parser.ForFile(path) == nil {
		return fmt.Errorf("not a test file: %s (expected *_spec.rb or *_test.rb)", path)
	}

	doc, err := workspace.ReadDocument(path)
	if err != nil {
		return err
	}

	printRegions(cmd.OutOrStdout(), parser.ParseDocument(doc))
	return nil
}

type regionRow struct {
	line     int
	kind     string
	name     string
	children []int
}

// printRegions lists tests and contexts in line order.
func printRegions(w io.Writer, regions models.Regions) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	rows := make([]regionRow, 0, len(regions.Tests)+len(regions.Contexts))
	for _, r := range regions.Contexts {
		rows = append(rows, regionRow{line: r.StartLine, kind: "context", name: r.Name, children: r.ChildLines})
	}
	for _, r := range regions.Tests {
		rows = append(rows, regionRow{line: r.StartLine, kind: "test", name: r.Name})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].line != rows[j].line {
			return rows[i].line < rows[j].line
		}
		return rows[i].kind == "context" && rows[j].kind != "context"
	})

	if len(rows) == 0 {
		fmt.Fprintln(w, "No tests found")
		return
	}

	for _, row := range rows {
		name := row.name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "L%-5d %-8s %s", row.line, row.kind, name)
		if len(row.children) > 0 {
			lines := make([]string, len(row.children))
			for i, l := range row.children {
				lines[i] = fmt.Sprint(l)
			}
			gray.Fprintf(w, "  [%s]", strings.Join(lines, ", "))
		}
		fmt.Fprintln(w)
	}
	cyan.Fprintf(w, "%d test(s), %d context(s)\n", len(regions.Tests), len(regions.Contexts))
}
