package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/parser"
	"github.com/harrison/specrunner/internal/workspace"
)

// parseLocation splits "path[:line]".
func parseLocation(arg string) (string, int, error) {
	idx := strings.LastIndex(arg, ":")
	if idx <= 0 || idx == len(arg)-1 {
		return arg, 0, nil
	}

	line, err := strconv.Atoi(arg[idx+1:])
	if err != nil {
		// Not a line suffix; a drive letter or a colon in the file name.
		return arg, 0, nil
	}
	if line < 1 {
		return "", 0, fmt.Errorf("invalid line %d in %q", line, arg)
	}
	return arg[:idx], line, nil
}

// resolveTarget builds the target for line in doc. A context with nested
// tests is run by name; anything else by line.
func resolveTarget(doc workspace.Document, line int, inline bool) models.Target {
	target := models.Target{File: doc.Path(), Line: line, Inline: inline}
	if line <= 0 {
		return target
	}

	regions := parser.ParseDocument(doc)
	if context, ok := regions.ContextAt(line); ok && context.Name != "" && len(context.ChildLines) > 0 {
		target.Name = context.Name
		target.ContextChildLines = context.ChildLines
		return target
	}
	for _, region := range regions.Tests {
		if region.StartLine == line {
			target.Name = region.Name
			break
		}
	}
	return target
}

// describeTarget names a target for log messages.
func describeTarget(target models.Target) string {
	switch {
	case target.IsContextRun():
		return fmt.Sprintf("%s (%d tests in %s)", target.File, len(target.ContextChildLines), target.Name)
	case target.Line > 0:
		return fmt.Sprintf("%s:%d", target.File, target.Line)
	default:
		return target.File
	}
}
