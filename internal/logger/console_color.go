package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// colorScheme defines consistent colors for result counts.
// Green: passed
// Red: failed
// Yellow: pending
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	muted   *color.Color
}

// newColorScheme creates the standard color scheme.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		muted:   color.New(color.FgHiBlack),
	}
}

// colorLevel colors a level tag for console output.
func colorLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// formatColorizedCounts is formatCounts with zero counts muted and non-zero
// failures and pendings highlighted.
func formatColorizedCounts(passed, failed, pending int, scheme *colorScheme) string {
	pick := func(n int, c *color.Color) *color.Color {
		if n == 0 {
			return scheme.muted
		}
		return c
	}

	return fmt.Sprintf("%s, %s, %s",
		pick(passed, scheme.success).Sprint("passed"),
		pick(failed, scheme.fail).Sprintf("%d failed", failed),
		pick(pending, scheme.warn).Sprintf("%d pending", pending),
	)
}
