// Package parser discovers test and context regions in Ruby test files by
// matching lexical line patterns. It does not parse Ruby: a line either looks
// like the opening of an example/test or group, or it is skipped.
package parser

import (
	"regexp"
	"strings"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// Parser is the interface that all region parsers must implement
type Parser interface {
	// Parse scans document text and returns its test and context regions.
	// Parse is pure: identical text always yields identical regions.
	Parse(text string) models.Regions
}

// ForFile returns the parser matching the naming convention of path, or nil
// when the file is not a recognised test file.
func ForFile(path string) Parser {
	switch models.DetectFramework(path) {
	case models.FrameworkRSpec:
		return NewSpecParser()
	case models.FrameworkMinitest:
		return NewMinitestParser()
	default:
		return nil
	}
}

// ParseDocument is a convenience wrapper parsing doc with the parser chosen
// from its path. Unknown files yield empty regions.
func ParseDocument(doc workspace.Document) models.Regions {
	p := ForFile(doc.Path())
	if p == nil {
		return models.Regions{}
	}
	return p.Parse(doc.Text())
}

var leadingIndent = regexp.MustCompile(`^[ \t]*`)

// childTestLines scans forward from the context at lines[contextIdx] while
// subsequent lines are blank or indented deeper than the context, and
// returns the 1-based numbers of lines that match isTest. The first non-blank
// line at or below the context's indentation ends the scan.
func childTestLines(lines []string, contextIdx int, isTest func(string) bool) []int {
	indent := leadingIndent.FindString(lines[contextIdx])

	var children []int
	for i := contextIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) != "" && !indentedDeeper(line, indent) {
			break
		}
		if isTest(line) {
			children = append(children, i+1)
		}
	}
	return children
}

// indentedDeeper reports whether line starts with indent followed by more
// whitespace and then content.
func indentedDeeper(line, indent string) bool {
	if !strings.HasPrefix(line, indent) {
		return false
	}
	rest := line[len(indent):]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return false
	}
	return strings.TrimSpace(rest) != ""
}

// firstNonEmpty returns the first non-empty named submatch.
func firstNonEmpty(re *regexp.Regexp, match []string, names ...string) string {
	for _, name := range names {
		idx := re.SubexpIndex(name)
		if idx >= 0 && idx < len(match) && match[idx] != "" {
			return match[idx]
		}
	}
	return ""
}

// lineRegion builds a single-line region at 0-based index idx.
func lineRegion(idx int, name string) models.TestRegion {
	return models.TestRegion{
		StartLine: idx + 1,
		EndLine:   idx + 1,
		Name:      name,
	}
}
