package parser

import (
	"regexp"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// minitestTest matches spec-style (it/should with a quoted title) and
// xUnit-style (def test_*) test openings.
var minitestTest = regexp.MustCompile(`(?:` +
	`(?:^\s*(?:it|should)\(?\s*(?:'(?P<sq>.*)'|"(?P<dq>.*)")\)?\s*(?:do|\{))` +
	`|(?:^\s*def\s*(?P<def>test_\w+)(?:\(\))?\s*)` +
	`)\s*(?:#.*)?$`)

// minitestContext matches class definitions and context/describe blocks.
var minitestContext = regexp.MustCompile(`^\s*(?:` +
	`class\s+(?P<class>\w+).*` +
	`|(?:context|describe)\(?\s*(?:'(?P<sq>.*)'|"(?P<dq>.*)")\s*\)?\s*(?:do|\{)` +
	`)`)

// MinitestParser finds Minitest test and context regions.
type MinitestParser struct{}

// NewMinitestParser creates a MinitestParser.
func NewMinitestParser() *MinitestParser {
	return &MinitestParser{}
}

// Parse returns test regions and context regions. Each context carries the
// start lines of the tests nested beneath it; nested contexts are reported
// independently, so a test line can belong to several contexts.
func (p *MinitestParser) Parse(text string) models.Regions {
	lines := workspace.SplitLines(text)
	regions := models.Regions{}

	for i, line := range lines {
		if match := minitestTest.FindStringSubmatch(line); match != nil {
			name := firstNonEmpty(minitestTest, match, "sq", "dq", "def")
			regions.Tests = append(regions.Tests, lineRegion(i, name))
		}

		if match := minitestContext.FindStringSubmatch(line); match != nil {
			ctx := lineRegion(i, firstNonEmpty(minitestContext, match, "class", "sq", "dq"))
			ctx.ChildLines = childTestLines(lines, i, minitestTest.MatchString)
			regions.Contexts = append(regions.Contexts, ctx)
		}
	}

	return regions
}
