package parser

import (
	"regexp"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// specExample matches every RSpec line that can be run by line number:
// examples (it/example), contexts, shared example inclusions, describes and
// single-line brace examples. Trailing comments are allowed.
var specExample = regexp.MustCompile(`(?:` +
	`(?:^\s*(?:RSpec\.)?(?:it|context|example)\(?\s*(?:'(?P<sq>.*)'|"(?P<dq>.*)")?\)?\s*(?:,\s*[\w:'"]+\s*(?:=>)?\s*['":\w]+)?\s*(?:do|\{))` +
	`|(?:^\s*(?:it_behaves_like|include_examples)\s*(?:'.*'|".*")\s*(?:do|\{)?)` +
	`|(?:^\s*(?:RSpec\.)?describe\(?\s*(?:(?P<class>[\w:.]+)|'(?P<dsq>.*)'|"(?P<ddq>.*)")\)?\s*(?:,\s*:?['"\w]+\s*(?:=>|:)\s*['"\w:]+\s*)*\s*(?:do|\{))` +
	`|(?:^\s*(?:it|example)\s*\{(?P<single>.*)\})` +
	`)\s*(?:#.*)?$`)

// specGroup matches the group openings among specExample matches.
var specGroup = regexp.MustCompile(`^\s*(?:RSpec\.)?(?:describe|context)\b`)

// SpecParser finds RSpec example and group regions.
type SpecParser struct{}

// NewSpecParser creates a SpecParser.
func NewSpecParser() *SpecParser {
	return &SpecParser{}
}

// Parse returns every runnable line as a test region. describe and context
// lines are additionally reported as context regions with their nested
// example lines.
func (p *SpecParser) Parse(text string) models.Regions {
	lines := workspace.SplitLines(text)
	regions := models.Regions{}

	for i, line := range lines {
		match := specExample.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		name := firstNonEmpty(specExample, match, "sq", "dq", "dsq", "ddq", "class")
		regions.Tests = append(regions.Tests, lineRegion(i, name))

		if specGroup.MatchString(line) {
			ctx := lineRegion(i, name)
			ctx.ChildLines = childTestLines(lines, i, p.isExample)
			regions.Contexts = append(regions.Contexts, ctx)
		}
	}

	return regions
}

func (p *SpecParser) isExample(line string) bool {
	return specExample.MatchString(line) && !specGroup.MatchString(line)
}
