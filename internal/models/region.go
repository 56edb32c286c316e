package models

// TestRegion is a line span found by lexical pattern matching. Lines are
// 1-based. Regions are produced fresh on every parse and never mutated.
type TestRegion struct {
	StartLine int    // First line of the region
	EndLine   int    // Last line of the region (same as StartLine for line regions)
	Name      string // Optional title with surrounding quotes removed

	// ChildLines holds the start lines of tests nested beneath a context
	// region at greater indentation. Empty for test regions.
	ChildLines []int
}

// Regions is the result of parsing one document.
type Regions struct {
	Tests    []TestRegion
	Contexts []TestRegion
}

// TestLines returns the start line of every test region in document order.
func (r Regions) TestLines() []int {
	lines := make([]int, 0, len(r.Tests))
	for _, region := range r.Tests {
		lines = append(lines, region.StartLine)
	}
	return lines
}

// NearestTestLineAtOrBefore returns the closest test start line that is <= line.
// The second return value is false when no test starts at or above line.
func (r Regions) NearestTestLineAtOrBefore(line int) (int, bool) {
	best, found := 0, false
	for _, region := range r.Tests {
		if region.StartLine <= line && region.StartLine >= best {
			best, found = region.StartLine, true
		}
	}
	return best, found
}

// ContextAt returns the context region starting at line, if any.
func (r Regions) ContextAt(line int) (TestRegion, bool) {
	for _, region := range r.Contexts {
		if region.StartLine == line {
			return region, true
		}
	}
	return TestRegion{}, false
}
