// Package presenter turns the stored results of the active document into
// line decorations grouped by category, each with synthesized hover text.
package presenter

import (
	"sort"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/results"
	"github.com/harrison/specrunner/internal/workspace"
)

// Category is one independently rendered decoration layer.
type Category int

const (
	CategoryPassed Category = iota
	CategoryStalePassed
	CategoryPending
	CategoryStalePending
	CategoryFailed
	CategoryStaleFailed
	CategoryFailedLine
	CategoryStaleFailedLine
	// CategoryRunPending marks every result line while a run is in flight
	CategoryRunPending
)

// Categories lists every category in rendering order.
var Categories = []Category{
	CategoryPassed,
	CategoryStalePassed,
	CategoryPending,
	CategoryStalePending,
	CategoryFailed,
	CategoryStaleFailed,
	CategoryFailedLine,
	CategoryStaleFailedLine,
	CategoryRunPending,
}

// String returns the string representation of the Category
func (c Category) String() string {
	switch c {
	case CategoryPassed:
		return "passed"
	case CategoryStalePassed:
		return "passed_stale"
	case CategoryPending:
		return "pending"
	case CategoryStalePending:
		return "pending_stale"
	case CategoryFailed:
		return "failed"
	case CategoryStaleFailed:
		return "failed_stale"
	case CategoryFailedLine:
		return "failed_line"
	case CategoryStaleFailedLine:
		return "failed_line_stale"
	case CategoryRunPending:
		return "run_pending"
	default:
		return "unknown"
	}
}

// Stale reports whether the category shows results of a superseded run.
func (c Category) Stale() bool {
	switch c {
	case CategoryStalePassed, CategoryStalePending, CategoryStaleFailed, CategoryStaleFailedLine:
		return true
	default:
		return false
	}
}

// Decoration covers columns [StartColumn, EndColumn) of a 1-based line.
type Decoration struct {
	Line        int
	StartColumn int
	EndColumn   int
	Hover       string
}

// DecorationSink receives the full decoration list for one category. An
// empty list clears the category.
type DecorationSink interface {
	SetDecorations(category Category, decorations []Decoration)
}

// ResultSource is the slice of the results store the presenter reads.
type ResultSource interface {
	Results(file string) (*models.FileResultSet, bool)
	Reconcile(doc workspace.Document) results.Report
}

// Options toggles decoration per framework.
type Options struct {
	DecorateRSpec    bool
	DecorateMinitest bool
	StaleRSpec       bool
	StaleMinitest    bool
}

// DefaultOptions enables everything.
func DefaultOptions() Options {
	return Options{DecorateRSpec: true, DecorateMinitest: true, StaleRSpec: true, StaleMinitest: true}
}

func (o Options) decorate(framework models.Framework) bool {
	switch framework {
	case models.FrameworkRSpec:
		return o.DecorateRSpec
	case models.FrameworkMinitest:
		return o.DecorateMinitest
	default:
		return false
	}
}

func (o Options) stale(framework models.Framework) bool {
	switch framework {
	case models.FrameworkRSpec:
		return o.StaleRSpec
	case models.FrameworkMinitest:
		return o.StaleMinitest
	default:
		return false
	}
}

// Presenter renders one document at a time.
type Presenter struct {
	source ResultSource
	sink   DecorationSink
	opts   Options
}

// New creates a Presenter reading from source and drawing into sink.
func New(source ResultSource, sink DecorationSink, opts Options) *Presenter {
	return &Presenter{source: source, sink: sink, opts: opts}
}

// Options returns the active toggles.
func (p *Presenter) Options() Options {
	return p.opts
}

// SetOptions replaces the toggles; the next Update applies them.
func (p *Presenter) SetOptions(opts Options) {
	p.opts = opts
}

// Update reconciles the results of doc against its current text and
// redraws every category. It reports whether anything was drawn; documents
// that are not test files, have decoration disabled or have no results are
// left untouched.
func (p *Presenter) Update(doc workspace.Document) bool {
	if doc == nil {
		return false
	}

	framework := models.DetectFramework(doc.Path())
	if !p.opts.decorate(framework) {
		return false
	}

	if _, ok := p.source.Results(doc.Path()); !ok {
		return false
	}

	p.source.Reconcile(doc)
	set, ok := p.source.Results(doc.Path())
	if !ok {
		return false
	}

	showStale := p.opts.stale(framework)
	layers := Decorate(set)
	for _, category := range Categories {
		if category.Stale() && !showStale {
			p.sink.SetDecorations(category, nil)
			continue
		}
		p.sink.SetDecorations(category, layers[category])
	}
	return true
}

// Clear empties every category.
func (p *Presenter) Clear() {
	for _, category := range Categories {
		p.sink.SetDecorations(category, nil)
	}
}

// Decorate groups the results of set into decoration layers. While a run
// is pending only CategoryRunPending is populated.
func Decorate(set *models.FileResultSet) map[Category][]Decoration {
	layers := make(map[Category][]Decoration)
	if set == nil {
		return layers
	}

	for _, result := range sortedResults(set) {
		if set.RunPending {
			layers[CategoryRunPending] = append(layers[CategoryRunPending], gutter(result, runPendingHover()))
			continue
		}

		stale := set.IsStale(result)
		switch result.Status {
		case models.StatusPassed:
			category := pick(stale, CategoryPassed, CategoryStalePassed)
			layers[category] = append(layers[category], gutter(result, passedHover(result, stale)))
		case models.StatusPending:
			category := pick(stale, CategoryPending, CategoryStalePending)
			layers[category] = append(layers[category], gutter(result, pendingHover(result, stale)))
		case models.StatusFailed:
			category := pick(stale, CategoryFailed, CategoryStaleFailed)
			layers[category] = append(layers[category], gutter(result, failedHover(result, stale)))

			if result.Exception != nil && result.Exception.Line > 0 {
				line := pick(stale, CategoryFailedLine, CategoryStaleFailedLine)
				layers[line] = append(layers[line], failedLine(result, stale))
			}
		}
	}
	return layers
}

func gutter(result *models.LineResult, hover string) Decoration {
	return Decoration{
		Line:      result.Line,
		EndColumn: len(result.Content),
		Hover:     hover,
	}
}

func failedLine(result *models.LineResult, stale bool) Decoration {
	end := len(result.Exception.Content)
	if end == 0 {
		end = wholeLine
	}
	return Decoration{
		Line:      result.Exception.Line,
		EndColumn: end,
		Hover:     failedLineHover(result.Exception, stale),
	}
}

// wholeLine stands in for the line width when the exception text is unknown.
const wholeLine = 1000

func pick(stale bool, current, superseded Category) Category {
	if stale {
		return superseded
	}
	return current
}

func sortedResults(set *models.FileResultSet) []*models.LineResult {
	sorted := make([]*models.LineResult, 0, len(set.Results))
	for _, result := range set.Results {
		sorted = append(sorted, result)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Line < sorted[j].Line
	})
	return sorted
}
