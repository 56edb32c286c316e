package presenter

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/specrunner/internal/workspace"
)

// glyphs in drawing priority order: the first category present on a line
// owns its gutter.
var glyphs = []struct {
	category Category
	symbol   string
	attrs    []color.Attribute
}{
	{CategoryRunPending, "…", []color.Attribute{color.FgCyan}},
	{CategoryFailed, "✗", []color.Attribute{color.FgRed, color.Bold}},
	{CategoryStaleFailed, "✗", []color.Attribute{color.FgRed, color.Faint}},
	{CategoryPending, "○", []color.Attribute{color.FgYellow}},
	{CategoryStalePending, "○", []color.Attribute{color.FgYellow, color.Faint}},
	{CategoryPassed, "✓", []color.Attribute{color.FgGreen}},
	{CategoryStalePassed, "✓", []color.Attribute{color.FgGreen, color.Faint}},
}

// ColorEnabled reports whether w is a terminal that accepts colour codes.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Renderer is a DecorationSink that draws the active document with a
// status gutter, for hosts without a graphical editor.
type Renderer struct {
	mu     sync.Mutex
	layers map[Category][]Decoration
	color  bool
}

// NewRenderer creates an empty Renderer.
func NewRenderer(colorOutput bool) *Renderer {
	return &Renderer{
		layers: make(map[Category][]Decoration),
		color:  colorOutput,
	}
}

// SetDecorations implements DecorationSink.
func (r *Renderer) SetDecorations(category Category, decorations []Decoration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(decorations) == 0 {
		delete(r.layers, category)
		return
	}
	r.layers[category] = append([]Decoration(nil), decorations...)
}

// Decorations returns a copy of the decorations held for category.
func (r *Renderer) Decorations(category Category) []Decoration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Decoration(nil), r.layers[category]...)
}

// Empty reports whether no category holds decorations.
func (r *Renderer) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.layers) == 0
}

func (r *Renderer) paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

// Render writes doc with a gutter column and, below it, the hover text of
// every decoration.
func (r *Renderer) Render(w io.Writer, doc workspace.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	gutters := make(map[int]string)
	for i := len(glyphs) - 1; i >= 0; i-- {
		glyph := glyphs[i]
		for _, decoration := range r.layers[glyph.category] {
			gutters[decoration.Line] = r.paint(glyph.symbol, glyph.attrs...)
		}
	}

	highlighted := make(map[int][]color.Attribute)
	for _, decoration := range r.layers[CategoryStaleFailedLine] {
		highlighted[decoration.Line] = []color.Attribute{color.FgRed, color.Faint}
	}
	for _, decoration := range r.layers[CategoryFailedLine] {
		highlighted[decoration.Line] = []color.Attribute{color.FgRed, color.Underline}
	}

	width := len(fmt.Sprint(workspace.LineCount(doc)))
	for i, text := range doc.Lines() {
		line := i + 1
		gutter, ok := gutters[line]
		if !ok {
			gutter = " "
		}
		if attrs, ok := highlighted[line]; ok {
			text = r.paint(text, attrs...)
		}
		if _, err := fmt.Fprintf(w, "%*d %s │ %s\n", width, line, gutter, text); err != nil {
			return err
		}
	}

	notes := r.notes()
	if len(notes) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, note := range notes {
		if _, err := fmt.Fprintln(w, note); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) notes() []string {
	type note struct {
		line     int
		category Category
		text     string
	}

	var collected []note
	for category, decorations := range r.layers {
		for _, decoration := range decorations {
			if decoration.Hover == "" {
				continue
			}
			collected = append(collected, note{decoration.Line, category, PlainText(decoration.Hover)})
		}
	}
	sort.Slice(collected, func(i, j int) bool {
		if collected[i].line != collected[j].line {
			return collected[i].line < collected[j].line
		}
		return collected[i].category < collected[j].category
	})

	notes := make([]string, 0, len(collected))
	for _, n := range collected {
		body := strings.ReplaceAll(n.text, "\n", "\n      ")
		notes = append(notes, fmt.Sprintf("L%-4d %s", n.line, body))
	}
	return notes
}
