// Package workspace models the host editor's view of files: documents with
// 1-based line access and a workspace that knows its root folder, which
// documents are open, and how to find a file by name.
package workspace

import (
	"os"
	"regexp"
	"strings"
)

var lineSplitter = regexp.MustCompile(`\r?\n`)

// Document is a read-only view of a text buffer.
type Document interface {
	// Path returns the absolute file path backing the document
	Path() string
	// Text returns the full document text
	Text() string
	// Lines returns the document split on line breaks
	Lines() []string
	// Line returns the text of 1-based line n, or "" when out of range
	Line(n int) string
}

// TextDocument is an immutable in-memory Document.
type TextDocument struct {
	path  string
	text  string
	lines []string
}

// NewTextDocument creates a document for path holding text.
func NewTextDocument(path, text string) *TextDocument {
	return &TextDocument{
		path:  path,
		text:  text,
		lines: SplitLines(text),
	}
}

// ReadDocument loads a document from disk.
func ReadDocument(path string) (*TextDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewTextDocument(path, string(data)), nil
}

// Path returns the document path.
func (d *TextDocument) Path() string { return d.path }

// Text returns the full text.
func (d *TextDocument) Text() string { return d.text }

// Lines returns the lines of the document. Callers must not modify the slice.
func (d *TextDocument) Lines() []string { return d.lines }

// Line returns 1-based line n.
func (d *TextDocument) Line(n int) string {
	if n < 1 || n > len(d.lines) {
		return ""
	}
	return d.lines[n-1]
}

// SplitLines splits text on \n or \r\n.
func SplitLines(text string) []string {
	return lineSplitter.Split(text, -1)
}

// LineCount returns the number of lines in doc.
func LineCount(doc Document) int {
	return len(doc.Lines())
}

// FindLinesContaining returns every 1-based line of doc containing needle.
func FindLinesContaining(doc Document, needle string) []int {
	var found []int
	for i, line := range doc.Lines() {
		if strings.Contains(line, needle) {
			found = append(found, i+1)
		}
	}
	return found
}

// ClosestLine returns the candidate nearest to target. Equidistant
// candidates resolve to the smaller line number.
func ClosestLine(candidates []int, target int) (int, bool) {
	best, found := 0, false
	for _, line := range candidates {
		if !found || closer(line, best, target) {
			best, found = line, true
		}
	}
	return best, found
}

func closer(line, best, target int) bool {
	d, bd := abs(line-target), abs(best-target)
	return d < bd || (d == bd && line < best)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
