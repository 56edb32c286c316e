package results

import (
	"sort"
	"strconv"
	"strings"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// Report summarises one reconciliation pass.
type Report struct {
	Moved             int
	Dropped           int
	ExceptionsMoved   int
	ExceptionsDropped int
}

// Changed reports whether the pass altered the set.
func (r Report) Changed() bool {
	return r.Moved+r.Dropped+r.ExceptionsMoved+r.ExceptionsDropped > 0
}

func (r Report) String() string {
	return "moved=" + strconv.Itoa(r.Moved) +
		" dropped=" + strconv.Itoa(r.Dropped) +
		" exceptions_moved=" + strconv.Itoa(r.ExceptionsMoved) +
		" exceptions_dropped=" + strconv.Itoa(r.ExceptionsDropped)
}

// Reconcile re-anchors the results in set against the live text of doc.
//
// A result whose stored content is no longer a prefix of its line is
// relocated to the line whose trimmed text equals the trimmed content,
// choosing the candidate closest to the old line (the smaller line on a
// tie), or dropped when no line matches. A relocated result never displaces
// one that still sits on its own line. Exception anchors are handled the
// same way on their own; an exception that cannot be relocated loses its
// location but the result keeps it.
func Reconcile(set *models.FileResultSet, doc workspace.Document) Report {
	var report Report
	if set == nil || doc == nil {
		return report
	}

	index := indexLines(doc)

	var staged []*models.LineResult
	for _, key := range sortedKeys(set) {
		result := set.Results[key]
		if anchored(doc, result.Line, result.Content) {
			continue
		}
		delete(set.Results, key)
		staged = append(staged, result)
	}

	sort.SliceStable(staged, func(i, j int) bool {
		return staged[i].Line < staged[j].Line
	})

	for _, result := range staged {
		line, ok := relocate(index, result.Content, result.Line)
		if !ok {
			report.Dropped++
			continue
		}
		// A result already anchored on the line keeps it; the mover is dropped.
		if _, taken := set.Results[models.LineKey(line)]; taken {
			report.Dropped++
			continue
		}
		result.Line = line
		result.Content = doc.Line(line)
		set.Put(result)
		report.Moved++
	}

	for _, key := range sortedKeys(set) {
		exception := set.Results[key].Exception
		if !exception.HasAnchor() || anchored(doc, exception.Line, exception.Content) {
			continue
		}
		line, ok := relocate(index, exception.Content, exception.Line)
		if !ok {
			exception.Line = 0
			exception.Content = ""
			report.ExceptionsDropped++
			continue
		}
		exception.Line = line
		exception.Content = doc.Line(line)
		report.ExceptionsMoved++
	}

	return report
}

// anchored reports whether line of doc still starts with content.
func anchored(doc workspace.Document, line int, content string) bool {
	if line < 1 || line > workspace.LineCount(doc) {
		return false
	}
	return strings.HasPrefix(doc.Line(line), content)
}

// indexLines maps trimmed line text to the lines carrying it, top to bottom.
func indexLines(doc workspace.Document) map[string][]int {
	index := make(map[string][]int)
	for i, text := range doc.Lines() {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		index[trimmed] = append(index[trimmed], i+1)
	}
	return index
}

func relocate(index map[string][]int, content string, from int) (int, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0, false
	}
	return workspace.ClosestLine(index[trimmed], from)
}

func sortedKeys(set *models.FileResultSet) []string {
	keys := make([]string, 0, len(set.Results))
	for key := range set.Results {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := set.Results[keys[i]].Line, set.Results[keys[j]].Line
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
	return keys
}
