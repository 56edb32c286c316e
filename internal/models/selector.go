package models

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// SelectorAll is the selector token written for whole-file runs.
const SelectorAll = "ALL"

var selectorLine = regexp.MustCompile(`^(\d+)\s?(true)?$`)

// Selector is the line-selection header written ahead of captured Minitest
// output so the interpreter knows what was asked for.
type Selector struct {
	All    bool  // Whole file run
	Line   int   // Single target line, 0 if none
	Inline bool  // Line came from an inline affordance and is a test start
	Lines  []int // Child lines of a context run
}

// SelectorFor returns the selector describing target.
func SelectorFor(target Target) Selector {
	switch {
	case target.IsContextRun():
		return Selector{Lines: append([]int(nil), target.ContextChildLines...)}
	case target.Line > 0:
		return Selector{Line: target.Line, Inline: target.Inline}
	default:
		return Selector{All: true}
	}
}

// String renders the selector token: ALL, a bare line optionally followed
// by " true", or a JSON array of lines.
func (s Selector) String() string {
	switch {
	case s.All:
		return SelectorAll
	case s.Line > 0 && s.Inline:
		return strconv.Itoa(s.Line) + " true"
	case s.Line > 0:
		return strconv.Itoa(s.Line)
	case len(s.Lines) > 0:
		data, _ := json.Marshal(s.Lines)
		return string(data)
	default:
		return ""
	}
}

// ParseSelector reads a selector token. Unrecognised tokens yield the zero
// Selector, which targets neither the whole file nor a line.
func ParseSelector(token string) Selector {
	token = strings.TrimSpace(token)
	if token == SelectorAll {
		return Selector{All: true}
	}

	if m := selectorLine.FindStringSubmatch(token); m != nil {
		line, err := strconv.Atoi(m[1])
		if err == nil && line > 0 {
			return Selector{Line: line, Inline: m[2] != ""}
		}
	}

	var lines []int
	if strings.HasPrefix(token, "[") && json.Unmarshal([]byte(token), &lines) == nil {
		return Selector{Lines: lines}
	}
	return Selector{}
}
