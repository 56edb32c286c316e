// Package interpreter turns captured test runner output into per-line
// results. There is one variant per framework: RSpec writes a JSON document,
// Minitest writes free text behind a two-line header.
package interpreter

import (
	"errors"
	"strconv"
	"time"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// ErrUnreadableOutput marks sink contents that are not (yet) a complete
// result payload. It is expected while the runner is still writing.
var ErrUnreadableOutput = errors.New("output did not contain readable results")

// Interpreter converts one snapshot of a capture sink into results.
type Interpreter interface {
	// Framework returns the framework whose output this interpreter reads
	Framework() models.Framework
	// Interpret returns the results found in raw, all stamped with runID.
	// A nil return means the output was not readable; it is never an error.
	Interpret(raw []byte, runID string) models.TestResults
}

// Logger is the subset of logging used while interpreting output.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogError(message string)
}

// New returns the interpreter for framework, or nil if there is none.
func New(framework models.Framework, ws workspace.Workspace, projectPath string, logger Logger) Interpreter {
	switch framework {
	case models.FrameworkRSpec:
		return NewRSpec(ws, projectPath, logger)
	case models.FrameworkMinitest:
		return NewMinitest(ws, projectPath, logger)
	default:
		return nil
	}
}

// unknownAnchorPrefix starts anchors recorded when the source line could not
// be read. No document line starts with it, so such results never anchor.
const unknownAnchorPrefix = "\x00unresolved:"

// contentAt returns the anchor for line in doc.
func contentAt(doc workspace.Document, line int) string {
	if doc != nil {
		if text := doc.Line(line); text != "" {
			return text
		}
	}
	return unknownAnchorPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func lookupDocument(ws workspace.Workspace, path string) workspace.Document {
	if ws == nil {
		return nil
	}
	doc, ok := ws.Document(path)
	if !ok {
		return nil
	}
	return doc
}

type noopLogger struct{}

func (noopLogger) LogDebug(string) {}
func (noopLogger) LogInfo(string)  {}
func (noopLogger) LogError(string) {}

func orNoop(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return logger
}
