package interpreter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/workspace"
)

// rspecOutput is the document written by `rspec -f j`. Required fields are
// pointers so decode can tell missing from zero.
type rspecOutput struct {
	Version     *string         `json:"version"`
	Seed        int64           `json:"seed"`
	Messages    []string        `json:"messages"`
	Examples    *[]rspecExample `json:"examples"`
	Summary     *rspecSummary   `json:"summary"`
	SummaryLine string          `json:"summary_line"`
}

type rspecSummary struct {
	Duration                     *float64 `json:"duration"`
	ExampleCount                 int      `json:"example_count"`
	FailureCount                 int      `json:"failure_count"`
	PendingCount                 int      `json:"pending_count"`
	ErrorsOutsideOfExamplesCount int      `json:"errors_outside_of_examples_count"`
}

type rspecExample struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	FullDescription string          `json:"full_description"`
	Status          string          `json:"status"`
	FilePath        string          `json:"file_path"`
	LineNumber      int             `json:"line_number"`
	RunTime         float64         `json:"run_time"`
	PendingMessage  string          `json:"pending_message"`
	Exception       *rspecException `json:"exception"`
}

type rspecException struct {
	Class     string   `json:"class"`
	Message   string   `json:"message"`
	Backtrace []string `json:"backtrace"`
}

// decodeRSpec parses raw and checks it is a finished payload: it must carry
// a version, an examples array and a summary with a duration.
func decodeRSpec(raw []byte) (*rspecOutput, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrUnreadableOutput)
	}

	var out rspecOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableOutput, err)
	}

	switch {
	case out.Version == nil:
		return nil, fmt.Errorf("%w: missing version", ErrUnreadableOutput)
	case out.Examples == nil:
		return nil, fmt.Errorf("%w: missing examples", ErrUnreadableOutput)
	case out.Summary == nil || out.Summary.Duration == nil:
		return nil, fmt.Errorf("%w: missing summary duration", ErrUnreadableOutput)
	}
	return &out, nil
}

// RSpec interprets the RSpec JSON formatter output.
type RSpec struct {
	ws          workspace.Workspace
	projectPath string
	logger      Logger
}

// NewRSpec creates an RSpec interpreter. projectPath overrides the
// workspace root used to rebase relative example paths.
func NewRSpec(ws workspace.Workspace, projectPath string, logger Logger) *RSpec {
	return &RSpec{ws: ws, projectPath: projectPath, logger: orNoop(logger)}
}

// Framework returns models.FrameworkRSpec.
func (r *RSpec) Framework() models.Framework {
	return models.FrameworkRSpec
}

// Interpret decodes raw and records one result per example. Examples may
// span several files.
func (r *RSpec) Interpret(raw []byte, runID string) models.TestResults {
	out, err := decodeRSpec(raw)
	if err != nil {
		r.logger.LogInfo(fmt.Sprintf("rspec output file updated, but did not contain readable results: %v", err))
		return nil
	}

	results := models.TestResults{}
	for _, example := range *out.Examples {
		path, err := r.resolvePath(example.FilePath)
		if err != nil {
			r.logger.LogError(fmt.Sprintf("could not locate %s: %v", example.FilePath, err))
			continue
		}

		status := models.Status(example.Status)
		if !status.Valid() {
			r.logger.LogError(fmt.Sprintf("unknown status %q for example %s", example.Status, example.ID))
			continue
		}

		set, ok := results[path]
		if !ok {
			set = models.NewFileResultSet(runID)
			results[path] = set
		}

		doc := lookupDocument(r.ws, path)
		line := adjustLine(doc, example.LineNumber, example.Description)

		set.Put(&models.LineResult{
			TestID:         example.ID,
			RunID:          runID,
			Line:           line,
			Content:        contentAt(doc, line),
			Status:         status,
			Exception:      r.exceptionInfo(example.Exception, doc),
			TestName:       example.FullDescription,
			DurationLabel:  durationLabel(example.RunTime),
			PendingMessage: example.PendingMessage,
		})
	}

	r.logger.LogDebug(fmt.Sprintf("rspec run %s: %d examples across %d files", runID, len(*out.Examples), len(results)))
	return results
}

// resolvePath rebases relative example paths onto the project root. With no
// root available the workspace is searched for the file instead.
func (r *RSpec) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	relative := strings.TrimPrefix(strings.TrimPrefix(path, "./"), `.\`)
	root, err := workspace.ProjectRoot(r.ws, r.projectPath)
	if err == nil {
		return filepath.Join(root, relative), nil
	}
	if !errors.Is(err, workspace.ErrNoWorkspace) || r.ws == nil {
		return "", err
	}

	files, findErr := r.ws.FindFiles(relative)
	if findErr != nil {
		return "", findErr
	}
	if len(files) == 0 {
		return "", err
	}
	return files[0], nil
}

// exceptionInfo anchors the exception at the first backtrace frame in doc.
func (r *RSpec) exceptionInfo(exception *rspecException, doc workspace.Document) *models.ExceptionInfo {
	if exception == nil {
		return nil
	}

	info := &models.ExceptionInfo{
		Type:    exception.Class,
		Message: exception.Message,
	}
	if doc == nil {
		return info
	}

	frame := r.framePattern(doc.Path())
	for _, traceLine := range exception.Backtrace {
		m := frame.FindStringSubmatch(strings.TrimSpace(traceLine))
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		info.Line = line
		info.Content = contentAt(doc, line)
		break
	}
	return info
}

// framePattern matches backtrace frames in path, written either absolute
// or relative to the project root ("./spec/...").
func (r *RSpec) framePattern(path string) *regexp.Regexp {
	alternatives := []string{regexp.QuoteMeta(path)}
	if root, err := workspace.ProjectRoot(r.ws, r.projectPath); err == nil {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			alternatives = append(alternatives, regexp.QuoteMeta("./"+filepath.ToSlash(rel)))
		}
	}
	return regexp.MustCompile(`^(?:` + strings.Join(alternatives, "|") + `):(\d+):in`)
}

// adjustLine moves a reported line to the line mentioning description when
// the reported line does not, picking the closest such line. Generated
// descriptions appear nowhere in the source and keep the reported line.
func adjustLine(doc workspace.Document, line int, description string) int {
	if doc == nil || description == "" {
		return line
	}
	if strings.Contains(doc.Line(line), description) {
		return line
	}
	if closest, ok := workspace.ClosestLine(workspace.FindLinesContaining(doc, description), line); ok {
		return closest
	}
	return line
}

// durationLabel renders an example run time in seconds.
func durationLabel(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Microsecond).String()
	}
}
