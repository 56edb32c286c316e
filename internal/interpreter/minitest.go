package interpreter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/harrison/specrunner/internal/models"
	"github.com/harrison/specrunner/internal/parser"
	"github.com/harrison/specrunner/internal/workspace"
)

var (
	minitestSummary = regexp.MustCompile(`(\d+) (?:tests|runs), (\d+) assertions, (\d+) failures, (\d+) errors, (\d+) skips`)
	minitestFailure = regexp.MustCompile(`Failure:\r?\n(?P<testName>.+)\[.+:(?P<lineNumber>\d+)\]:?\s*(?P<message>(?:.|\r?\n[^\r\n])+)(?:\r?\n\r?\n|$)`)
	minitestError   = regexp.MustCompile(`Error:\r?\n(?P<testName>.+?)\s*:\r?\n(?P<errorName>.+)\r?\n(?P<stackTrace>(?:.|\r?\n[^\r\n])+)(?:\r?\n\r?\n|$)`)
	minitestSkip    = regexp.MustCompile(`Skipped:\r?\n.+:(?P<lineNumber>\d+)\]:\s*(?P<message>.+)`)

	frameLine     = regexp.MustCompile(`:(\d+):in`)
	exceptionName = regexp.MustCompile(`^([A-Z][\w:]*): (.*)$`)
	quoteEdges    = regexp.MustCompile(`^["']|["']$`)
)

// Minitest interprets free-text Minitest output captured behind the
// file/selector header written by the command builder.
type Minitest struct {
	ws          workspace.Workspace
	projectPath string
	logger      Logger
}

// NewMinitest creates a Minitest interpreter.
func NewMinitest(ws workspace.Workspace, projectPath string, logger Logger) *Minitest {
	return &Minitest{ws: ws, projectPath: projectPath, logger: orNoop(logger)}
}

// Framework returns models.FrameworkMinitest.
func (m *Minitest) Framework() models.Framework {
	return models.FrameworkMinitest
}

// minitestRun holds the state of interpreting one sink snapshot.
type minitestRun struct {
	file    string
	doc     workspace.Document
	regions models.Regions
	target  int // authoritative test line from the header, 0 if none
	runID   string
	set     *models.FileResultSet
	seen    map[int]bool
}

// Interpret reads the header, waits for a summary with a non-zero test
// count, then records failures, errors and skips. Tests the output does
// not mention are inferred to have passed.
func (m *Minitest) Interpret(raw []byte, runID string) models.TestResults {
	output := stripansi.Strip(string(raw))
	lines := workspace.SplitLines(output)
	if len(lines) < 4 {
		m.logger.LogInfo("minitest output file updated, but did not contain readable results")
		return nil
	}

	file := strings.TrimSpace(lines[0])
	selector := models.ParseSelector(lines[1])

	doc := lookupDocument(m.ws, file)
	if doc == nil {
		m.logger.LogError(fmt.Sprintf("could not find file in workspace: %s", file))
		return nil
	}

	if !finished(output) {
		m.logger.LogInfo("minitest output file updated, but the run has not finished")
		return nil
	}

	run := &minitestRun{
		file:    file,
		doc:     doc,
		regions: parser.NewMinitestParser().Parse(doc.Text()),
		runID:   runID,
		set:     models.NewFileResultSet(runID),
		seen:    make(map[int]bool),
	}

	// A shortcut run passes the cursor line; the test that ran is the
	// nearest one starting at or above it.
	if selector.Line > 0 {
		run.target = selector.Line
		if !selector.Inline {
			run.target, _ = run.regions.NearestTestLineAtOrBefore(selector.Line)
		}
	}

	m.failures(run, output)
	m.errors(run, output)
	m.skips(run, output)

	switch {
	case selector.All:
		for _, line := range run.regions.TestLines() {
			if !run.seen[line] {
				run.record(line, models.StatusPassed, "", nil)
			}
		}
	case run.target > 0 && len(run.set.Results) == 0:
		run.record(run.target, models.StatusPassed, "", nil)
	}

	return models.TestResults{file: run.set}
}

// finished reports whether output carries a summary counting at least one
// test. Anything else is a partial write.
func finished(output string) bool {
	match := minitestSummary.FindStringSubmatch(output)
	if match == nil {
		return false
	}
	count, err := strconv.Atoi(match[1])
	return err == nil && count > 0
}

func (m *Minitest) failures(run *minitestRun, output string) {
	for _, match := range minitestFailure.FindAllStringSubmatch(output, -1) {
		testName := strings.TrimSpace(group(minitestFailure, match, "testName"))
		failureLine, _ := strconv.Atoi(group(minitestFailure, match, "lineNumber"))

		testLine := run.resolve(testName, failureLine)
		if testLine == 0 {
			m.logger.LogError(fmt.Sprintf("could not find region for failure at line %d", failureLine))
			continue
		}

		run.record(testLine, models.StatusFailed, testName, &models.ExceptionInfo{
			Message: strings.TrimSpace(group(minitestFailure, match, "message")),
			Line:    failureLine,
			Content: contentAt(run.doc, failureLine),
		})
	}
}

func (m *Minitest) errors(run *minitestRun, output string) {
	frame := regexp.MustCompile(`^.*` + regexp.QuoteMeta(m.relativePath(run.file)) + `:\d+:in`)

	for _, match := range minitestError.FindAllStringSubmatch(output, -1) {
		trace := group(minitestError, match, "stackTrace")

		exceptionLine := 0
		for _, traceLine := range workspace.SplitLines(trace) {
			traceLine = strings.TrimSpace(traceLine)
			if !frame.MatchString(traceLine) {
				continue
			}
			if lm := frameLine.FindStringSubmatch(traceLine); lm != nil {
				exceptionLine, _ = strconv.Atoi(lm[1])
			}
			break
		}
		if exceptionLine == 0 {
			m.logger.LogError(fmt.Sprintf("could not find %s in stack trace:\n%s", run.file, trace))
			continue
		}

		testName := strings.TrimSpace(group(minitestError, match, "testName"))
		testLine := run.resolve(testName, exceptionLine)
		if testLine == 0 {
			m.logger.LogError(fmt.Sprintf("could not find region for error at line %d", exceptionLine))
			continue
		}

		info := &models.ExceptionInfo{
			Message: strings.TrimSpace(group(minitestError, match, "errorName")),
			Line:    exceptionLine,
			Content: contentAt(run.doc, exceptionLine),
		}
		if em := exceptionName.FindStringSubmatch(info.Message); em != nil {
			info.Type, info.Message = em[1], em[2]
		}
		run.record(testLine, models.StatusFailed, testName, info)
	}
}

func (m *Minitest) skips(run *minitestRun, output string) {
	for _, match := range minitestSkip.FindAllStringSubmatch(output, -1) {
		skipLine, _ := strconv.Atoi(group(minitestSkip, match, "lineNumber"))

		testLine := run.target
		if testLine == 0 {
			testLine, _ = run.regions.NearestTestLineAtOrBefore(skipLine)
		}
		if testLine == 0 {
			m.logger.LogError(fmt.Sprintf("could not find region for skip at line %d", skipLine))
			continue
		}

		result := run.record(testLine, models.StatusPending, "", nil)
		result.PendingMessage = strings.TrimSpace(group(minitestSkip, match, "message"))
	}
}

// relativePath returns file relative to the project root, as it appears in
// Minitest backtraces. The absolute path is used when there is no root.
func (m *Minitest) relativePath(file string) string {
	root, err := workspace.ProjectRoot(m.ws, m.projectPath)
	if err != nil {
		return file
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}

// resolve maps a reported line to a test line: the header target wins, then
// a region whose name uniquely appears in the test name, then the nearest
// test starting at or above the line.
func (r *minitestRun) resolve(testName string, line int) int {
	if r.target > 0 {
		return r.target
	}

	matched, count := 0, 0
	for _, region := range r.regions.Tests {
		name := quoteEdges.ReplaceAllString(region.Name, "")
		if name != "" && strings.Contains(testName, name) {
			matched = region.StartLine
			count++
		}
	}
	if count == 1 {
		return matched
	}

	nearest, _ := r.regions.NearestTestLineAtOrBefore(line)
	return nearest
}

func (r *minitestRun) record(line int, status models.Status, testName string, exception *models.ExceptionInfo) *models.LineResult {
	result := &models.LineResult{
		TestID:    r.file + ":" + strconv.Itoa(line),
		RunID:     r.runID,
		Line:      line,
		Content:   contentAt(r.doc, line),
		Status:    status,
		Exception: exception,
		TestName:  testName,
	}
	r.set.Put(result)
	r.seen[line] = true
	return result
}

func group(re *regexp.Regexp, match []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(match) {
		return ""
	}
	return match[idx]
}
