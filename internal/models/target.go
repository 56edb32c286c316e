package models

// Mode selects how a target is executed.
type Mode int

const (
	// ModeRun sends a command line to the terminal
	ModeRun Mode = iota
	// ModeDebug produces a debugger launch configuration
	ModeDebug
)

// String returns the string representation of the Mode
func (m Mode) String() string {
	if m == ModeDebug {
		return "debug"
	}
	return "run"
}

// Target describes what the user asked to run.
type Target struct {
	File string // Absolute path of the test file in the local workspace
	Line int    // 1-based line; 0 runs the whole file
	Name string // Region name, used as a name filter for context runs

	// ContextChildLines lists the test lines beneath a context. When set
	// together with Name the run selects tests by name instead of by line.
	ContextChildLines []int

	// FailedOnly re-runs only examples that failed last time (RSpec).
	FailedOnly bool

	// Inline marks runs started from an inline affordance next to a test
	// line, as opposed to a keyboard shortcut with the cursor anywhere.
	Inline bool
}

// IsContextRun reports whether the target selects tests by name filter.
func (t Target) IsContextRun() bool {
	return t.Name != "" && len(t.ContextChildLines) > 0
}

// Framework returns the framework implied by the target file name.
func (t Target) Framework() Framework {
	return DetectFramework(t.File)
}
