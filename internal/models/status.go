package models

import (
	"path/filepath"
	"strings"
)

// Status is the outcome recorded for a single test line.
type Status string

// Test outcome constants. The values match the status strings RSpec writes
// in its JSON formatter so decoded examples can be assigned directly.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Valid reports whether s is one of the known outcomes.
func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusPending:
		return true
	default:
		return false
	}
}

// Framework identifies which Ruby test framework a file belongs to.
type Framework int

const (
	// FrameworkUnknown is used for files that follow neither naming convention
	FrameworkUnknown Framework = iota
	// FrameworkRSpec covers *_spec.rb files (BDD style, JSON formatter output)
	FrameworkRSpec
	// FrameworkMinitest covers *_test.rb files (xUnit style, free text output)
	FrameworkMinitest
)

// String returns the string representation of the Framework
func (f Framework) String() string {
	switch f {
	case FrameworkRSpec:
		return "rspec"
	case FrameworkMinitest:
		return "minitest"
	default:
		return "unknown"
	}
}

// DetectFramework picks the framework from the test file naming convention:
//   - *_spec.rb -> FrameworkRSpec
//   - *_test.rb -> FrameworkMinitest
//   - all others -> FrameworkUnknown
func DetectFramework(path string) Framework {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, "_spec.rb"):
		return FrameworkRSpec
	case strings.HasSuffix(base, "_test.rb"):
		return FrameworkMinitest
	default:
		return FrameworkUnknown
	}
}
