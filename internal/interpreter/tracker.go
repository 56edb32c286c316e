package interpreter

import (
	"crypto/sha256"
	"sync"

	"github.com/harrison/specrunner/internal/models"
)

// RunState is the lifecycle of one run as seen through its capture sink.
type RunState int

const (
	// StateAwaitingOutput means nothing readable has been written yet
	StateAwaitingOutput RunState = iota
	// StatePartialOutput means the sink holds an unfinished write
	StatePartialOutput
	// StateFinalized means results were emitted for the current contents
	StateFinalized
)

// String returns the string representation of the RunState
func (s RunState) String() string {
	switch s {
	case StatePartialOutput:
		return "partial"
	case StateFinalized:
		return "finalized"
	default:
		return "awaiting"
	}
}

// Tracker feeds successive snapshots of one capture sink to an interpreter.
// Once a run is finalized, repeated notifications for the same contents are
// ignored; different contents mean the sink was rewritten by a new run.
type Tracker struct {
	interp Interpreter

	mu     sync.Mutex
	state  RunState
	digest [sha256.Size]byte
}

// NewTracker creates a Tracker for interp.
func NewTracker(interp Interpreter) *Tracker {
	return &Tracker{interp: interp}
}

// Interpreter returns the wrapped interpreter.
func (t *Tracker) Interpreter() Interpreter {
	return t.interp
}

// State returns the current run state.
func (t *Tracker) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Feed interprets raw unless it repeats the finalized contents. It returns
// the results and true only on the transition to StateFinalized.
func (t *Tracker) Feed(raw []byte, runID string) (models.TestResults, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sum := sha256.Sum256(raw)
	if t.state == StateFinalized {
		if sum == t.digest {
			return nil, false
		}
		t.state = StateAwaitingOutput
	}

	results := t.interp.Interpret(raw, runID)
	if results == nil {
		if len(raw) > 0 {
			t.state = StatePartialOutput
		}
		return nil, false
	}

	t.state = StateFinalized
	t.digest = sum
	return results, true
}
