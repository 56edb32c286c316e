package models

import (
	"strconv"
	"sync"
	"time"
)

// RunIDSource issues run identifiers: millisecond timestamps that strictly
// increase even when two runs start within the same millisecond.
type RunIDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewRunIDSource creates a source reading the wall clock.
func NewRunIDSource() *RunIDSource {
	return &RunIDSource{now: time.Now}
}

// Next returns a new run id.
func (s *RunIDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	id := now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return strconv.FormatInt(id, 10)
}
