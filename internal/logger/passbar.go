package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// PassBar is an ASCII bar showing how many results of a run passed.
type PassBar struct {
	passed      int
	total       int
	width       int
	enableColor bool
	mu          sync.RWMutex
}

// NewPassBar creates a bar for total results.
func NewPassBar(total, width int, enableColor bool) *PassBar {
	if width < 1 {
		width = 10
	}
	return &PassBar{
		total:       total,
		width:       width,
		enableColor: enableColor,
	}
}

// Update sets the number of passed results
func (pb *PassBar) Update(passed int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.passed = passed
}

// Percentage returns the pass rate (0-100)
func (pb *PassBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *PassBar) percentage() int {
	if pb.total == 0 {
		return 0
	}
	perc := (pb.passed * 100) / pb.total
	if perc > 100 {
		perc = 100
	}
	if perc < 0 {
		perc = 0
	}
	return perc
}

// Render generates "[=====     ] 5/10 (50%)". A partial pass rate is red,
// a full one green.
func (pb *PassBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := (perc * pb.width) / 100

	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled) + "]"
	result := fmt.Sprintf("%s %d/%d (%d%%)", bar, pb.passed, pb.total, perc)

	if !pb.enableColor || pb.total == 0 {
		return result
	}

	c := color.New(color.FgRed)
	if perc == 100 {
		c = color.New(color.FgGreen)
	}
	c.EnableColor()
	return c.Sprint(result)
}
