package gpio

import (
	"fmt"
	"time"
)

// FakeWatcher is a test double that returns scripted edges and levels.
type FakeWatcher struct {
	// Watched is returned by Lines.
	Watched []int

	// Steps contains scripted Wait results. Each call to Wait consumes the
	// next step; once exhausted Wait reports a timeout.
	Steps []Step

	// OnExhausted, if set, is called the first time Wait runs out of steps.
	OnExhausted func()

	// WaitError, if set, will be returned by Wait.
	WaitError error

	// Timeouts records the timeout passed to each Wait call.
	Timeouts []time.Duration

	// Reads records every line passed to Level, in call order.
	Reads []int

	// Closed tracks if Close was called
	Closed bool

	index     int
	current   Step
	exhausted bool
}

// Step is one scripted Wait result.
type Step struct {
	// Ready lists the lines reporting an edge.
	Ready []int
	// Levels holds the settled level returned by Level for each line while
	// this step is current. A missing line, or a value other than 0 or 1,
	// reads as ErrMalformedRead.
	Levels map[int]int
}

// NewFakeWatcher creates a FakeWatcher for lines with the given steps.
func NewFakeWatcher(lines []int, steps ...Step) *FakeWatcher {
	return &FakeWatcher{Watched: lines, Steps: steps}
}

// Lines returns the watched lines.
func (f *FakeWatcher) Lines() []int {
	return append([]int(nil), f.Watched...)
}

// Wait returns the next scripted step's ready lines.
func (f *FakeWatcher) Wait(timeout time.Duration) ([]int, error) {
	f.Timeouts = append(f.Timeouts, timeout)
	if f.WaitError != nil {
		return nil, f.WaitError
	}

	if f.index >= len(f.Steps) {
		f.current = Step{}
		if !f.exhausted {
			f.exhausted = true
			if f.OnExhausted != nil {
				f.OnExhausted()
			}
		}
		return nil, nil
	}

	f.current = f.Steps[f.index]
	f.index++
	return append([]int(nil), f.current.Ready...), nil
}

// Level returns the current step's scripted level for line.
func (f *FakeWatcher) Level(line int) (int, error) {
	f.Reads = append(f.Reads, line)
	v, ok := f.current.Levels[line]
	if !ok || (v != 0 && v != 1) {
		return -1, fmt.Errorf("%w: line %d", ErrMalformedRead, line)
	}
	return v, nil
}

// Close marks the watcher as closed.
func (f *FakeWatcher) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the watcher to the first step.
func (f *FakeWatcher) Reset() {
	f.index = 0
	f.current = Step{}
	f.exhausted = false
	f.Closed = false
	f.Timeouts = nil
	f.Reads = nil
}
