// Package logic contains the pure decision logic for button events: clock
// discontinuity handling, debouncing and edge selection.
// This package has NO external dependencies (no GPIO, uinput, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Level is the logic level of a line: 0 or 1.
type Level int

const (
	LevelLow  Level = 0
	LevelHigh Level = 1
)

// Trigger selects which resting level turns an accepted transition into a
// keystroke.
type Trigger string

const (
	TriggerLow  Trigger = "low"
	TriggerHigh Trigger = "high"
	TriggerBoth Trigger = "both"
)

// ParseTrigger converts a flag value to a Trigger.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerLow, TriggerHigh, TriggerBoth:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger %q (want low, high or both)", s)
}

// Matches reports whether a resting level should be dispatched.
func (t Trigger) Matches(l Level) bool {
	switch t {
	case TriggerLow:
		return l == LevelLow
	case TriggerHigh:
		return l == LevelHigh
	case TriggerBoth:
		return l == LevelLow || l == LevelHigh
	}
	return false
}

// Config holds the timing parameters of the detector.
type Config struct {
	// Bounce is the lockout after an accepted transition on a line.
	Bounce time.Duration
	// StartupSuppress rejects every transition until this much time has
	// passed since the epoch baseline.
	StartupSuppress time.Duration
	// ClockJump is the elapsed time beyond which the wall clock is assumed to
	// have been reset. Zero or negative disables the guard.
	ClockJump time.Duration
	// Trigger selects the dispatched resting level.
	Trigger Trigger
}

// SecondsPerYear is the default clock discontinuity threshold, in seconds.
const SecondsPerYear = 31536000

// DefaultConfig returns the compiled-in timing.
func DefaultConfig() Config {
	return Config{
		Bounce:          300 * time.Millisecond,
		StartupSuppress: 1000 * time.Millisecond,
		ClockJump:       SecondsPerYear * time.Second,
		Trigger:         TriggerLow,
	}
}

// Outcome is what happened to one raw transition.
type Outcome string

const (
	// Accepted passed the clock guard and debounce filter and is waiting
	// for the settle delay.
	OutcomeAccepted Outcome = "ACCEPTED"
	// Bounced arrived inside the bounce window of the previous acceptance.
	OutcomeBounced Outcome = "BOUNCED"
	// Suppressed arrived inside the startup suppression window.
	OutcomeSuppressed Outcome = "SUPPRESSED"
	// ClockReset observed a clock discontinuity; the baseline was reset.
	OutcomeClockReset Outcome = "CLOCK_RESET"
	// Triggered settled on the trigger level and is ready to be emitted.
	OutcomeTriggered Outcome = "TRIGGERED"
	// Dispatched was emitted as keystrokes.
	OutcomeDispatched Outcome = "DISPATCHED"
	// Failed triggered but could not be emitted.
	OutcomeFailed Outcome = "FAILED"
	// WrongEdge settled on the non-trigger level.
	OutcomeWrongEdge Outcome = "WRONG_EDGE"
	// BadRead could not sample the settled level.
	OutcomeBadRead Outcome = "BAD_READ"
)

// Admission is the verdict of the clock guard and debounce filter.
type Admission struct {
	Outcome Outcome
	// Millis is the transition time relative to the epoch baseline.
	Millis int64
}

// Accepted reports whether the transition should go on to the settle delay.
func (a Admission) Accepted() bool {
	return a.Outcome == OutcomeAccepted
}

// LineCounts tracks what happened to transitions on one line since startup.
type LineCounts struct {
	Line       int
	Accepted   int
	Dispatched int
	Bounced    int
	Suppressed int
	WrongEdge  int
	BadReads   int
	Failed     int
}

// EventCounts aggregates per-line counts in line order.
type EventCounts struct {
	Lines       []LineCounts
	ClockResets int
}

// Dispatched returns the total number of dispatched events.
func (c EventCounts) Dispatched() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Dispatched
	}
	return n
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
