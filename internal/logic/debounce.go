package logic

import "time"

// Filter decides per line whether a raw transition is a genuine event or
// contact bounce. Times are milliseconds since the epoch baseline.
type Filter struct {
	bounceMs  int64
	startupMs int64
	last      map[int]int64
}

// NewFilter creates a debounce filter.
func NewFilter(bounce, startupSuppress time.Duration) *Filter {
	return &Filter{
		bounceMs:  bounce.Milliseconds(),
		startupMs: startupSuppress.Milliseconds(),
		last:      make(map[int]int64),
	}
}

// Check classifies a transition on line at nowMs. An accepted transition
// records nowMs as the line's last acceptance; rejections record nothing.
func (f *Filter) Check(line int, nowMs int64) Outcome {
	if nowMs <= f.startupMs {
		return OutcomeSuppressed
	}
	if nowMs-f.last[line] <= f.bounceMs {
		return OutcomeBounced
	}
	f.last[line] = nowMs
	return OutcomeAccepted
}

// Accept reports whether a transition on line at nowMs is genuine.
func (f *Filter) Accept(line int, nowMs int64) bool {
	return f.Check(line, nowMs) == OutcomeAccepted
}

// LastAccepted returns the time of the last accepted transition on line, or 0.
func (f *Filter) LastAccepted(line int) int64 {
	return f.last[line]
}

// Reset forgets every line's last acceptance. Used when the timebase changes.
func (f *Filter) Reset() {
	clear(f.last)
}
