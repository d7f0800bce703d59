package logic

import "time"

// ClockGuard measures elapsed time against an epoch baseline and re-baselines
// when the wall clock jumps.
//
// Boards without a battery-backed clock boot at an arbitrary date and step
// forward by decades once time sync completes. The threshold must tolerate
// ordinary sync corrections of seconds or minutes.
type ClockGuard struct {
	threshold time.Duration
	baseline  time.Time
}

// NewClockGuard creates a guard with the given baseline. A threshold <= 0
// disables jump detection.
func NewClockGuard(threshold time.Duration, baseline time.Time) *ClockGuard {
	return &ClockGuard{threshold: threshold, baseline: baseline}
}

// Elapsed returns milliseconds since the baseline. If |now - baseline| exceeds
// the threshold the baseline moves to now, Elapsed returns 0 and reset is true.
func (g *ClockGuard) Elapsed(now time.Time) (millis int64, reset bool) {
	d := now.Sub(g.baseline)
	if g.threshold > 0 && (d > g.threshold || d < -g.threshold) {
		g.baseline = now
		return 0, true
	}
	return d.Milliseconds(), false
}

// Baseline returns the current epoch baseline.
func (g *ClockGuard) Baseline() time.Time {
	return g.baseline
}
