package logic

import "time"

// Detector combines the clock guard, debounce filter and edge policy, and
// keeps per-line counts for status reporting.
type Detector struct {
	cfg    Config
	guard  *ClockGuard
	filter *Filter

	lines       []int
	counts      map[int]*LineCounts
	clockResets int

	lastHeartbeat time.Time
	uptime        time.Duration
}

// NewDetector creates a detector for the given lines. startTime is the epoch
// baseline for both debounce timing and heartbeat uptime.
func NewDetector(cfg Config, lines []int, startTime time.Time) *Detector {
	d := &Detector{
		cfg:           cfg,
		guard:         NewClockGuard(cfg.ClockJump, startTime),
		filter:        NewFilter(cfg.Bounce, cfg.StartupSuppress),
		counts:        make(map[int]*LineCounts, len(lines)),
		lastHeartbeat: startTime,
	}
	for _, l := range lines {
		d.line(l)
	}
	return d
}

func (d *Detector) line(l int) *LineCounts {
	c, ok := d.counts[l]
	if !ok {
		c = &LineCounts{Line: l}
		d.counts[l] = c
		d.lines = append(d.lines, l)
	}
	return c
}

// Admit runs a raw transition on line through the clock guard and the
// debounce filter.
func (d *Detector) Admit(line int, now time.Time) Admission {
	c := d.line(line)

	ms, reset := d.guard.Elapsed(now)
	if reset {
		// Timestamps from the old timebase are meaningless now.
		d.filter.Reset()
		d.clockResets++
		return Admission{Outcome: OutcomeClockReset}
	}

	outcome := d.filter.Check(line, ms)
	switch outcome {
	case OutcomeAccepted:
		c.Accepted++
	case OutcomeBounced:
		c.Bounced++
	case OutcomeSuppressed:
		c.Suppressed++
	}
	return Admission{Outcome: outcome, Millis: ms}
}

// Resolve applies the trigger to the settled level of an accepted transition.
// It returns OutcomeTriggered when a keystroke should be emitted; the caller
// reports the result with Dispatch or Fail.
func (d *Detector) Resolve(line int, level Level) Outcome {
	if !d.cfg.Trigger.Matches(level) {
		d.line(line).WrongEdge++
		return OutcomeWrongEdge
	}
	return OutcomeTriggered
}

// Dispatch records a triggered transition whose keystrokes were emitted.
func (d *Detector) Dispatch(line int) Outcome {
	d.line(line).Dispatched++
	return OutcomeDispatched
}

// Fail records a triggered transition that produced no keystrokes.
func (d *Detector) Fail(line int) Outcome {
	d.line(line).Failed++
	return OutcomeFailed
}

// DropRead records an accepted transition whose settled level could not be read.
func (d *Detector) DropRead(line int) Outcome {
	d.line(line).BadReads++
	return OutcomeBadRead
}

// LastAccepted returns the relative time of the last accepted transition on line.
func (d *Detector) LastAccepted(line int) int64 {
	return d.filter.LastAccepted(line)
}

// Baseline returns the current epoch baseline.
func (d *Detector) Baseline() time.Time {
	return d.guard.Baseline()
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// EventCountsSnapshot returns a copy of the counts in line order.
func (d *Detector) EventCountsSnapshot() EventCounts {
	out := EventCounts{
		Lines:       make([]LineCounts, 0, len(d.lines)),
		ClockResets: d.clockResets,
	}
	for _, l := range d.lines {
		out.Lines = append(out.Lines, *d.counts[l])
	}
	return out
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed, or
// if interval is <= 0 (disabled). A clock jump between checks restarts the
// interval without counting the jump as uptime.
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	since := now.Sub(d.lastHeartbeat)
	if since < 0 || (d.cfg.ClockJump > 0 && since > d.cfg.ClockJump) {
		d.lastHeartbeat = now
		return nil
	}
	if since < interval {
		return nil
	}

	d.uptime += since
	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    d.uptime,
		Counts:    d.EventCountsSnapshot(),
	}
}
