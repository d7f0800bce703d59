// Package status provides a thread-safe status tracker for the button-kbd daemon.
// It is written by the event loop and read by HTTP handlers and the MQTT
// lifecycle messages.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-kbd/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Device      string
	Trigger     string
	BounceMs    int64
	StartupMs   int64
	SettleMs    int64
	ClockJumpS  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	// WSBroker is the MQTT websocket URL the status page subscribes to for
	// live press updates. Empty disables live updates.
	WSBroker    string
	EventsTopic string
	// Keys describes the keystroke sequence of each mapped line.
	Keys map[int]string
}

// Press records the most recent dispatched press.
type Press struct {
	Line int
	Time time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counts        logic.EventCounts
	Baseline      time.Time
	LastPress     *Press
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// startTime should carry a monotonic reading so uptime survives wall clock steps.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Baseline:  startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the event counts and the current epoch baseline.
// Called from the event loop after every wait.
func (t *Tracker) Update(counts logic.EventCounts, baseline time.Time) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.Baseline = baseline
	t.mu.Unlock()
}

// RecordPress notes a dispatched press on line.
func (t *Tracker) RecordPress(line int, at time.Time) {
	t.mu.Lock()
	t.snap.LastPress = &Press{Line: line, Time: at}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastPress != nil {
		p := *s.LastPress
		s.LastPress = &p
	}
	s.Counts.Lines = append([]logic.LineCounts(nil), s.Counts.Lines...)
	s.Now = t.now()
	return s
}
