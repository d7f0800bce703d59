// Package bridge runs the event loop that turns button transitions into
// keystrokes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sweeney/button-kbd/internal/gpio"
	"github.com/sweeney/button-kbd/internal/keymap"
	"github.com/sweeney/button-kbd/internal/logging"
	"github.com/sweeney/button-kbd/internal/logic"
	"github.com/sweeney/button-kbd/internal/mqtt"
	"github.com/sweeney/button-kbd/internal/status"
	"github.com/sweeney/button-kbd/internal/uinput"
)

// Defaults for the loop timing.
const (
	DefaultSettle      = 2 * time.Millisecond
	DefaultWaitTimeout = 3000 * time.Millisecond
)

// Config wires the loop to its collaborators. Watcher, Emitter, Table and
// Detector are required; the rest are optional.
type Config struct {
	Watcher  gpio.Watcher
	Emitter  *uinput.Emitter
	Table    *keymap.Table
	Detector *logic.Detector

	// Settle is slept between an accepted transition and the level sample.
	Settle time.Duration
	// WaitTimeout bounds each wait so the run flag is rechecked.
	WaitTimeout time.Duration
	// Heartbeat is the interval between HEARTBEAT messages; 0 disables them.
	Heartbeat time.Duration

	// Now returns wall clock time. Defaults to time.Now with the monotonic
	// reading stripped.
	Now func() time.Time
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)

	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker
	Logger     *slog.Logger
}

// Loop is the single-threaded event loop. All of its state is owned by the
// goroutine calling Run.
type Loop struct {
	cfg Config
	log *slog.Logger
}

// WallClock returns the current time without its monotonic reading, so that
// steps of the system clock show up in time differences.
func WallClock() time.Time {
	return time.Now().Round(0)
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Watcher == nil:
		return nil, errors.New("bridge: watcher is required")
	case cfg.Emitter == nil:
		return nil, errors.New("bridge: emitter is required")
	case cfg.Table == nil:
		return nil, errors.New("bridge: key table is required")
	case cfg.Detector == nil:
		return nil, errors.New("bridge: detector is required")
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.Now == nil {
		cfg.Now = WallClock
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{cfg: cfg, log: logger}, nil
}

// Run processes transitions until running is cleared. The flag is checked
// once per wait, so shutdown latency is at most the wait timeout plus any
// dispatch in flight. A failed wait ends the loop with an error.
func (l *Loop) Run(running *atomic.Bool) error {
	for running.Load() {
		ready, err := l.cfg.Watcher.Wait(l.cfg.WaitTimeout)
		if err != nil {
			return fmt.Errorf("wait for edges: %w", err)
		}

		for _, line := range ready {
			l.handle(line)
		}

		l.heartbeat()
		l.updateTracker()
	}
	return nil
}

// handle takes one raw transition on line through admission, settling and
// dispatch.
func (l *Loop) handle(line int) {
	d := l.cfg.Detector

	adm := d.Admit(line, l.cfg.Now())
	switch adm.Outcome {
	case logic.OutcomeClockReset:
		l.log.Info("clock discontinuity, epoch baseline reset", "line", line, "baseline", d.Baseline())
		return
	case logic.OutcomeAccepted:
	default:
		l.log.Log(context.Background(), logging.LevelTrace, "transition rejected", "line", line, "outcome", adm.Outcome, "ms", adm.Millis)
		return
	}

	if l.cfg.Settle > 0 {
		l.cfg.Sleep(l.cfg.Settle)
	}

	v, err := l.cfg.Watcher.Level(line)
	if err != nil {
		d.DropRead(line)
		l.log.Debug("dropping event", "line", line, "error", err)
		return
	}
	level := logic.Level(v)

	if d.Resolve(line, level) != logic.OutcomeTriggered {
		l.log.Debug("ignoring edge", "line", line, "level", v, "trigger", d.Config().Trigger)
		return
	}

	keys, ok := l.cfg.Table.Lookup(line)
	if !ok {
		d.Fail(line)
		l.log.Error("internal error: triggered line has no key mapping", "line", line)
		return
	}

	if err := l.cfg.Emitter.Emit(keys); err != nil {
		d.Fail(line)
		l.log.Error("emit keystrokes", "line", line, "error", err)
		return
	}
	d.Dispatch(line)

	at := l.cfg.Now()
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.RecordPress(line, at)
	}
	if l.cfg.Publisher != nil {
		ev := mqtt.PressEvent{Timestamp: at, Line: line, Level: level, Keys: keys}
		if err := l.cfg.Publisher.Publish(ev); err != nil {
			l.log.Warn("publish press", "line", line, "error", err)
		}
	}
}

func (l *Loop) heartbeat() {
	hb := l.cfg.Detector.CheckHeartbeat(l.cfg.Now(), l.cfg.Heartbeat)
	if hb == nil {
		return
	}
	l.log.Info("heartbeat", "uptime", hb.Uptime, "dispatched", hb.Counts.Dispatched(), "clock_resets", hb.Counts.ClockResets)

	if l.cfg.Publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if l.cfg.Tracker != nil {
		l.updateTracker()
		ev.RawPayload = status.FormatStatusEvent(l.cfg.Tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.cfg.Publisher.PublishSystem(ev); err != nil {
		l.log.Warn("heartbeat publish", "error", err)
	}
}

func (l *Loop) updateTracker() {
	if l.cfg.Tracker == nil {
		return
	}
	d := l.cfg.Detector
	l.cfg.Tracker.Update(d.EventCountsSnapshot(), d.Baseline())
	if l.cfg.MQTTStatus != nil {
		l.cfg.Tracker.SetMQTTConnected(l.cfg.MQTTStatus.IsConnected())
	}
}
