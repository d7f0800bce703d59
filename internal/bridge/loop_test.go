package bridge

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-kbd/internal/gpio"
	"github.com/sweeney/button-kbd/internal/keymap"
	"github.com/sweeney/button-kbd/internal/logic"
	"github.com/sweeney/button-kbd/internal/mqtt"
	"github.com/sweeney/button-kbd/internal/status"
	"github.com/sweeney/button-kbd/internal/uinput"
)

var loopStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// fakeClock is advanced by the watcher at each step and by sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

// timedStep is a scripted wait result delivered at an offset from loopStart.
type timedStep struct {
	at    time.Duration
	ready []int
	level map[int]int
}

// clockedWatcher sets the fake clock to each step's time as Wait returns it.
type clockedWatcher struct {
	*gpio.FakeWatcher
	clock *fakeClock
	at    []time.Duration
	n     int
}

func (w *clockedWatcher) Wait(timeout time.Duration) ([]int, error) {
	if w.n < len(w.at) {
		w.clock.t = loopStart.Add(w.at[w.n])
	}
	w.n++
	return w.FakeWatcher.Wait(timeout)
}

type harness struct {
	clock    *fakeClock
	watcher  *clockedWatcher
	sink     *uinput.FakeSink
	detector *logic.Detector
	running  atomic.Bool
	logs     bytes.Buffer
	cfg      Config
}

func newHarness(t *testing.T, detCfg logic.Config, lines []int, steps ...timedStep) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{t: loopStart}}

	fake := gpio.NewFakeWatcher(lines)
	var offsets []time.Duration
	for _, s := range steps {
		fake.Steps = append(fake.Steps, gpio.Step{Ready: s.ready, Levels: s.level})
		offsets = append(offsets, s.at)
	}
	fake.OnExhausted = func() { h.running.Store(false) }
	h.watcher = &clockedWatcher{FakeWatcher: fake, clock: h.clock, at: offsets}

	h.sink = uinput.NewFakeSink()
	h.detector = logic.NewDetector(detCfg, lines, loopStart)
	logger := slog.New(slog.NewTextHandler(&h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h.cfg = Config{
		Watcher:     h.watcher,
		Emitter:     uinput.NewEmitter(h.sink, logger),
		Table:       keymap.Default,
		Detector:    h.detector,
		Settle:      DefaultSettle,
		WaitTimeout: DefaultWaitTimeout,
		Now:         h.clock.Now,
		Sleep:       h.clock.Sleep,
		Logger:      logger,
	}
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	loop, err := New(h.cfg)
	require.NoError(t, err)
	h.running.Store(true)
	require.NoError(t, loop.Run(&h.running))
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func low(line int) map[int]int  { return map[int]int{line: 0} }
func high(line int) map[int]int { return map[int]int{line: 1} }

func keyRecords(codes ...any) []uinput.Record {
	var out []uinput.Record
	for i := 0; i < len(codes); i += 2 {
		out = append(out, uinput.Record{
			Type:  evdev.EV_KEY,
			Code:  evdev.EvCode(codes[i].(int)),
			Value: int32(codes[i+1].(int)),
		})
	}
	return out
}

func TestSpacePress(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	sync := uinput.Record{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT, Value: 0}
	assert.Equal(t, []uinput.Record{
		{Type: evdev.EV_KEY, Code: evdev.KEY_SPACE, Value: 1}, sync,
		{Type: evdev.EV_KEY, Code: evdev.KEY_SPACE, Value: 0}, sync,
	}, h.sink.Records)
	assert.Equal(t, []time.Duration{DefaultSettle}, h.clock.sleeps)
	assert.Equal(t, []int{20}, h.watcher.Reads)
}

func TestCtrlRPress(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(5000), ready: []int{21}, level: low(21)},
	)
	h.run(t)

	assert.Equal(t, keyRecords(29, 1, 19, 1, 19, 0, 29, 0), h.sink.Keys())
	require.Len(t, h.sink.Records, 8)
	for i := 1; i < 8; i += 2 {
		assert.True(t, h.sink.Records[i].IsSync(), "record %d should be SYN", i)
	}
}

func TestTwoTransitions40msApart(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: ms(2040), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Equal(t, keyRecords(57, 1, 57, 0), h.sink.Keys())
	assert.Equal(t, int64(2000), h.detector.LastAccepted(20))
	assert.Equal(t, []int{20}, h.watcher.Reads, "bounced transition is never sampled")
}

func TestBounceBurstSingleAcceptance(t *testing.T) {
	var steps []timedStep
	for off := 3000; off <= 3300; off += 20 {
		steps = append(steps, timedStep{at: ms(off), ready: []int{20}, level: low(20)})
	}
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21}, steps...)
	h.run(t)

	assert.Len(t, h.sink.Keys(), 2, "one tap for the whole burst")
	assert.Equal(t, 1, h.detector.EventCountsSnapshot().Lines[0].Accepted)
}

func TestStartupSuppression(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(100), ready: []int{20}, level: low(20)},
		timedStep{at: ms(999), ready: []int{21}, level: low(21)},
		timedStep{at: ms(1000), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Empty(t, h.sink.Records)
	assert.Empty(t, h.watcher.Reads)
	assert.Empty(t, h.clock.sleeps)
}

func TestClockJumpProducesNoKeystroke(t *testing.T) {
	jump := 30 * 365 * 24 * time.Hour
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: jump, ready: []int{20}, level: low(20)},
		timedStep{at: jump + ms(500), ready: []int{20}, level: low(20)},
		timedStep{at: jump + ms(1500), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Equal(t, keyRecords(57, 1, 57, 0, 57, 1, 57, 0), h.sink.Keys(),
		"one tap before the jump and one after startup suppression on the new baseline")
	assert.True(t, h.detector.Baseline().Equal(loopStart.Add(jump)))
	assert.Equal(t, 1, h.detector.EventCountsSnapshot().ClockResets)
	assert.Contains(t, h.logs.String(), "clock discontinuity")
}

func TestWrongEdgeStillConsumesBounceWindow(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: high(20)},
		timedStep{at: ms(2200), ready: []int{20}, level: low(20)},
		timedStep{at: ms(2400), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Equal(t, keyRecords(57, 1, 57, 0), h.sink.Keys(), "only the transition at 2400ms dispatches")
	c := h.detector.EventCountsSnapshot().Lines[0]
	assert.Equal(t, 1, c.WrongEdge)
	assert.Equal(t, 1, c.Bounced)
	assert.Equal(t, 1, c.Dispatched)
}

func TestTriggerHigh(t *testing.T) {
	cfg := logic.DefaultConfig()
	cfg.Trigger = logic.TriggerHigh
	h := newHarness(t, cfg, []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: ms(2500), ready: []int{20}, level: high(20)},
	)
	h.run(t)

	assert.Equal(t, keyRecords(57, 1, 57, 0), h.sink.Keys())
}

func TestTriggerBoth(t *testing.T) {
	cfg := logic.DefaultConfig()
	cfg.Trigger = logic.TriggerBoth
	h := newHarness(t, cfg, []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: ms(2500), ready: []int{20}, level: high(20)},
	)
	h.run(t)

	assert.Len(t, h.sink.Keys(), 4)
}

func TestMalformedReadDropsEvent(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}},
		timedStep{at: ms(2100), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Empty(t, h.sink.Records, "bad read drops the event and its acceptance holds the window")
	assert.Equal(t, 1, h.detector.EventCountsSnapshot().Lines[0].BadReads)
	assert.Contains(t, h.logs.String(), "dropping event")
}

func TestUnmappedLineLogsInternalError(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21, 7},
		timedStep{at: ms(2000), ready: []int{7}, level: low(7)},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
	)
	h.run(t)

	assert.Contains(t, h.logs.String(), "level=ERROR")
	assert.Contains(t, h.logs.String(), "internal error")
	assert.Equal(t, keyRecords(57, 1, 57, 0), h.sink.Keys(), "loop keeps running after the error")

	counts := h.detector.EventCountsSnapshot()
	require.Len(t, counts.Lines, 3)
	assert.Equal(t, logic.LineCounts{Line: 7, Accepted: 1, Failed: 1}, counts.Lines[2])
	assert.Equal(t, 1, counts.Dispatched(), "only the SPACE press was emitted")
}

func TestLinesReadyTogetherProcessedInOrder(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20, 21}, level: map[int]int{20: 0, 21: 0}},
	)
	h.run(t)

	assert.Equal(t, keyRecords(57, 1, 57, 0, 29, 1, 19, 1, 19, 0, 29, 0), h.sink.Keys())
	assert.Equal(t, []int{20, 21}, h.watcher.Reads)
	assert.Equal(t, []time.Duration{DefaultSettle, DefaultSettle}, h.clock.sleeps)
}

func TestEmitErrorKeepsLoopRunning(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{21}, level: low(21)},
		timedStep{at: ms(3000), ready: []int{20}, level: low(20)},
	)
	h.sink.FailAfter = 3
	h.run(t)

	assert.Contains(t, h.logs.String(), "emit keystrokes")
	assert.Len(t, h.sink.Records, 3, "the failed sequence is aborted and later writes keep failing")
	assert.Equal(t, 2, h.watcher.n-1, "both steps were waited on")

	counts := h.detector.EventCountsSnapshot()
	assert.Zero(t, counts.Dispatched(), "nothing reached the keyboard intact")
	assert.Equal(t, 1, counts.Lines[0].Failed)
	assert.Equal(t, 1, counts.Lines[1].Failed)
}

func TestWaitTimeoutPassedToWatcher(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(10)},
	)
	h.cfg.WaitTimeout = 0
	h.run(t)

	require.NotEmpty(t, h.watcher.Timeouts)
	assert.Equal(t, DefaultWaitTimeout, h.watcher.Timeouts[0])
}

func TestWaitErrorEndsLoop(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21})
	h.watcher.WaitError = errors.New("poll: bad file descriptor")

	loop, err := New(h.cfg)
	require.NoError(t, err)
	h.running.Store(true)

	err = loop.Run(&h.running)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait for edges")
	assert.ErrorIs(t, err, h.watcher.WaitError)
}

func TestRunFlagClearedStopsBeforeWaiting(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21})

	loop, err := New(h.cfg)
	require.NoError(t, err)

	require.NoError(t, loop.Run(&h.running))
	assert.Empty(t, h.watcher.Timeouts)
}

func TestNewRequiresCollaborators(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20})

	for name, mutate := range map[string]func(*Config){
		"watcher":  func(c *Config) { c.Watcher = nil },
		"emitter":  func(c *Config) { c.Emitter = nil },
		"table":    func(c *Config) { c.Table = nil },
		"detector": func(c *Config) { c.Detector = nil },
	} {
		cfg := h.cfg
		mutate(&cfg)
		_, err := New(cfg)
		assert.ErrorContains(t, err, name)
	}
}

func TestPublishesPressAndTracksStatus(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{21}, level: low(21)},
	)
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(loopStart, status.Config{})
	h.cfg.Publisher = pub
	h.cfg.MQTTStatus = pub
	h.cfg.Tracker = tracker
	h.run(t)

	require.Len(t, pub.Events, 1)
	ev := pub.Events[0]
	assert.Equal(t, 21, ev.Line)
	assert.Equal(t, logic.LevelLow, ev.Level)
	assert.Equal(t, keymap.Chord(evdev.KEY_R, evdev.KEY_LEFTCTRL), ev.Keys)
	assert.True(t, ev.Timestamp.Equal(loopStart.Add(ms(2002))), "stamped after the settle delay")

	snap := tracker.Snapshot()
	require.NotNil(t, snap.LastPress)
	assert.Equal(t, 21, snap.LastPress.Line)
	assert.Equal(t, 1, snap.Counts.Dispatched())
	assert.True(t, snap.MQTTConnected)
}

func TestPublishErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: ms(3000), ready: []int{21}, level: low(21)},
	)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	h.cfg.Publisher = pub
	h.run(t)

	assert.Len(t, h.sink.Keys(), 6)
	assert.Contains(t, h.logs.String(), "publish press")
}

func TestHeartbeatPublished(t *testing.T) {
	h := newHarness(t, logic.DefaultConfig(), []int{20, 21},
		timedStep{at: ms(2000), ready: []int{20}, level: low(20)},
		timedStep{at: 15 * time.Minute},
		timedStep{at: 16 * time.Minute},
	)
	pub := mqtt.NewFakePublisher()
	h.cfg.Publisher = pub
	h.cfg.Tracker = status.NewTracker(loopStart, status.Config{})
	h.cfg.Heartbeat = 15 * time.Minute
	h.run(t)

	require.Len(t, pub.SystemEvents, 1)
	hb := pub.SystemEvents[0]
	assert.Equal(t, "HEARTBEAT", hb.Event)
	assert.True(t, hb.Timestamp.Equal(loopStart.Add(15*time.Minute)))
	assert.Contains(t, string(hb.RawPayload), `"event":"HEARTBEAT"`)
	assert.Contains(t, string(hb.RawPayload), `"dispatched":1`)
}
