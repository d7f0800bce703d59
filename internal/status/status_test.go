package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-kbd/internal/logic"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testCounts() logic.EventCounts {
	return logic.EventCounts{
		Lines: []logic.LineCounts{
			{Line: 20, Accepted: 6, Dispatched: 5, Bounced: 9, Suppressed: 1, WrongEdge: 1},
			{Line: 21, Accepted: 3, Dispatched: 1, BadReads: 1, Failed: 1},
		},
		ClockResets: 1,
	}
}

func testConfig() Config {
	return Config{
		Backend:     "cdev",
		Device:      "Dummy input device",
		Trigger:     "low",
		BounceMs:    300,
		StartupMs:   1000,
		SettleMs:    2,
		ClockJumpS:  logic.SecondsPerYear,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
		Keys:        map[int]string{20: "press(57) release(57)"},
	}
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(testStart, testConfig())

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(testStart))
	assert.True(t, snap.Baseline.Equal(testStart))
	assert.Equal(t, int64(300), snap.Config.BounceMs)
	assert.Nil(t, snap.LastPress)
	assert.False(t, snap.MQTTConnected)
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(testStart, Config{})
	baseline := testStart.AddDate(30, 0, 0)

	tr.Update(testCounts(), baseline)

	snap := tr.Snapshot()
	require.Len(t, snap.Counts.Lines, 2)
	assert.Equal(t, 5, snap.Counts.Lines[0].Dispatched)
	assert.Equal(t, 1, snap.Counts.ClockResets)
	assert.True(t, snap.Baseline.Equal(baseline))
}

func TestRecordPress(t *testing.T) {
	tr := NewTracker(testStart, Config{})
	at := testStart.Add(time.Minute)

	tr.RecordPress(21, at)

	snap := tr.Snapshot()
	require.NotNil(t, snap.LastPress)
	assert.Equal(t, 21, snap.LastPress.Line)
	assert.True(t, snap.LastPress.Time.Equal(at))
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(testStart, Config{})

	tr.SetMQTTConnected(true)
	assert.True(t, tr.Snapshot().MQTTConnected)

	tr.SetMQTTConnected(false)
	assert.False(t, tr.Snapshot().MQTTConnected)
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(15 * time.Minute)}
	assert.Equal(t, 15*time.Minute, snap.Uptime())
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(testStart, Config{})
	tr.now = func() time.Time { return testStart.Add(time.Hour) }

	assert.Equal(t, time.Hour, tr.Snapshot().Uptime())
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(testStart, Config{})
	counts := testCounts()
	tr.Update(counts, testStart)
	tr.RecordPress(20, testStart)

	snap1 := tr.Snapshot()
	snap1.Counts.Lines[0].Dispatched = 99
	snap1.LastPress.Line = 99

	snap2 := tr.Snapshot()
	assert.Equal(t, 5, snap2.Counts.Lines[0].Dispatched)
	assert.Equal(t, 20, snap2.LastPress.Line)
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Counts:        testCounts(),
		Baseline:      testStart,
		LastPress:     &Press{Line: 20, Time: testStart.Add(10 * time.Minute)},
		StartTime:     testStart,
		Now:           testStart.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        testConfig(),
	}

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &parsed))

	s := parsed.Status
	assert.Empty(t, s.Event, "event omitted for web format")
	assert.Empty(t, s.Reason)
	assert.Equal(t, int64(900), s.UptimeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", s.StartTime)
	assert.Equal(t, "2026-01-01T00:15:00Z", s.Timestamp)
	assert.Equal(t, 1, s.ClockResets)
	require.Len(t, s.Lines, 2)
	assert.Equal(t, LineJSON{
		Line: 20, Keys: "press(57) release(57)",
		Accepted: 6, Dispatched: 5, Bounced: 9, Suppressed: 1, WrongEdge: 1,
	}, s.Lines[0])
	assert.Equal(t, 1, s.Lines[1].BadReads)
	assert.Equal(t, 1, s.Lines[1].Failed)
	assert.Empty(t, s.Lines[1].Keys)
	require.NotNil(t, s.LastPress)
	assert.Equal(t, "2026-01-01T00:10:00Z", s.LastPress.Timestamp)
	assert.True(t, s.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", s.MQTT.Broker)
	assert.Equal(t, "cdev", s.Config.Backend)
	assert.Equal(t, int64(2), s.Config.SettleMs)
	assert.Equal(t, int64(31536000), s.Config.ClockJumpS)
}

func TestFormatJSONNoPresses(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(time.Second)}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &raw))
	status := raw["status"].(map[string]any)

	_, exists := status["last_press"]
	assert.False(t, exists, "last_press omitted before the first press")
	assert.Equal(t, []any{}, status["lines"])
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Counts:    testCounts(),
		StartTime: testStart,
		Now:       testStart.Add(15 * time.Minute),
		Config:    testConfig(),
	}

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed))

	assert.Equal(t, "SHUTDOWN", parsed.Status.Event)
	assert.Equal(t, "SIGTERM", parsed.Status.Reason)
	assert.Equal(t, int64(900), parsed.Status.UptimeSeconds)
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(time.Second)}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw))
	status := raw["status"].(map[string]any)

	_, exists := status["reason"]
	assert.False(t, exists, "reason should be omitted when empty")
	assert.Equal(t, "STARTUP", status["event"])
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.EventCounts{Lines: []logic.LineCounts{{Line: 20, Dispatched: i}}}, time.Now())
			tr.RecordPress(20, time.Now())
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = FormatJSON(tr.Snapshot())
		}
	}()

	wg.Wait()
}
