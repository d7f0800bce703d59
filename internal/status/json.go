package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Baseline      string         `json:"baseline"`
	ClockResets   int            `json:"clock_resets"`
	Lines         []LineJSON     `json:"lines"`
	LastPress     *LastPressJSON `json:"last_press,omitempty"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Config        ConfigJSON     `json:"config"`
}

// LineJSON is the JSON representation of one line's counters.
type LineJSON struct {
	Line       int    `json:"line"`
	Keys       string `json:"keys,omitempty"`
	Accepted   int    `json:"accepted"`
	Dispatched int    `json:"dispatched"`
	Bounced    int    `json:"bounced"`
	Suppressed int    `json:"suppressed"`
	WrongEdge  int    `json:"wrong_edge"`
	BadReads   int    `json:"bad_reads"`
	Failed     int    `json:"failed"`
}

// LastPressJSON reports the most recent dispatched press.
type LastPressJSON struct {
	Line      int    `json:"line"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Device      string `json:"device"`
	Trigger     string `json:"trigger"`
	BounceMs    int64  `json:"bounce_ms"`
	StartupMs   int64  `json:"startup_ms"`
	SettleMs    int64  `json:"settle_ms"`
	ClockJumpS  int64  `json:"clock_jump_s"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	WSBroker    string `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	lines := make([]LineJSON, 0, len(snap.Counts.Lines))
	for _, c := range snap.Counts.Lines {
		lines = append(lines, LineJSON{
			Line:       c.Line,
			Keys:       snap.Config.Keys[c.Line],
			Accepted:   c.Accepted,
			Dispatched: c.Dispatched,
			Bounced:    c.Bounced,
			Suppressed: c.Suppressed,
			WrongEdge:  c.WrongEdge,
			BadReads:   c.BadReads,
			Failed:     c.Failed,
		})
	}

	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Baseline:      snap.Baseline.UTC().Format(time.RFC3339),
		ClockResets:   snap.Counts.ClockResets,
		Lines:         lines,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Device:      snap.Config.Device,
			Trigger:     snap.Config.Trigger,
			BounceMs:    snap.Config.BounceMs,
			StartupMs:   snap.Config.StartupMs,
			SettleMs:    snap.Config.SettleMs,
			ClockJumpS:  snap.Config.ClockJumpS,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			WSBroker:    snap.Config.WSBroker,
		},
	}
	if snap.LastPress != nil {
		inner.LastPress = &LastPressJSON{
			Line:      snap.LastPress.Line,
			Timestamp: snap.LastPress.Time.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
