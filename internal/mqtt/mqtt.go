// Package mqtt publishes dispatched button presses and daemon lifecycle
// events. Publishing is optional; the keyboard bridge never depends on it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/button-kbd/internal/keymap"
	"github.com/sweeney/button-kbd/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "home/button-kbd"

// Topics holds the topics a publisher writes to.
type Topics struct {
	Events string
	System string
}

// TopicsFor derives the event and system topics from a prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a dispatched press to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PressEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PressEvent is one dispatched button press and the keystrokes it produced.
type PressEvent struct {
	Timestamp time.Time
	Line      int
	Level     logic.Level
	Keys      []keymap.KeyEvent
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the press details.
type ButtonPayload struct {
	Timestamp string       `json:"timestamp"`
	Line      int          `json:"line"`
	Level     int          `json:"level"`
	Keys      []KeyPayload `json:"keys"`
}

// KeyPayload is one keystroke of a press.
type KeyPayload struct {
	Code      uint16 `json:"code"`
	Direction string `json:"direction"`
}

// FormatPayload creates the JSON payload for a press event.
func FormatPayload(event PressEvent) ([]byte, error) {
	keys := make([]KeyPayload, 0, len(event.Keys))
	for _, k := range event.Keys {
		keys = append(keys, KeyPayload{Code: uint16(k.Code), Direction: k.Direction.String()})
	}
	payload := Payload{
		Button: ButtonPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Line:      event.Line,
			Level:     int(event.Level),
			Keys:      keys,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// Message is an encoded MQTT message ready to be sent.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// PressMessage encodes a press for the events topic. Presses are sent at
// QoS 0 and never retained.
func PressMessage(t Topics, event PressEvent) (Message, error) {
	payload, err := FormatPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format payload: %w", err)
	}
	return Message{Topic: t.Events, Payload: payload}, nil
}

// SystemMessage encodes a lifecycle event for the system topic at QoS 1.
func SystemMessage(t Topics, event SystemEvent) (Message, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format system payload: %w", err)
	}
	return Message{Topic: t.System, Payload: payload, QoS: 1, Retained: event.Retained}, nil
}
