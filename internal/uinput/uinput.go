// Package uinput emits keystrokes through a synthetic keyboard registered with
// the Linux input subsystem.
package uinput

import (
	"errors"
	"fmt"
	"log/slog"

	evdev "github.com/holoplot/go-evdev"

	"github.com/sweeney/button-kbd/internal/keymap"
)

// Sink accepts raw input event records.
type Sink interface {
	// WriteEvent writes one record. Timestamps are left zero.
	WriteEvent(typ evdev.EvType, code evdev.EvCode, value int32) error

	// Close unregisters the device.
	Close() error
}

// ErrUnsupported is returned on platforms without uinput.
var ErrUnsupported = errors.New("uinput: not supported on this platform (requires Linux)")

const busUSB = 0x03

// Identity holds the device identity reported to the input subsystem.
// Consumers attach no meaning to these values.
type Identity struct {
	Name    string
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// DefaultIdentity returns the dummy identity used when none is configured.
func DefaultIdentity() Identity {
	return Identity{
		Name:    "Dummy input device",
		BusType: busUSB,
		Vendor:  0x1234,
		Product: 0x5678,
	}
}

// Emitter writes key sequences to a Sink.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
}

// NewEmitter creates an Emitter. A nil logger discards debug output.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{sink: sink, logger: logger}
}

// Emit writes each key event in order, each followed by a SYN_REPORT.
// The first failed write aborts the rest of the sequence.
func (e *Emitter) Emit(seq []keymap.KeyEvent) error {
	for i, k := range seq {
		e.logger.Debug("emit keystroke", "code", int(k.Code), "direction", k.Direction.String())
		if err := e.sink.WriteEvent(evdev.EV_KEY, k.Code, k.Direction.Value()); err != nil {
			return fmt.Errorf("write %s (%d of %d): %w", k, i+1, len(seq), err)
		}
		if err := e.sink.WriteEvent(evdev.EV_SYN, evdev.SYN_REPORT, 0); err != nil {
			return fmt.Errorf("write sync after %s (%d of %d): %w", k, i+1, len(seq), err)
		}
	}
	return nil
}
