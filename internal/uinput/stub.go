//go:build !linux

package uinput

import evdev "github.com/holoplot/go-evdev"

// Device is not available on non-Linux platforms.
type Device struct{}

// NewDevice returns ErrUnsupported on non-Linux platforms.
func NewDevice(id Identity, codes []evdev.EvCode) (*Device, error) {
	return nil, ErrUnsupported
}

// WriteEvent is not implemented on non-Linux platforms.
func (d *Device) WriteEvent(typ evdev.EvType, code evdev.EvCode, value int32) error {
	return ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (d *Device) Close() error {
	return nil
}
