//go:build linux

package uinput

import (
	"errors"
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Device is a uinput keyboard that can emit a fixed set of key codes.
type Device struct {
	dev *evdev.InputDevice
}

// NewDevice registers a keyboard declaring EV_KEY and each of codes.
func NewDevice(id Identity, codes []evdev.EvCode) (*Device, error) {
	caps := map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: codes,
	}
	dev, err := evdev.CreateDevice(id.Name, evdev.InputID{
		BusType: id.BusType,
		Vendor:  id.Vendor,
		Product: id.Product,
		Version: id.Version,
	}, caps)
	if err != nil {
		return nil, fmt.Errorf("create uinput device: %w", err)
	}
	return &Device{dev: dev}, nil
}

// WriteEvent writes one input_event record.
func (d *Device) WriteEvent(typ evdev.EvType, code evdev.EvCode, value int32) error {
	return d.dev.WriteOne(&evdev.InputEvent{
		Type:  typ,
		Code:  code,
		Value: value,
	})
}

// Close removes the device from the system and releases its file.
func (d *Device) Close() error {
	if d.dev == nil {
		return nil
	}
	var errs []error
	if err := evdev.DestroyDevice(d.dev); err != nil {
		errs = append(errs, fmt.Errorf("destroy uinput device: %w", err))
	}
	if err := d.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close uinput device: %w", err))
	}
	d.dev = nil
	return errors.Join(errs...)
}
