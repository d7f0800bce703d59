package uinput

import (
	"errors"

	evdev "github.com/holoplot/go-evdev"
)

// Record is one event written to a FakeSink.
type Record struct {
	Type  evdev.EvType
	Code  evdev.EvCode
	Value int32
}

// IsSync reports whether r is a SYN_REPORT marker.
func (r Record) IsSync() bool {
	return r.Type == evdev.EV_SYN && r.Code == evdev.SYN_REPORT
}

// FakeSink records written events for test assertions.
type FakeSink struct {
	// Records contains every successfully written event.
	Records []Record

	// FailAfter, if > 0, makes the write after that many successful writes
	// return WriteError (or a generic error).
	FailAfter int

	// WriteError is returned once FailAfter is reached.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSink creates a FakeSink for testing.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// WriteEvent records the event.
func (f *FakeSink) WriteEvent(typ evdev.EvType, code evdev.EvCode, value int32) error {
	if f.FailAfter > 0 && len(f.Records) >= f.FailAfter {
		if f.WriteError != nil {
			return f.WriteError
		}
		return errors.New("fake sink: write failed")
	}
	f.Records = append(f.Records, Record{Type: typ, Code: code, Value: value})
	return nil
}

// Keys returns only the EV_KEY records, in order.
func (f *FakeSink) Keys() []Record {
	var out []Record
	for _, r := range f.Records {
		if r.Type == evdev.EV_KEY {
			out = append(out, r)
		}
	}
	return out
}

// Close marks the sink as closed.
func (f *FakeSink) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded events.
func (f *FakeSink) Reset() {
	f.Records = nil
	f.Closed = false
	f.FailAfter = 0
	f.WriteError = nil
}
