// Package gpio provides edge-triggered GPIO line watching with hardware abstraction.
// The sysfs implementation drives /sys/class/gpio, the cdev implementation uses
// the Linux GPIO character device, and the fake implementation allows testing
// without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Watcher waits for edges on a fixed set of lines and samples their levels.
type Watcher interface {
	// Lines returns the watched lines in acquisition order.
	Lines() []int

	// Wait blocks until at least one line reports an edge or the timeout
	// elapses. Pending notifications are drained. Ready lines are returned in
	// Lines() order; a timeout returns no lines and no error.
	Wait(timeout time.Duration) ([]int, error)

	// Level samples the current level of line: 0 or 1.
	// Returns ErrMalformedRead if the level source returned anything else.
	Level(line int) (int, error)

	// Close releases every acquired line.
	Close() error
}

// Backend names.
const (
	BackendSysfs = "sysfs"
	BackendCdev  = "cdev"
)

// Defaults for the line sources.
const (
	DefaultSysfsRoot = "/sys/class/gpio"
	DefaultChip      = "gpiochip0"
)

// Bias selects the pull resistor for the character-device backend.
type Bias string

const (
	BiasAsIs     Bias = "as-is"
	BiasDisabled Bias = "disabled"
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
)

var (
	// ErrMalformedRead is returned by Level when the line did not read as 0 or 1.
	ErrMalformedRead = errors.New("gpio: malformed level read")

	// ErrUnsupported is returned on platforms without Linux GPIO.
	ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

	// ErrUnknownLine is returned by Level for a line that was not acquired.
	ErrUnknownLine = errors.New("gpio: line not acquired")
)

// parseValue decodes a sysfs value read: exactly two bytes, the first being
// '0' or '1' and the second the newline.
func parseValue(buf []byte) (int, error) {
	if len(buf) != 2 {
		return -1, fmt.Errorf("%w: read %d bytes", ErrMalformedRead, len(buf))
	}
	switch buf[0] {
	case '0':
		return 0, nil
	case '1':
		return 1, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrMalformedRead, buf)
}

// orderReady returns the lines present in ready, in the order of lines.
func orderReady(lines []int, ready map[int]bool) []int {
	if len(ready) == 0 {
		return nil
	}
	out := make([]int, 0, len(ready))
	for _, l := range lines {
		if ready[l] {
			out = append(out, l)
		}
	}
	return out
}
