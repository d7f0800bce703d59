//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// CdevWatcher watches lines through the Linux GPIO character device.
// Edge events arrive on the library's handler goroutine and are reduced to a
// readiness signal; all decisions stay on the caller's goroutine.
type CdevWatcher struct {
	chip   *gpiocdev.Chip
	lines  []int
	reqs   map[int]*gpiocdev.Line
	events chan int
}

// NewCdevWatcher requests lines on chip as inputs with both-edge detection.
// On failure every line requested so far is released.
func NewCdevWatcher(chipName string, lines []int, bias Bias) (*CdevWatcher, error) {
	biasOpt, err := biasOption(bias)
	if err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &CdevWatcher{
		chip:   chip,
		reqs:   make(map[int]*gpiocdev.Line, len(lines)),
		events: make(chan int, 64),
	}
	for _, l := range lines {
		line, err := chip.RequestLine(l,
			gpiocdev.AsInput,
			biasOpt,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(w.handle),
		)
		if err != nil {
			if cerr := w.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return nil, fmt.Errorf("request line %d: %w", l, err)
		}
		w.reqs[l] = line
		w.lines = append(w.lines, l)
	}
	return w, nil
}

func biasOption(b Bias) (gpiocdev.LineReqOption, error) {
	switch b {
	case BiasAsIs, "":
		return gpiocdev.WithBiasAsIs, nil
	case BiasDisabled:
		return gpiocdev.WithBiasDisabled, nil
	case BiasPullUp:
		return gpiocdev.WithPullUp, nil
	case BiasPullDown:
		return gpiocdev.WithPullDown, nil
	}
	return nil, fmt.Errorf("gpio: unknown bias %q", b)
}

func (w *CdevWatcher) handle(evt gpiocdev.LineEvent) {
	select {
	case w.events <- evt.Offset:
	default:
		// Channel full: the line is already marked ready.
	}
}

// Lines returns the watched lines in acquisition order.
func (w *CdevWatcher) Lines() []int {
	return append([]int(nil), w.lines...)
}

// Wait blocks for the first edge event, then drains whatever else is queued.
func (w *CdevWatcher) Wait(timeout time.Duration) ([]int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ready := make(map[int]bool)
	select {
	case off := <-w.events:
		ready[off] = true
	case <-timer.C:
		return nil, nil
	}

	for {
		select {
		case off := <-w.events:
			ready[off] = true
		default:
			return orderReady(w.lines, ready), nil
		}
	}
}

// Level reads the current value of line.
func (w *CdevWatcher) Level(line int) (int, error) {
	req, ok := w.reqs[line]
	if !ok {
		return -1, fmt.Errorf("%w: %d", ErrUnknownLine, line)
	}
	v, err := req.Value()
	if err != nil {
		return -1, fmt.Errorf("read line %d: %w", line, err)
	}
	if v != 0 && v != 1 {
		return -1, fmt.Errorf("%w: line %d value %d", ErrMalformedRead, line, v)
	}
	return v, nil
}

// Close disables edge detection and releases every line, then the chip.
func (w *CdevWatcher) Close() error {
	var errs []error

	for _, l := range w.lines {
		req := w.reqs[l]
		// Stop edge events before release so nothing arrives mid-shutdown.
		if err := req.Reconfigure(gpiocdev.AsInput, gpiocdev.WithoutEdges); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l, err))
		}
		if err := req.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l, err))
		}
	}
	w.lines = nil
	w.reqs = nil

	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	return errors.Join(errs...)
}
