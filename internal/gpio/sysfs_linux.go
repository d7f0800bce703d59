//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type writeFunc func(path, value string) error

func writeControl(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

// SysfsWatcher watches lines through the legacy /sys/class/gpio interface.
// Each line is exported, configured as an input with interrupts on both edges,
// and waited on with POLLPRI on its value file.
type SysfsWatcher struct {
	root     string
	write    writeFunc
	lines    []int
	exported []int
	files    []*os.File
	fds      []unix.PollFd
	drainBuf []byte
}

// NewSysfsWatcher acquires lines under root (normally DefaultSysfsRoot).
// On failure every line acquired so far is released.
func NewSysfsWatcher(root string, lines []int) (*SysfsWatcher, error) {
	return openSysfs(root, lines, writeControl)
}

func openSysfs(root string, lines []int, write writeFunc) (*SysfsWatcher, error) {
	w := &SysfsWatcher{
		root:     root,
		write:    write,
		drainBuf: make([]byte, 64),
	}
	for _, l := range lines {
		if err := w.acquire(l); err != nil {
			if cerr := w.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return nil, err
		}
	}
	w.fds = make([]unix.PollFd, len(w.files))
	return w, nil
}

func (w *SysfsWatcher) linePath(line int, name string) string {
	return filepath.Join(w.root, "gpio"+strconv.Itoa(line), name)
}

func (w *SysfsWatcher) acquire(line int) error {
	id := strconv.Itoa(line)
	if err := w.write(filepath.Join(w.root, "export"), id); err != nil {
		// EBUSY means a previous run left the line exported; take it over.
		if !errors.Is(err, syscall.EBUSY) {
			return fmt.Errorf("export line %d: %w", line, err)
		}
	}
	w.exported = append(w.exported, line)

	if err := w.write(w.linePath(line, "direction"), "in"); err != nil {
		return fmt.Errorf("set direction of line %d: %w", line, err)
	}
	// Both edges: contact bounce makes a single configured edge unreliable.
	if err := w.write(w.linePath(line, "edge"), "both"); err != nil {
		return fmt.Errorf("set edge of line %d: %w", line, err)
	}

	f, err := os.OpenFile(w.linePath(line, "value"), os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open value of line %d: %w", line, err)
	}
	w.files = append(w.files, f)
	w.lines = append(w.lines, line)

	// Clear the initial pending status so the first poll waits for a real edge.
	w.drain(f)
	return nil
}

func (w *SysfsWatcher) drain(f *os.File) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	_, _ = f.Read(w.drainBuf)
}

// Lines returns the watched lines in acquisition order.
func (w *SysfsWatcher) Lines() []int {
	return append([]int(nil), w.lines...)
}

// Wait polls every value file for POLLPRI.
func (w *SysfsWatcher) Wait(timeout time.Duration) ([]int, error) {
	for i, f := range w.files {
		w.fds[i] = unix.PollFd{Fd: int32(f.Fd()), Events: unix.POLLPRI | unix.POLLERR}
	}

	n, err := unix.Poll(w.fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	var ready []int
	for i, fd := range w.fds {
		if fd.Revents&(unix.POLLPRI|unix.POLLERR) != 0 {
			w.drain(w.files[i])
			ready = append(ready, w.lines[i])
		}
	}
	return ready, nil
}

// Level reads the line's value file afresh.
func (w *SysfsWatcher) Level(line int) (int, error) {
	f, err := os.Open(w.linePath(line, "value"))
	if err != nil {
		return -1, fmt.Errorf("open value of line %d: %w", line, err)
	}
	defer f.Close()

	buf := make([]byte, 3)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return -1, fmt.Errorf("read value of line %d: %w", line, err)
	}
	return parseValue(buf[:n])
}

// Close closes every value file and unexports every exported line.
func (w *SysfsWatcher) Close() error {
	var errs []error

	for i, f := range w.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close value of line %d: %w", w.lines[i], err))
		}
	}
	w.files = nil

	for _, l := range w.exported {
		if err := w.write(filepath.Join(w.root, "unexport"), strconv.Itoa(l)); err != nil {
			errs = append(errs, fmt.Errorf("unexport line %d: %w", l, err))
		}
	}
	w.exported = nil

	return errors.Join(errs...)
}
