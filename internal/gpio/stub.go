//go:build !linux

package gpio

import "time"

// SysfsWatcher is not available on non-Linux platforms.
type SysfsWatcher struct{}

// NewSysfsWatcher returns ErrUnsupported on non-Linux platforms.
func NewSysfsWatcher(root string, lines []int) (*SysfsWatcher, error) {
	return nil, ErrUnsupported
}

func (w *SysfsWatcher) Lines() []int                      { return nil }
func (w *SysfsWatcher) Wait(time.Duration) ([]int, error) { return nil, ErrUnsupported }
func (w *SysfsWatcher) Level(int) (int, error)            { return -1, ErrUnsupported }
func (w *SysfsWatcher) Close() error                      { return nil }

// CdevWatcher is not available on non-Linux platforms.
type CdevWatcher struct{}

// NewCdevWatcher returns ErrUnsupported on non-Linux platforms.
func NewCdevWatcher(chipName string, lines []int, bias Bias) (*CdevWatcher, error) {
	return nil, ErrUnsupported
}

func (w *CdevWatcher) Lines() []int                      { return nil }
func (w *CdevWatcher) Wait(time.Duration) ([]int, error) { return nil, ErrUnsupported }
func (w *CdevWatcher) Level(int) (int, error)            { return -1, ErrUnsupported }
func (w *CdevWatcher) Close() error                      { return nil }
