package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// shutdown is the run flag shared with the event loop. It is cleared once
// by the first termination signal.
type shutdown struct {
	running atomic.Bool

	mu     sync.Mutex
	reason string
	stop   func()
}

func newShutdown() *shutdown {
	s := &shutdown{reason: "UNKNOWN", stop: func() {}}
	s.running.Store(true)
	return s
}

// watchSignals takes over the termination signals. From here on a signal
// clears the run flag instead of killing the process, so every acquired
// resource is released on the way out.
func watchSignals(logger *slog.Logger) *shutdown {
	s := newShutdown()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, terminationSignals...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			logger.Info("shutting down", "signal", sig)
			s.request(signalName(sig))
		case <-done:
		}
	}()

	var once sync.Once
	s.stop = func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
	return s
}

func (s *shutdown) request(reason string) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	s.running.Store(false)
}

// Requested reports whether shutdown has been asked for.
func (s *shutdown) Requested() bool {
	return !s.running.Load()
}

// Reason names the signal that requested shutdown.
func (s *shutdown) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stop restores default signal handling.
func (s *shutdown) Stop() {
	s.stop()
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	}
	return "UNKNOWN"
}
