package agent

import (
	"sync"
	"sync/atomic"
)

// Signal is a run-wide stop flag. Raising it is idempotent; agents poll
// Stopped at step boundaries and wake on Done while thinking.
type Signal struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
	reason  atomic.Value
}

// NewSignal returns a lowered flag.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Stop raises the flag. The first reason wins.
func (s *Signal) Stop(reason string) {
	s.once.Do(func() {
		s.reason.Store(reason)
		s.stopped.Store(true)
		close(s.done)
	})
}

// Stopped reports whether the flag is raised.
func (s *Signal) Stopped() bool { return s.stopped.Load() }

// Done is closed when the flag is raised.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Reason returns the reason passed to the first Stop call.
func (s *Signal) Reason() string {
	if r, ok := s.reason.Load().(string); ok {
		return r
	}
	return ""
}
