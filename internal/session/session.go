// Package session owns the cancellation of the current user-facing operation.
package session

import (
	"context"
	"sync"
)

// Session hands out one cancellable context per operation. Starting a new
// operation cancels the previous one; a cancelled context is never handed
// out again.
type Session struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// Begin cancels the running operation, if any, and returns a fresh context
// derived from parent. The returned done func releases it; calling done for a
// superseded operation has no effect on the newer one.
func (s *Session) Begin(parent context.Context) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	id := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		s.mu.Lock()
		if s.seq == id {
			s.cancel = nil
		}
		s.mu.Unlock()
	}
}

// Cancel aborts the running operation. It is safe to call at any time.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Active reports whether an operation is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
