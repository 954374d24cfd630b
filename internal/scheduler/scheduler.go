// Package scheduler provides a registry of one-shot timers keyed by principal.
// It backs both subscription expiry and invite-link revocation.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler fires a callback at a specific future instant for a given key.
// At most one timer is armed per key: arming again replaces the old timer.
// All state is process-memory only; armed timers do not survive a restart.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	logger *slog.Logger
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers: make(map[int64]*time.Timer),
		logger: logger,
	}
}

// Arm schedules fn to run at fireAt for the given key, cancelling any timer
// already armed for that key. A fireAt in the past fires promptly rather than
// being skipped. fn runs on the timer goroutine; a panic inside it is caught
// and logged so one key's callback cannot take down the process.
func (s *Scheduler) Arm(key int64, fireAt time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
		delete(s.timers, key)
	}

	d := time.Until(fireAt)
	if d < 0 {
		d = 0
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		// A Cancel or re-Arm may have raced with the firing: the entry is
		// then gone or replaced, and this invocation must be dropped.
		cur, ok := s.timers[key]
		if !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		s.invoke(key, fn)
	})
	s.timers[key] = t
}

func (s *Scheduler) invoke(key int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled callback panicked", "key", key, "panic", r)
		}
	}()
	fn()
}

// Cancel stops any pending timer for the key. Cancelling an absent or
// already-fired timer is a no-op. Safe to call from inside the firing
// callback itself.
func (s *Scheduler) Cancel(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Armed reports whether a timer is currently pending for the key.
func (s *Scheduler) Armed(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll cancels every pending timer. Used at shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
