package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestArmFires(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var fired atomic.Int32
	s.Arm(1, time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	if s.Armed(1) {
		t.Error("timer still armed after firing")
	}
}

func TestArmPastInstantFiresPromptly(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var fired atomic.Int32
	s.Arm(1, time.Now().Add(-time.Hour), func() { fired.Add(1) })

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
}

func TestRearmCancelsPrevious(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var old, renewed atomic.Int32
	s.Arm(1, time.Now().Add(30*time.Millisecond), func() { old.Add(1) })
	s.Arm(1, time.Now().Add(80*time.Millisecond), func() { renewed.Add(1) })

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1 (one armed timer per key)", s.Len())
	}

	waitFor(t, time.Second, func() bool { return renewed.Load() == 1 })
	if old.Load() != 0 {
		t.Errorf("superseded timer fired %d times, want 0", old.Load())
	}
}

func TestCancel(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var fired atomic.Int32
	s.Arm(1, time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	s.Cancel(1)

	if s.Armed(1) {
		t.Error("timer armed after cancel")
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("cancelled timer fired %d times, want 0", fired.Load())
	}
}

func TestCancelAbsentIsNoop(t *testing.T) {
	s := New(nil)
	s.Cancel(42) // must not panic or error
}

func TestCallbackPanicIsContained(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var survived atomic.Int32
	s.Arm(1, time.Now().Add(10*time.Millisecond), func() { panic("boom") })
	s.Arm(2, time.Now().Add(40*time.Millisecond), func() { survived.Add(1) })

	waitFor(t, time.Second, func() bool { return survived.Load() == 1 })
}

func TestRearmFromInsideCallback(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	var second atomic.Int32
	s.Arm(1, time.Now().Add(10*time.Millisecond), func() {
		s.Arm(1, time.Now().Add(10*time.Millisecond), func() { second.Add(1) })
	})

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
}

func TestCancelFromInsideCallback(t *testing.T) {
	s := New(nil)
	defer s.StopAll()

	done := make(chan struct{})
	s.Arm(1, time.Now().Add(10*time.Millisecond), func() {
		s.Cancel(1) // already fired: must be a harmless no-op
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not complete")
	}
}

func TestStopAll(t *testing.T) {
	s := New(nil)

	var fired atomic.Int32
	s.Arm(1, time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	s.Arm(2, time.Now().Add(30*time.Millisecond), func() { fired.Add(1) })
	s.StopAll()

	if s.Len() != 0 {
		t.Errorf("len = %d after StopAll, want 0", s.Len())
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("timers fired %d times after StopAll, want 0", fired.Load())
	}
}
