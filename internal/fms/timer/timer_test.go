package timer

import (
	"testing"
	"time"
)

func TestNewStopped(t *testing.T) {
	dt := New(150*time.Second, false)
	if dt.IsRunning() {
		t.Fatalf("expected stopped timer")
	}
	if dt.Remaining() != 150*time.Second {
		t.Errorf("got %v, want 150s", dt.Remaining())
	}
}

func TestStartThenRemainingDecreases(t *testing.T) {
	dt := New(2*time.Second, true)
	if !dt.IsRunning() {
		t.Fatalf("expected running timer")
	}
	time.Sleep(10 * time.Millisecond)
	if dt.Remaining() >= 2*time.Second {
		t.Errorf("expected remaining to have ticked down, got %v", dt.Remaining())
	}
	if dt.Remaining() <= 0 {
		t.Errorf("expected remaining still positive, got %v", dt.Remaining())
	}
}

func TestRemainingClampsToZero(t *testing.T) {
	dt := New(1*time.Millisecond, true)
	time.Sleep(10 * time.Millisecond)
	if dt.Remaining() != 0 {
		t.Errorf("expected clamp to zero, got %v", dt.Remaining())
	}
}

func TestStopFreezes(t *testing.T) {
	dt := New(5*time.Second, true)
	time.Sleep(10 * time.Millisecond)
	stopped := dt.Stop()
	if stopped.IsRunning() {
		t.Fatalf("expected stopped")
	}
	r1 := stopped.Remaining()
	time.Sleep(10 * time.Millisecond)
	r2 := stopped.Remaining()
	if r1 != r2 {
		t.Errorf("stopped timer's remaining changed: %v -> %v", r1, r2)
	}
}

func TestStopStartRoundTrip(t *testing.T) {
	dt := New(10*time.Second, true)
	time.Sleep(5 * time.Millisecond)
	// Sample the original before stopping: the stopped interval is not
	// counted, so the restarted timer must not be ahead of this value.
	original := dt.Remaining()
	restarted := dt.Stop().Start()
	if got := restarted.Remaining(); got > original {
		t.Errorf("restarted remaining %v should not exceed original %v", got, original)
	}
}

func TestStopAtMomentOfStopMatchesCurrent(t *testing.T) {
	dt := New(10*time.Second, true)
	before := dt.Remaining()
	stopped := dt.Stop()
	after := stopped.Remaining()
	if before < after {
		t.Errorf("stop should not increase remaining: before=%v after=%v", before, after)
	}
}
