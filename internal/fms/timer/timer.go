// Package timer implements the match countdown: a value type whose
// on-the-wire representation (start instant + remaining snapshot) stays
// valid across observers without needing a push on every tick.
package timer

import "time"

// DiffTimer is either running (startedAt set) or stopped. Zero value is
// a stopped timer with zero remaining.
type DiffTimer struct {
	startedAt time.Time
	running   bool
	remaining time.Duration
}

// New returns a stopped timer carrying the given remaining duration; if
// startRunning is true, it is immediately started.
func New(remaining time.Duration, startRunning bool) DiffTimer {
	t := DiffTimer{remaining: remaining}
	if startRunning {
		return t.Start()
	}
	return t
}

// IsRunning reports whether the timer is currently counting down.
func (t DiffTimer) IsRunning() bool {
	return t.running
}

// Remaining returns the current remaining duration, clamped to zero.
// On a running timer this is derived from the monotonic start instant;
// on a stopped timer it is the frozen snapshot.
func (t DiffTimer) Remaining() time.Duration {
	if !t.running {
		if t.remaining < 0 {
			return 0
		}
		return t.remaining
	}
	elapsed := time.Since(t.startedAt)
	left := t.remaining - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Start returns a new running timer whose snapshot is the predecessor's
// current remaining duration. Starting an already-running timer is a
// no-op (returns an equivalent timer, not a rebased one).
func (t DiffTimer) Start() DiffTimer {
	if t.running {
		return t
	}
	return DiffTimer{
		startedAt: time.Now(),
		running:   true,
		remaining: t.Remaining(),
	}
}

// Stop freezes the timer at its current remaining duration.
func (t DiffTimer) Stop() DiffTimer {
	if !t.running {
		return t
	}
	return DiffTimer{remaining: t.Remaining()}
}

// WithRemaining returns a new timer carrying remaining, preserving the
// running/stopped state of the receiver.
func (t DiffTimer) WithRemaining(remaining time.Duration) DiffTimer {
	return New(remaining, t.running)
}
