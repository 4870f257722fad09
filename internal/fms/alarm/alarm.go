// Package alarm implements the in-memory alarm engine: active/historic
// alarm collections with throw/release/clear lifecycle and the
// is-this-target-faulted query that feeds match abort.
package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/scope"
)

// Kind classifies the severity of an alarm. Only Fault alarms can force
// a match abort.
type Kind int

const (
	Info Kind = iota
	Warning
	Fault
)

// Alarm is a single alarm record. Once constructed it is immutable
// except for the Released flag, which the engine flips in place.
type Alarm struct {
	ID             string
	Kind           Kind
	Code           string
	Description    string
	SourceID       string
	TargetScope    string
	Timestamp      time.Time
	Released       bool
	AutoClear      bool
	RequireRelease bool
}

// Observer is notified of every alarm transition. The alarm audit store
// (internal/fms/alarmstore) implements this; tests and the zero value
// use a no-op observer.
type Observer interface {
	OnThrown(Alarm)
	OnReleased(Alarm)
	OnCleared(Alarm)
}

type noopObserver struct{}

func (noopObserver) OnThrown(Alarm)   {}
func (noopObserver) OnReleased(Alarm) {}
func (noopObserver) OnCleared(Alarm)  {}

// Engine holds the active/historic alarm sets behind a single
// read/write lock, per spec §5's "Alarm engine: single read/write
// lock" rule.
type Engine struct {
	mu       sync.RWMutex
	active   []Alarm
	historic []Alarm
	observer Observer
}

// NewEngine returns an empty engine. A nil observer is replaced with a
// no-op.
func NewEngine(observer Observer) *Engine {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Engine{observer: observer}
}

// Throw appends a new active alarm. It fails if code is already active,
// or if autoClear is requested without requireRelease (spec §4.3, §8's
// "throw(...,require_release=false,auto_clear=true) always fails").
func (e *Engine) Throw(kind Kind, code, description, sourceID, targetScope string, requireRelease, autoClear bool) (Alarm, error) {
	if autoClear && !requireRelease {
		return Alarm{}, fmt.Errorf("alarm %q: auto_clear requires require_release", code)
	}
	e.mu.Lock()
	for _, a := range e.active {
		if a.Code == code {
			e.mu.Unlock()
			return Alarm{}, fmt.Errorf("alarm %q: already active", code)
		}
	}
	a := Alarm{
		ID:             uuid.NewString(),
		Kind:           kind,
		Code:           code,
		Description:    description,
		SourceID:       sourceID,
		TargetScope:    targetScope,
		Timestamp:      time.Now(),
		Released:       !requireRelease,
		AutoClear:      autoClear,
		RequireRelease: requireRelease,
	}
	e.active = append(e.active, a)
	e.mu.Unlock()
	e.observer.OnThrown(a)
	return a, nil
}

// Release marks the active alarm with the given code as released. If
// the alarm auto-clears, Release immediately invokes Clear on it.
//
// The write lock is dropped before the recursive Clear call (the
// canonical resolution the source engine uses for this re-entry: do
// the release mutation, release the guard, then clear, which
// re-acquires) rather than held across it.
func (e *Engine) Release(code string) error {
	e.mu.Lock()
	idx := -1
	for i, a := range e.active {
		if a.Code == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("alarm %q: not active", code)
	}
	e.active[idx].Released = true
	autoClear := e.active[idx].AutoClear
	released := e.active[idx]
	e.mu.Unlock()

	e.observer.OnReleased(released)

	if autoClear {
		_, err := e.Clear(code)
		return err
	}
	return nil
}

// Clear moves a released active alarm to historic. It fails if the code
// isn't active; returns (false, nil) if the alarm hasn't been released
// yet (no-op, not an error).
func (e *Engine) Clear(code string) (bool, error) {
	e.mu.Lock()
	idx := -1
	for i, a := range e.active {
		if a.Code == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false, fmt.Errorf("alarm %q: not active", code)
	}
	if !e.active[idx].Released {
		e.mu.Unlock()
		return false, nil
	}
	a := e.active[idx]
	e.active = append(e.active[:idx], e.active[idx+1:]...)
	e.historic = append(e.historic, a)
	e.mu.Unlock()

	e.observer.OnCleared(a)
	return true, nil
}

// ClearAll clears every currently-active alarm, returning true iff
// every one cleared successfully.
func (e *Engine) ClearAll() bool {
	e.mu.RLock()
	codes := make([]string, len(e.active))
	for i, a := range e.active {
		codes[i] = a.Code
	}
	e.mu.RUnlock()

	ok := true
	for _, c := range codes {
		cleared, err := e.Clear(c)
		if err != nil || !cleared {
			ok = false
		}
	}
	return ok
}

// Active returns a snapshot of the active alarm set.
func (e *Engine) Active() []Alarm {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alarm, len(e.active))
	copy(out, e.active)
	return out
}

// Historic returns a snapshot of the historic alarm set.
func (e *Engine) Historic() []Alarm {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alarm, len(e.historic))
	copy(out, e.historic)
	return out
}

// IsTargetFaulted reports whether any active Fault alarm's scope
// covers target. This is a pure read and takes only the read lock,
// resolving spec §9's flagged draft discrepancy in favor of the
// stricter (read-lock) interpretation.
func (e *Engine) IsTargetFaulted(target string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, a := range e.active {
		if a.Kind == Fault && scope.Matches(a.TargetScope, target) {
			return true
		}
	}
	return false
}
