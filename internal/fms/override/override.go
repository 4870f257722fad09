// Package override implements the field-level enable/e-stop override
// registry referenced by spec §4.6's control-byte bits ("enabled and
// not field-overridden-disabled", "e-stopped or field-overridden-
// estopped") but not spelled out as its own component in the core spec.
// It is grounded on original_source/src/control's enabler/estopper
// subsystem, reworked onto the scope matcher this module already has
// instead of that source's separate plugin-ID map.
package override

import (
	"sync"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/scope"
)

type entry struct {
	scope string
	value bool
}

// Registry holds two independent scoped override sets: disable and
// e-stop. Both default to "no override in effect" when empty —
// deliberately not replicating the source's is_ds_estopped() bug,
// which returned true with no estoppers registered (spec §9).
type Registry struct {
	mu        sync.RWMutex
	disabled  []entry
	estopped  []entry
}

func New() *Registry {
	return &Registry{}
}

// SetDisabled installs (or updates) a disable override for scope.
func (r *Registry) SetDisabled(targetScope string, value bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = upsert(r.disabled, targetScope, value)
}

// SetEstopped installs (or updates) an e-stop override for scope.
func (r *Registry) SetEstopped(targetScope string, value bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.estopped = upsert(r.estopped, targetScope, value)
}

// ClearDisabled removes any disable override for scope.
func (r *Registry) ClearDisabled(targetScope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = remove(r.disabled, targetScope)
}

// ClearEstopped removes any e-stop override for scope.
func (r *Registry) ClearEstopped(targetScope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.estopped = remove(r.estopped, targetScope)
}

// IsDisabled reports whether any active disable override's scope
// covers target.
func (r *Registry) IsDisabled(target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return anyMatches(r.disabled, target)
}

// IsEstopped reports whether any active e-stop override's scope covers
// target. Returns false, not true, when no overrides are registered.
func (r *Registry) IsEstopped(target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return anyMatches(r.estopped, target)
}

func anyMatches(entries []entry, target string) bool {
	for _, e := range entries {
		if e.value && scope.Matches(e.scope, target) {
			return true
		}
	}
	return false
}

func upsert(entries []entry, s string, v bool) []entry {
	for i, e := range entries {
		if e.scope == s {
			entries[i].value = v
			return entries
		}
	}
	return append(entries, entry{scope: s, value: v})
}

func remove(entries []entry, s string) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.scope != s {
			out = append(out, e)
		}
	}
	return out
}
