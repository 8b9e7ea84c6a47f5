// Package snapshot provides a copy-on-write map whose readers always see a
// consistent immutable snapshot. Writers clone the current map, apply their
// change, and install the clone with a compare-and-swap; readers never block
// writers and vice versa.
//
// Two writers racing on the same key are last-writer-wins: the CAS loop
// serializes whole-map installs, not per-key updates. Callers keep their
// updates idempotent merges so the interleaving is harmless.
package snapshot

import "sync/atomic"

// Map is a copy-on-write map from string keys to values of type V.
// The zero value is not usable; call NewMap.
type Map[V any] struct {
	p atomic.Pointer[map[string]V]
}

// NewMap creates an empty snapshot map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	empty := make(map[string]V)
	m.p.Store(&empty)
	return m
}

// Get returns the value for key from the current snapshot.
func (m *Map[V]) Get(key string) (V, bool) {
	snap := *m.p.Load()
	v, ok := snap[key]
	return v, ok
}

// Snapshot returns the current map. Callers must not mutate it.
func (m *Map[V]) Snapshot() map[string]V {
	return *m.p.Load()
}

// Len returns the number of entries in the current snapshot.
func (m *Map[V]) Len() int {
	return len(*m.p.Load())
}

// Update applies fn to the value under key (zero value if absent) and
// installs the result. If fn returns false the map is left unchanged.
func (m *Map[V]) Update(key string, fn func(cur V, ok bool) (V, bool)) bool {
	for {
		old := m.p.Load()
		cur, ok := (*old)[key]
		next, write := fn(cur, ok)
		if !write {
			return false
		}
		clone := make(map[string]V, len(*old)+1)
		for k, v := range *old {
			clone[k] = v
		}
		clone[key] = next
		if m.p.CompareAndSwap(old, &clone) {
			return true
		}
	}
}

// Set stores value under key unconditionally.
func (m *Map[V]) Set(key string, value V) {
	m.Update(key, func(V, bool) (V, bool) { return value, true })
}

// Delete removes key. Returns whether the key was present.
func (m *Map[V]) Delete(key string) bool {
	for {
		old := m.p.Load()
		if _, ok := (*old)[key]; !ok {
			return false
		}
		clone := make(map[string]V, len(*old))
		for k, v := range *old {
			if k != key {
				clone[k] = v
			}
		}
		if m.p.CompareAndSwap(old, &clone) {
			return true
		}
	}
}

// DeleteFunc removes every key for which match returns true and reports
// how many entries were removed.
func (m *Map[V]) DeleteFunc(match func(key string, value V) bool) int {
	for {
		old := m.p.Load()
		clone := make(map[string]V, len(*old))
		removed := 0
		for k, v := range *old {
			if match(k, v) {
				removed++
				continue
			}
			clone[k] = v
		}
		if removed == 0 {
			return 0
		}
		if m.p.CompareAndSwap(old, &clone) {
			return removed
		}
	}
}

// Transform applies fn to a clone of the current snapshot and installs
// the result in one compare-and-swap, so readers see either the old map
// or the fully transformed one, never an intermediate state.
func (m *Map[V]) Transform(fn func(clone map[string]V)) {
	for {
		old := m.p.Load()
		clone := make(map[string]V, len(*old))
		for k, v := range *old {
			clone[k] = v
		}
		fn(clone)
		if m.p.CompareAndSwap(old, &clone) {
			return
		}
	}
}

// Replace installs next as the new snapshot.
func (m *Map[V]) Replace(next map[string]V) {
	if next == nil {
		next = make(map[string]V)
	}
	m.p.Store(&next)
}
