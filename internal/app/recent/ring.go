// Package recent keeps the last N raw messages for late-joining viewers.
package recent

import "sync"

const DefaultCapacity = 10

// Ring is a fixed-capacity buffer that overwrites its oldest entry.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	size  int
}

func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
	r.mu.Unlock()
}

// Snapshot returns up to limit entries, newest first. limit <= 0 means all.
func (r *Ring[T]) Snapshot(limit int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.items)) % len(r.items)
		out[i] = r.items[idx]
	}
	return out
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *Ring[T]) Cap() int { return len(r.items) }
