// Package gate decides which upserts reach durable storage.
package gate

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum spacing between two persisted writes of an unchanged value.
const DefaultWindow = 5 * time.Second

// Entry is what the gate remembers per key. Entries are never evicted.
type Entry struct {
	LastPersistedAt    time.Time
	LastPersistedValue string
}

// Gate persists a write when the value changed or the window has elapsed.
type Gate struct {
	window time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
}

func New(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{window: window, entries: make(map[string]Entry)}
}

// Key builds the "module:variable" key.
func Key(module, variable string) string {
	return module + ":" + variable
}

func (g *Gate) ShouldPersist(key, value string, now time.Time) bool {
	g.mu.RLock()
	e, ok := g.entries[key]
	g.mu.RUnlock()

	if !ok {
		return true
	}
	return value != e.LastPersistedValue || now.Sub(e.LastPersistedAt) >= g.window
}

// MarkPersisted records an accepted write. Calling it twice with the same
// arguments leaves the entry unchanged.
func (g *Gate) MarkPersisted(key, value string, now time.Time) {
	g.mu.Lock()
	g.entries[key] = Entry{LastPersistedAt: now, LastPersistedValue: value}
	g.mu.Unlock()
}

func (g *Gate) Lookup(key string) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[key]
	return e, ok
}

func (g *Gate) Window() time.Duration { return g.window }

func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}
