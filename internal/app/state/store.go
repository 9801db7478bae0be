// Package state holds the authoritative current-value snapshot.
package state

import (
	"sync"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

// Store has a single writer (the ingestion goroutine) and any number of
// readers. Readers always get a deep copy.
type Store struct {
	mu      sync.RWMutex
	modules domain.Snapshot
}

func New() *Store {
	return &Store{modules: make(domain.Snapshot)}
}

// Upsert overwrites the value of (module, variable) unconditionally.
func (s *Store) Upsert(module, variable, value string, ts time.Time) domain.VariableState {
	st := domain.VariableState{Module: module, Variable: variable, Value: value, LastUpdate: ts}

	s.mu.Lock()
	vars, ok := s.modules[module]
	if !ok {
		vars = make(map[string]domain.VariableState)
		s.modules[module] = vars
	}
	vars[variable] = st
	s.mu.Unlock()

	return st
}

// Tombstone removes the key and drops the module once it has no variables.
// It reports whether anything was removed.
func (s *Store) Tombstone(module, variable string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars, ok := s.modules[module]
	if !ok {
		return false
	}
	if _, ok := vars[variable]; !ok {
		return false
	}
	delete(vars, variable)
	if len(vars) == 0 {
		delete(s.modules, module)
	}
	return true
}

func (s *Store) Get(module, variable string) (domain.VariableState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.modules[module][variable]
	return st, ok
}

func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules.Clone()
}

// Len is the number of tracked variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules.Len()
}
