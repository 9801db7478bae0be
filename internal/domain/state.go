package domain

import "time"

// VariableState is the latest known value of one (module, variable) key.
type VariableState struct {
	Module     string    `json:"module"`
	Variable   string    `json:"variable"`
	Value      string    `json:"value"`
	LastUpdate time.Time `json:"last_update"`
}

// Snapshot is the current-value view: module -> variable -> state.
type Snapshot map[string]map[string]VariableState

// Clone returns a deep copy that shares nothing with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for module, vars := range s {
		cp := make(map[string]VariableState, len(vars))
		for name, st := range vars {
			cp[name] = st
		}
		out[module] = cp
	}
	return out
}

// Len returns the number of variables across all modules.
func (s Snapshot) Len() int {
	n := 0
	for _, vars := range s {
		n += len(vars)
	}
	return n
}
