// Package profile stores user preference flags keyed by a fixed profile key.
package profile

import (
	"sync"
)

// GuidelinesAcknowledgedKey is the preference flag set once the user has
// acknowledged the usage guidelines.
const GuidelinesAcknowledgedKey = "guidelines_acknowledged"

// Store is a simple key-value preference store. Values live for the
// process lifetime, matching the source system's session-scoped profile
// persistence.
type Store struct {
	mu    sync.RWMutex
	prefs map[string]map[string]string
}

// NewStore creates an empty preference store.
func NewStore() *Store {
	return &Store{prefs: make(map[string]map[string]string)}
}

// Get returns a preference value for a profile key.
func (s *Store) Get(profileKey, pref string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.prefs[profileKey]
	if !ok {
		return "", false
	}
	v, ok := m[pref]
	return v, ok
}

// Set stores a preference value for a profile key.
func (s *Store) Set(profileKey, pref, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.prefs[profileKey]
	if !ok {
		m = make(map[string]string)
		s.prefs[profileKey] = m
	}
	m[pref] = value
}

// All returns a copy of all preferences for a profile key.
func (s *Store) All(profileKey string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.prefs[profileKey]))
	for k, v := range s.prefs[profileKey] {
		out[k] = v
	}
	return out
}
