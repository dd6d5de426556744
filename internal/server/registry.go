package server

import (
	"errors"
	"sort"
	"sync"
)

// maxIDAttempts bounds identifier regeneration after collisions.
const maxIDAttempts = 8

var (
	// ErrCapacityExceeded is returned when a join would exceed the player limit.
	ErrCapacityExceeded = errors.New("server: capacity exceeded")

	// ErrIDExhausted is returned when no free identifier could be generated.
	ErrIDExhausted = errors.New("server: could not allocate a unique player id")
)

// Registry maps player IDs to their active sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register allocates an ID for s and stores it. The capacity check, the
// collision check and the insert happen under one lock. taken reports IDs
// held elsewhere (the game state) that must not be reused.
func (r *Registry) Register(s *Session, maxPlayers int, taken func(id string) bool, newID func() string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if maxPlayers > 0 && len(r.sessions) >= maxPlayers {
		return "", ErrCapacityExceeded
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := newID()
		if id == "" {
			continue
		}
		if _, dup := r.sessions[id]; dup {
			continue
		}
		if taken != nil && taken(id) {
			continue
		}
		r.sessions[id] = s
		return id, nil
	}
	return "", ErrIDExhausted
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a copy of all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	return list
}

// IDs returns the sorted registered IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
