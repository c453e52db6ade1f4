package notify

import (
	"context"
	"slices"
	"sync"
)

// Role is the kind of client holding a session.
type Role string

// Role values.
const (
	RoleDirector Role = "director"
	RolePlayer   Role = "player"
)

var _ SessionRegistry = (*Registry)(nil)

type sessions struct {
	directors int
	players   int
}

// Registry is an in-memory SessionRegistry fed by the connection layer.
type Registry struct {
	mu     sync.RWMutex
	worlds map[string]*sessions
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{worlds: make(map[string]*sessions)}
}

// Connect records a new session for worldID.
func (r *Registry) Connect(worldID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.worlds[worldID]
	if !ok {
		s = &sessions{}
		r.worlds[worldID] = s
	}
	if role == RoleDirector {
		s.directors++
	} else {
		s.players++
	}
}

// Disconnect drops one session. Worlds with no sessions left are forgotten.
func (r *Registry) Disconnect(worldID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.worlds[worldID]
	if !ok {
		return
	}
	if role == RoleDirector {
		s.directors = max(s.directors-1, 0)
	} else {
		s.players = max(s.players-1, 0)
	}
	if s.directors == 0 && s.players == 0 {
		delete(r.worlds, worldID)
	}
}

// ListActiveWorldIDs returns worlds with at least one session, sorted.
func (r *Registry) ListActiveWorldIDs(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.worlds))
	for id := range r.worlds {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (r *Registry) HasDirectorConnected(_ context.Context, worldID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.worlds[worldID]
	return ok && s.directors > 0, nil
}
