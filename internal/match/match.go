// Package match implements the Match Registry (§4.9): CRUD over match
// records bound to one container.
package match

import (
	"sort"
	"sync"

	"github.com/simfleet/simfleet/internal/simerr"
)

// Match is the natural scoping unit for entity filtering (§3): created
// inside one container, optionally naming which modules and AIs are
// enabled for it.
type Match struct {
	ID             int64
	ContainerID    int64
	EnabledModules []string
	EnabledAIs     []string
}

// ContainerStatusFunc reports whether the owning container is currently
// RUNNING; createMatch is rejected on any other status (§4.9).
type ContainerStatusFunc func() bool

// Registry is the per-container match CRUD store.
type Registry struct {
	mu          sync.Mutex
	containerID int64
	isRunning   ContainerStatusFunc
	byID        map[int64]*Match
	nextID      int64
}

// New builds a match Registry stamping containerID on every created
// match, rejecting creation whenever isRunning returns false.
func New(containerID int64, isRunning ContainerStatusFunc) *Registry {
	return &Registry{containerID: containerID, isRunning: isRunning, byID: make(map[int64]*Match)}
}

// CreateMatch stamps the current container id on m, assigns it an id, and
// persists it. Rejected INVALID_STATE when the container is not RUNNING.
func (r *Registry) CreateMatch(m Match) (Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning != nil && !r.isRunning() {
		return Match{}, simerr.InvalidStatef("cannot create a match on a non-running container")
	}
	r.nextID++
	m.ID = r.nextID
	m.ContainerID = r.containerID
	r.byID[m.ID] = &m
	return m, nil
}

// Get looks up a match by id.
func (r *Registry) Get(id int64) (Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return Match{}, simerr.NotFoundf("match %d", id)
	}
	return *m, nil
}

// List returns every match, ordered by id.
func (r *Registry) List() []Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Match, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes a match by id.
func (r *Registry) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return simerr.NotFoundf("match %d", id)
	}
	delete(r.byID, id)
	return nil
}
