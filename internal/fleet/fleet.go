// Package fleet implements the Container Manager (§4.10): a process-wide
// directory of Execution Containers keyed by a monotonically increasing
// id, with name lookup, deletion gated on STOPPED, and orderly shutdown
// of the whole fleet.
//
// Grounded on the teacher's system/core Registry (map[string]ServiceModule
// behind a mutex, ordered iteration) generalised from named service
// modules to numbered simulation containers.
package fleet

import (
	"sort"
	"sync"

	"github.com/simfleet/simfleet/internal/container"
	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/simmetrics"
)

// Manager is the fleet-wide directory of containers.
type Manager struct {
	mu     sync.Mutex
	byID   map[int64]*container.Container
	nextID int64
	log    *logging.Logger
	mtr    *simmetrics.Metrics
}

// New builds an empty Manager.
func New(log *logging.Logger, mtr *simmetrics.Metrics) *Manager {
	if log == nil {
		log = logging.Default
	}
	if mtr == nil {
		mtr = simmetrics.New()
	}
	return &Manager{byID: make(map[int64]*container.Container), log: log, mtr: mtr}
}

// CreateContainer allocates a new container id, builds a Container in the
// CREATED state, and registers it in the directory. The caller is
// responsible for calling Start.
func (m *Manager) CreateContainer(cfg container.Config) *container.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := container.New(m.nextID, cfg, m.log, m.mtr)
	m.byID[c.ID] = c
	return c
}

// Get looks up a container by id.
func (m *Manager) Get(id int64) (*container.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, simerr.NotFoundf("container %d", id)
	}
	return c, nil
}

// GetByName looks up a container by name via a linear scan (§4.10).
func (m *Manager) GetByName(name string) (*container.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, simerr.NotFoundf("container named %q", name)
}

// List returns every container in the fleet, ordered by id.
func (m *Manager) List() []*container.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*container.Container, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteContainer removes id from the directory. Rejected INVALID_STATE
// unless the container is STOPPED.
func (m *Manager) DeleteContainer(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return simerr.NotFoundf("container %d", id)
	}
	if c.Status() != container.Stopped {
		return simerr.InvalidStatef("delete requires a STOPPED container, %d is %s", id, c.Status())
	}
	delete(m.byID, id)
	return nil
}

// ShutdownAll calls Shutdown on every container, swallowing per-container
// panics/errors (Shutdown itself never returns one), then clears the
// directory (§4.10 "shutdownAll").
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	containers := make([]*container.Container, 0, len(m.byID))
	for _, c := range m.byID {
		containers = append(containers, c)
	}
	m.mu.Unlock()

	for _, c := range containers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.ForContainer(c.ID, c.Name).WithField("panic", r).Warn("panic during container shutdown, continuing fleet shutdown")
				}
			}()
			c.Shutdown()
		}()
	}

	m.mu.Lock()
	m.byID = make(map[int64]*container.Container)
	m.mu.Unlock()
}

// Count returns the number of containers currently in the directory.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
