package ecs

import "sync"

// LockingStore wraps an Interface with a single mutex, satisfying §5's
// requirement that the tick worker and on-demand snapshot readers never
// observe a torn row. A single-mutex implementation is explicitly
// acceptable per the concurrency model.
type LockingStore struct {
	mu   sync.Mutex
	inner Interface
}

// NewLocking wraps inner with mutex-protected access.
func NewLocking(inner Interface) *LockingStore {
	return &LockingStore{inner: inner}
}

func (l *LockingStore) CreateEntity(id EntityID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.CreateEntity(id)
}

func (l *LockingStore) CreateEntityForMatch(matchID int64) (EntityID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.CreateEntityForMatch(matchID)
}

func (l *LockingStore) DeleteEntity(id EntityID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.DeleteEntity(id)
}

func (l *LockingStore) AttachComponent(id EntityID, comp ComponentID, value float32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.AttachComponent(id, comp, value)
}

func (l *LockingStore) AttachComponents(id EntityID, values map[ComponentID]float32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.AttachComponents(id, values)
}

func (l *LockingStore) RemoveComponent(id EntityID, comp ComponentID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.RemoveComponent(id, comp)
}

func (l *LockingStore) GetComponent(id EntityID, comp ComponentID) (float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.GetComponent(id, comp)
}

func (l *LockingStore) GetComponents(id EntityID, comps []ComponentID) (map[ComponentID]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.GetComponents(id, comps)
}

func (l *LockingStore) HasComponent(id EntityID, comp ComponentID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.HasComponent(id, comp)
}

func (l *LockingStore) EntitiesWithComponents(comps ...ComponentID) (map[EntityID]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.EntitiesWithComponents(comps...)
}

func (l *LockingStore) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.Reset()
}

func (l *LockingStore) EntityCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.EntityCount()
}

func (l *LockingStore) MaxEntities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.MaxEntities()
}

func (l *LockingStore) MaxComponents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.MaxComponents()
}

var _ Interface = (*LockingStore)(nil)
