package ecs

import "sync"

// DirtyInfo is the per-match {added, modified, removed} entity set §4.3
// requires the dirty-tracking decorator to expose.
type DirtyInfo struct {
	Added    map[EntityID]struct{}
	Modified map[EntityID]struct{}
	Removed  map[EntityID]struct{}
}

func newDirtyInfo() *DirtyInfo {
	return &DirtyInfo{
		Added:    make(map[EntityID]struct{}),
		Modified: make(map[EntityID]struct{}),
		Removed:  make(map[EntityID]struct{}),
	}
}

func cloneSet(m map[EntityID]struct{}) map[EntityID]struct{} {
	out := make(map[EntityID]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// DirtyTrackingStore decorates an Interface, recording which entities were
// added, modified, or removed for each match since the last consume. It is
// not itself thread-safe with respect to the inner store's invariants if
// wrapped around a raw Store; compose as
// NewDirtyTracking(NewLocking(New(...))) to keep both guarantees, or
// NewLocking(NewDirtyTracking(store)) — either order is safe since the
// dirty map has its own lock.
type DirtyTrackingStore struct {
	inner Interface

	mu      sync.Mutex
	byMatch map[int64]*DirtyInfo
}

// NewDirtyTracking wraps inner with per-match dirty-set tracking.
func NewDirtyTracking(inner Interface) *DirtyTrackingStore {
	return &DirtyTrackingStore{inner: inner, byMatch: make(map[int64]*DirtyInfo)}
}

func (d *DirtyTrackingStore) setFor(matchID int64) *DirtyInfo {
	info, ok := d.byMatch[matchID]
	if !ok {
		info = newDirtyInfo()
		d.byMatch[matchID] = info
	}
	return info
}

func (d *DirtyTrackingStore) matchOf(id EntityID) (int64, bool) {
	v, err := d.inner.GetComponent(id, MatchIDComponent)
	if err != nil || IsNull(v) {
		return 0, false
	}
	return int64(v), true
}

func (d *DirtyTrackingStore) CreateEntity(id EntityID) error {
	return d.inner.CreateEntity(id)
}

func (d *DirtyTrackingStore) CreateEntityForMatch(matchID int64) (EntityID, error) {
	id, err := d.inner.CreateEntityForMatch(matchID)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.setFor(matchID).Added[id] = struct{}{}
	d.mu.Unlock()
	return id, nil
}

func (d *DirtyTrackingStore) markTouched(id EntityID) {
	matchID, ok := d.matchOf(id)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.setFor(matchID)
	if _, stillAdded := info.Added[id]; stillAdded {
		return
	}
	info.Modified[id] = struct{}{}
}

func (d *DirtyTrackingStore) AttachComponent(id EntityID, comp ComponentID, value float32) error {
	if err := d.inner.AttachComponent(id, comp, value); err != nil {
		return err
	}
	d.markTouched(id)
	return nil
}

func (d *DirtyTrackingStore) AttachComponents(id EntityID, values map[ComponentID]float32) error {
	if err := d.inner.AttachComponents(id, values); err != nil {
		return err
	}
	d.markTouched(id)
	return nil
}

func (d *DirtyTrackingStore) RemoveComponent(id EntityID, comp ComponentID) error {
	if err := d.inner.RemoveComponent(id, comp); err != nil {
		return err
	}
	d.markTouched(id)
	return nil
}

func (d *DirtyTrackingStore) DeleteEntity(id EntityID) error {
	matchID, hasMatch := d.matchOf(id)
	if err := d.inner.DeleteEntity(id); err != nil {
		return err
	}
	if !hasMatch {
		return nil
	}
	d.mu.Lock()
	info := d.setFor(matchID)
	if _, wasAdded := info.Added[id]; wasAdded {
		// Added and removed within the same interval: transient, appears in
		// neither added nor removed.
		delete(info.Added, id)
	} else {
		delete(info.Modified, id)
		info.Removed[id] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

func (d *DirtyTrackingStore) GetComponent(id EntityID, comp ComponentID) (float32, error) {
	return d.inner.GetComponent(id, comp)
}

func (d *DirtyTrackingStore) GetComponents(id EntityID, comps []ComponentID) (map[ComponentID]float32, error) {
	return d.inner.GetComponents(id, comps)
}

func (d *DirtyTrackingStore) HasComponent(id EntityID, comp ComponentID) (bool, error) {
	return d.inner.HasComponent(id, comp)
}

func (d *DirtyTrackingStore) EntitiesWithComponents(comps ...ComponentID) (map[EntityID]struct{}, error) {
	return d.inner.EntitiesWithComponents(comps...)
}

func (d *DirtyTrackingStore) Reset() {
	d.inner.Reset()
	d.mu.Lock()
	d.byMatch = make(map[int64]*DirtyInfo)
	d.mu.Unlock()
}

func (d *DirtyTrackingStore) EntityCount() int   { return d.inner.EntityCount() }
func (d *DirtyTrackingStore) MaxEntities() int   { return d.inner.MaxEntities() }
func (d *DirtyTrackingStore) MaxComponents() int { return d.inner.MaxComponents() }

// ConsumeDirtyInfo returns the accumulated dirty sets for matchID and clears
// them.
func (d *DirtyTrackingStore) ConsumeDirtyInfo(matchID int64) DirtyInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.setFor(matchID)
	out := DirtyInfo{Added: cloneSet(info.Added), Modified: cloneSet(info.Modified), Removed: cloneSet(info.Removed)}
	delete(d.byMatch, matchID)
	return out
}

// PeekDirtyInfo returns the accumulated dirty sets for matchID without
// clearing them.
func (d *DirtyTrackingStore) PeekDirtyInfo(matchID int64) DirtyInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.setFor(matchID)
	return DirtyInfo{Added: cloneSet(info.Added), Modified: cloneSet(info.Modified), Removed: cloneSet(info.Removed)}
}

var _ Interface = (*DirtyTrackingStore)(nil)
