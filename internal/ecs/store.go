package ecs

import (
	"github.com/simfleet/simfleet/internal/simerr"
)

// Store is the dense columnar float matrix described in §4.3: cells are
// addressed by a dense entityIdx, not the caller's EntityID, so a delete can
// reclaim its slot via the free-list without compacting the whole table.
// Store is NOT thread-safe; callers compose it with LockingStore.
type Store struct {
	maxEntities   int
	maxComponents int

	cells [][]float32 // cells[entityIdx][componentSlot]

	entityIDToIdx map[EntityID]int
	idxToEntityID []EntityID
	slotUsed      []bool
	freeList      []int

	componentToSlot map[ComponentID]int
	nextSlot        int

	entityCount int
	nextAutoID  EntityID
}

// New creates an empty Store sized for maxEntities rows and maxComponents
// columns, as required on container start (§4.1).
func New(maxEntities, maxComponents int) *Store {
	s := &Store{
		maxEntities:     maxEntities,
		maxComponents:   maxComponents,
		entityIDToIdx:   make(map[EntityID]int),
		componentToSlot: make(map[ComponentID]int),
	}
	return s
}

func (s *Store) MaxEntities() int   { return s.maxEntities }
func (s *Store) MaxComponents() int { return s.maxComponents }
func (s *Store) EntityCount() int   { return s.entityCount }

func (s *Store) slotFor(comp ComponentID) (int, error) {
	if slot, ok := s.componentToSlot[comp]; ok {
		return slot, nil
	}
	if s.nextSlot >= s.maxComponents {
		return 0, simerr.Capacityf("component slots exhausted (max %d)", s.maxComponents)
	}
	slot := s.nextSlot
	s.nextSlot++
	s.componentToSlot[comp] = slot
	// Backfill every existing row's new column with the null sentinel.
	for idx := range s.cells {
		if s.slotUsed[idx] {
			s.cells[idx][slot] = Null()
		}
	}
	return slot, nil
}

func (s *Store) allocIdx() (int, error) {
	if s.entityCount >= s.maxEntities {
		return 0, simerr.Capacityf("entity capacity exhausted (max %d)", s.maxEntities)
	}
	if len(s.freeList) > 0 {
		idx := s.freeList[len(s.freeList)-1]
		s.freeList = s.freeList[:len(s.freeList)-1]
		return idx, nil
	}
	idx := len(s.cells)
	row := make([]float32, s.maxComponents)
	for i := range row {
		row[i] = Null()
	}
	s.cells = append(s.cells, row)
	s.idxToEntityID = append(s.idxToEntityID, 0)
	s.slotUsed = append(s.slotUsed, false)
	return idx, nil
}

func (s *Store) CreateEntity(id EntityID) error {
	if _, exists := s.entityIDToIdx[id]; exists {
		return simerr.Conflictf("entity %d already exists", id)
	}
	idx, err := s.allocIdx()
	if err != nil {
		return err
	}
	s.entityIDToIdx[id] = idx
	s.idxToEntityID[idx] = id
	s.slotUsed[idx] = true
	s.entityCount++
	if id >= s.nextAutoID {
		s.nextAutoID = id + 1
	}

	slot, err := s.slotFor(EntityIDComponent)
	if err != nil {
		return err
	}
	s.cells[idx][slot] = float32(id)
	return nil
}

// CreateEntityForMatch allocates an entity and stamps ENTITY_ID and
// MATCH_ID in one call, the form the snapshot engine's candidate filter
// relies on.
func (s *Store) CreateEntityForMatch(matchID int64) (EntityID, error) {
	id := s.nextEntityID()
	if err := s.CreateEntity(id); err != nil {
		return 0, err
	}
	if err := s.AttachComponent(id, MatchIDComponent, float32(matchID)); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) nextEntityID() EntityID {
	// Monotonic counter distinct from any id ever issued; reused slots do
	// not imply reused ids, avoiding aliasing between a deleted entity and a
	// later unrelated one that a caller might still hold a stale reference
	// to within the same tick.
	id := s.nextAutoID
	s.nextAutoID++
	return id
}

func (s *Store) DeleteEntity(id EntityID) error {
	idx, ok := s.entityIDToIdx[id]
	if !ok {
		return simerr.NotFoundf("entity %d", id)
	}
	row := s.cells[idx]
	for i := range row {
		row[i] = Null()
	}
	s.slotUsed[idx] = false
	delete(s.entityIDToIdx, id)
	s.freeList = append(s.freeList, idx)
	s.entityCount--
	return nil
}

func (s *Store) AttachComponent(id EntityID, comp ComponentID, value float32) error {
	idx, ok := s.entityIDToIdx[id]
	if !ok {
		return simerr.NotFoundf("entity %d", id)
	}
	slot, err := s.slotFor(comp)
	if err != nil {
		return err
	}
	s.cells[idx][slot] = value
	return nil
}

func (s *Store) AttachComponents(id EntityID, values map[ComponentID]float32) error {
	for comp, v := range values {
		if err := s.AttachComponent(id, comp, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RemoveComponent(id EntityID, comp ComponentID) error {
	return s.AttachComponent(id, comp, Null())
}

func (s *Store) GetComponent(id EntityID, comp ComponentID) (float32, error) {
	idx, ok := s.entityIDToIdx[id]
	if !ok {
		return Null(), simerr.NotFoundf("entity %d", id)
	}
	slot, ok := s.componentToSlot[comp]
	if !ok {
		return Null(), nil
	}
	return s.cells[idx][slot], nil
}

func (s *Store) GetComponents(id EntityID, comps []ComponentID) (map[ComponentID]float32, error) {
	out := make(map[ComponentID]float32, len(comps))
	for _, c := range comps {
		v, err := s.GetComponent(id, c)
		if err != nil {
			return nil, err
		}
		out[c] = v
	}
	return out, nil
}

func (s *Store) HasComponent(id EntityID, comp ComponentID) (bool, error) {
	v, err := s.GetComponent(id, comp)
	if err != nil {
		return false, err
	}
	return !IsNull(v), nil
}

// EntitiesWithComponents returns the set of entity ids where every given
// component is non-null. Result ordering is unspecified, per §4.3.
func (s *Store) EntitiesWithComponents(comps ...ComponentID) (map[EntityID]struct{}, error) {
	result := make(map[EntityID]struct{})
	if len(comps) == 0 {
		return result, nil
	}
	slots := make([]int, 0, len(comps))
	for _, c := range comps {
		slot, ok := s.componentToSlot[c]
		if !ok {
			// Nobody has ever attached this component; no entity can match.
			return result, nil
		}
		slots = append(slots, slot)
	}
	for idx, used := range s.slotUsed {
		if !used {
			continue
		}
		row := s.cells[idx]
		match := true
		for _, slot := range slots {
			if IsNull(row[slot]) {
				match = false
				break
			}
		}
		if match {
			result[s.idxToEntityID[idx]] = struct{}{}
		}
	}
	return result, nil
}

func (s *Store) Reset() {
	s.cells = nil
	s.idxToEntityID = nil
	s.slotUsed = nil
	s.freeList = nil
	s.entityIDToIdx = make(map[EntityID]int)
	s.componentToSlot = make(map[ComponentID]int)
	s.nextSlot = 0
	s.entityCount = 0
	s.nextAutoID = 0
}
