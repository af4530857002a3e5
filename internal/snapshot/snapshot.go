// Package snapshot implements the Snapshot Engine (§4.6) and the Delta
// Engine (§4.7): a filtered columnar extract of ECS state for one match
// (optionally one player), and a sparse diff between two such extracts.
//
// The snapshot reader talks to the shared ECS directly rather than
// through a module's ModuleScopedStore — it is a container-internal
// subsystem serving the transport layer and the persistence listener, not
// a plugin, so no capability token applies to it.
package snapshot

import (
	"math"
	"sort"
	"sync"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/registry"
)

// ComponentData is one named, ordinal-aligned value column.
type ComponentData struct {
	Name   string
	Values []float32
}

// ModuleData is one module's slice of a Snapshot. Components always
// includes an "ENTITY_ID" entry first; every other column in the slice is
// index-aligned to it (§3 "parallel and column-aligned with a virtual
// ENTITY_ID column").
type ModuleData struct {
	ModuleName    string
	ModuleVersion string
	Components    []ComponentData
}

// Snapshot is the columnar extract for one match at one tick.
type Snapshot struct {
	MatchID int64
	Tick    int64
	Modules []ModuleData
}

type componentShape struct {
	id   ecs.ComponentID
	name string
}

type moduleShape struct {
	name       string
	version    string
	flagID     *ecs.ComponentID
	components []componentShape
}

// Engine builds Snapshots against a shared ECS store, consulting the
// registry for the current module/component mapping (§4.6 step 1).
type Engine struct {
	reg   *registry.Registry
	store ecs.Interface

	mu         sync.Mutex
	shapeCache []moduleShape
	shapeAt    int
}

// NewEngine builds a snapshot Engine reading store, shaped by modules
// loaded in reg.
func NewEngine(reg *registry.Registry, store ecs.Interface) *Engine {
	return &Engine{reg: reg, store: store}
}

func (e *Engine) shapes() []moduleShape {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shapeCache != nil && e.shapeAt == e.reg.Version() {
		return e.shapeCache
	}
	var shapes []moduleShape
	for _, mod := range e.reg.ResolveAllModules() {
		shape := moduleShape{name: mod.Name(), version: mod.Version()}
		if flag, ok := mod.FlagComponent(); ok {
			id := flag.ID
			shape.flagID = &id
		}
		for _, c := range mod.Components() {
			shape.components = append(shape.components, componentShape{id: c.ID, name: c.Name})
		}
		shapes = append(shapes, shape)
	}
	e.shapeCache = shapes
	e.shapeAt = e.reg.Version()
	return shapes
}

// CreateForMatch builds a Snapshot of every entity belonging to matchID
// (§4.6 createForMatch).
func (e *Engine) CreateForMatch(matchID int64, tick int64) (Snapshot, error) {
	return e.create(matchID, nil, tick)
}

// CreateForMatchAndPlayer additionally restricts to entities owned by
// playerID (§4.6 createForMatchAndPlayer).
func (e *Engine) CreateForMatchAndPlayer(matchID, playerID int64, tick int64) (Snapshot, error) {
	return e.create(matchID, &playerID, tick)
}

func (e *Engine) create(matchID int64, playerID *int64, tick int64) (Snapshot, error) {
	shapes := e.shapes()

	candidates := make(map[ecs.EntityID]struct{})
	for _, mod := range shapes {
		if mod.flagID == nil {
			continue
		}
		set, err := e.store.EntitiesWithComponents(*mod.flagID, ecs.MatchIDComponent)
		if err != nil {
			return Snapshot{}, err
		}
		for id := range set {
			candidates[id] = struct{}{}
		}
	}

	matchBits := math.Float32bits(float32(matchID))
	var playerBits uint32
	if playerID != nil {
		playerBits = math.Float32bits(float32(*playerID))
	}

	var surviving []ecs.EntityID
	for id := range candidates {
		v, err := e.store.GetComponent(id, ecs.MatchIDComponent)
		if err != nil {
			return Snapshot{}, err
		}
		// Bit-equality, not IEEE equality: a null-sentinel MATCH_ID must
		// reliably fail this comparison against any real match id (§9).
		if math.Float32bits(v) != matchBits {
			continue
		}
		if playerID != nil {
			ov, err := e.store.GetComponent(id, ecs.OwnerIDComponent)
			if err != nil {
				return Snapshot{}, err
			}
			if math.Float32bits(ov) != playerBits {
				continue
			}
		}
		surviving = append(surviving, id)
	}
	sort.Slice(surviving, func(i, j int) bool { return surviving[i] < surviving[j] })

	var modulesOut []ModuleData
	for _, mod := range shapes {
		if len(mod.components) == 0 {
			continue
		}
		ids := make([]ecs.ComponentID, 0, len(mod.components)+1)
		ids = append(ids, ecs.EntityIDComponent)
		for _, c := range mod.components {
			ids = append(ids, c.id)
		}

		entityIDCol := make([]float32, 0, len(surviving))
		cols := make([][]float32, len(mod.components))
		for i := range cols {
			cols[i] = make([]float32, 0, len(surviving))
		}

		for _, id := range surviving {
			values, err := e.store.GetComponents(id, ids)
			if err != nil {
				return Snapshot{}, err
			}
			// Sparse representation (§4.6 step 4): an entity that never
			// attached any of this module's own components is not this
			// module's entity — skip it rather than emitting an all-null
			// row just because it survived the match/owner filter via a
			// different module's flag component.
			hasData := false
			for _, c := range mod.components {
				if !ecs.IsNull(values[c.id]) {
					hasData = true
					break
				}
			}
			if !hasData {
				continue
			}
			entityIDCol = append(entityIDCol, values[ecs.EntityIDComponent])
			for i, c := range mod.components {
				cols[i] = append(cols[i], values[c.id])
			}
		}

		if len(entityIDCol) == 0 {
			continue
		}

		compData := make([]ComponentData, 0, len(mod.components)+1)
		compData = append(compData, ComponentData{Name: "ENTITY_ID", Values: entityIDCol})
		for i, c := range mod.components {
			compData = append(compData, ComponentData{Name: c.name, Values: cols[i]})
		}
		modulesOut = append(modulesOut, ModuleData{ModuleName: mod.name, ModuleVersion: mod.version, Components: compData})
	}

	return Snapshot{MatchID: matchID, Tick: tick, Modules: modulesOut}, nil
}
