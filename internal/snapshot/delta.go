package snapshot

import (
	"math"
	"sort"

	"github.com/simfleet/simfleet/internal/simerr"
)

// DeltaSnapshot is the sparse diff between two Snapshots of the same
// match (§3, §4.7).
type DeltaSnapshot struct {
	MatchID           int64
	FromTick          int64
	ToTick            int64
	ChangedComponents map[string]map[string]map[int64]float32 // moduleName -> componentName -> entityId -> newValue
	AddedEntities     map[int64]struct{}
	RemovedEntities   map[int64]struct{}
}

// moduleValueMap is moduleName -> componentName -> entityId -> value,
// the shape both ComputeDelta and ApplyDelta build a Snapshot's modules
// into before diffing or reassembling them.
type moduleValueMap map[string]*moduleState

type moduleState struct {
	version    string
	components map[string]map[int64]float32
}

func toValueMap(s Snapshot) moduleValueMap {
	out := make(moduleValueMap, len(s.Modules))
	for _, mod := range s.Modules {
		ms := &moduleState{version: mod.ModuleVersion, components: make(map[string]map[int64]float32, len(mod.Components))}
		var entityIDs []float32
		for _, c := range mod.Components {
			if c.Name == "ENTITY_ID" {
				entityIDs = c.Values
				break
			}
		}
		for _, c := range mod.Components {
			col := make(map[int64]float32, len(c.Values))
			for i, v := range c.Values {
				if i >= len(entityIDs) {
					break
				}
				col[int64(entityIDs[i])] = v
			}
			ms.components[c.Name] = col
		}
		out[mod.ModuleName] = ms
	}
	return out
}

func entitySet(s Snapshot) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, mod := range s.Modules {
		for _, c := range mod.Components {
			if c.Name != "ENTITY_ID" {
				continue
			}
			for _, v := range c.Values {
				out[int64(v)] = struct{}{}
			}
		}
	}
	return out
}

// ComputeDelta diffs from and to, both taken of the same match, per
// §4.7's rules.
func ComputeDelta(from, to Snapshot) DeltaSnapshot {
	fromEntities := entitySet(from)
	toEntities := entitySet(to)

	added := make(map[int64]struct{})
	for id := range toEntities {
		if _, ok := fromEntities[id]; !ok {
			added[id] = struct{}{}
		}
	}
	removed := make(map[int64]struct{})
	for id := range fromEntities {
		if _, ok := toEntities[id]; !ok {
			removed[id] = struct{}{}
		}
	}

	fromMap := toValueMap(from)
	toMap := toValueMap(to)

	changed := make(map[string]map[string]map[int64]float32)
	for moduleName, toMod := range toMap {
		fromMod := fromMap[moduleName]
		for compName, toValues := range toMod.components {
			var fromValues map[int64]float32
			if fromMod != nil {
				fromValues = fromMod.components[compName]
			}
			var diff map[int64]float32
			for eid, v := range toValues {
				old, existed := fromValues[eid]
				if !existed || math.Float32bits(old) != math.Float32bits(v) {
					if diff == nil {
						diff = make(map[int64]float32)
					}
					diff[eid] = v
				}
			}
			if len(diff) > 0 {
				if changed[moduleName] == nil {
					changed[moduleName] = make(map[string]map[int64]float32)
				}
				changed[moduleName][compName] = diff
			}
		}
	}

	return DeltaSnapshot{
		MatchID:           from.MatchID,
		FromTick:          from.Tick,
		ToTick:            to.Tick,
		ChangedComponents: changed,
		AddedEntities:     added,
		RemovedEntities:   removed,
	}
}

// ApplyDelta clones base and overwrites it with delta's changes, per
// §4.7's applyDelta contract. Null base or delta is rejected
// INVALID_REQUEST.
func ApplyDelta(base *Snapshot, delta *DeltaSnapshot) (*Snapshot, error) {
	if base == nil || delta == nil {
		return nil, simerr.InvalidRequestf("applyDelta requires a non-null base snapshot and delta")
	}

	state := toValueMap(*base)

	for moduleName, comps := range delta.ChangedComponents {
		ms, ok := state[moduleName]
		if !ok {
			ms = &moduleState{components: make(map[string]map[int64]float32)}
			state[moduleName] = ms
		}
		for compName, values := range comps {
			col, ok := ms.components[compName]
			if !ok {
				col = make(map[int64]float32)
				ms.components[compName] = col
			}
			entityIDCol, ok := ms.components["ENTITY_ID"]
			if !ok {
				entityIDCol = make(map[int64]float32)
				ms.components["ENTITY_ID"] = entityIDCol
			}
			for eid, v := range values {
				col[eid] = v
				// A component value may be the first evidence a module has
				// ever seen this entity; ensure its ENTITY_ID row exists too
				// so the reassembled columns stay aligned.
				entityIDCol[eid] = float32(eid)
			}
		}
	}

	for eid := range delta.RemovedEntities {
		for _, ms := range state {
			for _, col := range ms.components {
				delete(col, eid)
			}
		}
	}

	return fromValueMap(state, delta.MatchID, delta.ToTick), nil
}

func fromValueMap(state moduleValueMap, matchID, tick int64) *Snapshot {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	var modules []ModuleData
	for _, name := range names {
		ms := state[name]
		entityIDCol, ok := ms.components["ENTITY_ID"]
		if !ok || len(entityIDCol) == 0 {
			continue
		}
		ids := make([]int64, 0, len(entityIDCol))
		for id := range entityIDCol {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		compNames := make([]string, 0, len(ms.components))
		for name := range ms.components {
			if name == "ENTITY_ID" {
				continue
			}
			compNames = append(compNames, name)
		}
		sort.Strings(compNames)

		components := make([]ComponentData, 0, len(compNames)+1)
		entityVals := make([]float32, len(ids))
		for i, id := range ids {
			entityVals[i] = entityIDCol[id]
		}
		components = append(components, ComponentData{Name: "ENTITY_ID", Values: entityVals})
		for _, compName := range compNames {
			col := ms.components[compName]
			vals := make([]float32, len(ids))
			for i, id := range ids {
				vals[i] = col[id]
			}
			components = append(components, ComponentData{Name: compName, Values: vals})
		}
		modules = append(modules, ModuleData{ModuleName: name, ModuleVersion: ms.version, Components: components})
	}

	return &Snapshot{MatchID: matchID, Tick: tick, Modules: modules}
}
