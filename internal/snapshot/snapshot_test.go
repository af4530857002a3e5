package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/registry"
	"github.com/simfleet/simfleet/internal/token"
)

const (
	flagComp = ecs.ComponentID(1)
	posX     = ecs.ComponentID(2)
	posY     = ecs.ComponentID(3)
)

type physicsFactory struct{}

func (physicsFactory) Create(ctx *plugin.Context) (plugin.Module, error) {
	return physicsModule{}, nil
}

type physicsModule struct{}

func (physicsModule) Name() string    { return "physics" }
func (physicsModule) Version() string { return "1.0" }
func (physicsModule) FlagComponent() (plugin.ComponentDeclaration, bool) {
	return plugin.ComponentDeclaration{ID: flagComp, Name: "PHYSICS_BODY", Kind: ecs.KindFlag}, true
}
func (physicsModule) Components() []plugin.ComponentDeclaration {
	return []plugin.ComponentDeclaration{
		{ID: posX, Name: "POSITION_X", Kind: ecs.KindValue, Level: plugin.LevelWrite},
		{ID: posY, Name: "POSITION_Y", Kind: ecs.KindValue, Level: plugin.LevelWrite},
	}
}
func (physicsModule) Systems() []plugin.System   { return nil }
func (physicsModule) Commands() []plugin.Command { return nil }
func (physicsModule) Exports() plugin.Exports    { return plugin.Exports{} }

const scoringFlag = ecs.ComponentID(4)

type scoringFactory struct{}

func (scoringFactory) Create(ctx *plugin.Context) (plugin.Module, error) {
	return scoringModule{}, nil
}

// scoringModule declares its own flag component but no value components,
// the way examples/plugins/scoring.zip's "eliminated" flag works: it adds
// an entity to the match-filtered candidate set without that entity ever
// having attached any physics component.
type scoringModule struct{}

func (scoringModule) Name() string    { return "scoring" }
func (scoringModule) Version() string { return "1.0" }
func (scoringModule) FlagComponent() (plugin.ComponentDeclaration, bool) {
	return plugin.ComponentDeclaration{ID: scoringFlag, Name: "ELIMINATED", Kind: ecs.KindFlag}, true
}
func (scoringModule) Components() []plugin.ComponentDeclaration { return nil }
func (scoringModule) Systems() []plugin.System                  { return nil }
func (scoringModule) Commands() []plugin.Command                { return nil }
func (scoringModule) Exports() plugin.Exports                   { return plugin.Exports{} }

func newTestEngine(t *testing.T) (*Engine, ecs.Interface) {
	t.Helper()
	store := ecs.New(64, 16)
	shared := ecs.NewLocking(store)
	svc := token.NewService([]byte("key"), time.Hour)
	reg := registry.New(t.TempDir(), shared, svc, registry.DefaultEntityModuleName, nil)
	require.NoError(t, reg.RegisterFactory(physicsFactory{}, ""))
	return NewEngine(reg, shared), shared
}

func findComponent(mod ModuleData, name string) []float32 {
	for _, c := range mod.Components {
		if c.Name == name {
			return c.Values
		}
	}
	return nil
}

func TestCreateForMatchScopesToMatchID(t *testing.T) {
	engine, store := newTestEngine(t)

	e1, err := store.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, store.AttachComponent(e1, flagComp, 1))
	require.NoError(t, store.AttachComponent(e1, posX, 10))
	require.NoError(t, store.AttachComponent(e1, posY, 20))

	e2, err := store.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, store.AttachComponent(e2, flagComp, 1))
	require.NoError(t, store.AttachComponent(e2, posX, 30))
	require.NoError(t, store.AttachComponent(e2, posY, 40))

	e3, err := store.CreateEntityForMatch(200)
	require.NoError(t, err)
	require.NoError(t, store.AttachComponent(e3, flagComp, 1))

	snap, err := engine.CreateForMatch(100, 1)
	require.NoError(t, err)
	require.Len(t, snap.Modules, 1)

	entityIDs := findComponent(snap.Modules[0], "ENTITY_ID")
	assert.ElementsMatch(t, []float32{float32(e1), float32(e2)}, entityIDs)
}

func TestCreateForMatchAndPlayerFiltersOwner(t *testing.T) {
	engine, store := newTestEngine(t)

	e1, err := store.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, store.AttachComponent(e1, flagComp, 1))
	require.NoError(t, store.AttachComponent(e1, ecs.OwnerIDComponent, 7))
	require.NoError(t, store.AttachComponent(e1, posX, 1))
	require.NoError(t, store.AttachComponent(e1, posY, 2))

	e2, err := store.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, store.AttachComponent(e2, flagComp, 1))
	require.NoError(t, store.AttachComponent(e2, ecs.OwnerIDComponent, 8))
	require.NoError(t, store.AttachComponent(e2, posX, 3))
	require.NoError(t, store.AttachComponent(e2, posY, 4))

	snap, err := engine.CreateForMatchAndPlayer(100, 7, 1)
	require.NoError(t, err)
	require.Len(t, snap.Modules, 1)
	assert.Equal(t, []float32{float32(e1)}, findComponent(snap.Modules[0], "ENTITY_ID"))
}

func TestCreateOmitsEntitiesWithNoDataInModule(t *testing.T) {
	store := ecs.New(64, 16)
	shared := ecs.NewLocking(store)
	svc := token.NewService([]byte("key"), time.Hour)
	reg := registry.New(t.TempDir(), shared, svc, registry.DefaultEntityModuleName, nil)
	require.NoError(t, reg.RegisterFactory(physicsFactory{}, ""))
	require.NoError(t, reg.RegisterFactory(scoringFactory{}, ""))
	engine := NewEngine(reg, shared)

	// e1 is a genuine physics entity: flagged and carries physics data.
	e1, err := shared.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, shared.AttachComponent(e1, flagComp, 1))
	require.NoError(t, shared.AttachComponent(e1, posX, 10))
	require.NoError(t, shared.AttachComponent(e1, posY, 20))

	// e2 is only a scoring entity: it enters the match-scoped candidate set
	// via scoring's own flag component, but never attached any physics
	// component. It must not show up as an all-null physics row.
	e2, err := shared.CreateEntityForMatch(100)
	require.NoError(t, err)
	require.NoError(t, shared.AttachComponent(e2, scoringFlag, 1))

	snap, err := engine.CreateForMatch(100, 1)
	require.NoError(t, err)
	require.Len(t, snap.Modules, 1, "scoring declares no value components, so only physics emits a row set")

	physicsMod := snap.Modules[0]
	assert.Equal(t, "physics", physicsMod.ModuleName)
	entityIDs := findComponent(physicsMod, "ENTITY_ID")
	assert.Equal(t, []float32{float32(e1)}, entityIDs, "e2 must be omitted: it has no physics component data")
}

func TestDeltaRoundTrip(t *testing.T) {
	from := Snapshot{
		MatchID: 1,
		Tick:    1,
		Modules: []ModuleData{
			{
				ModuleName:    "Mod",
				ModuleVersion: "1.0",
				Components: []ComponentData{
					{Name: "ENTITY_ID", Values: []float32{1, 2}},
					{Name: "POSITION_X", Values: []float32{100, 200}},
					{Name: "POSITION_Y", Values: []float32{50, 60}},
				},
			},
		},
	}
	to := Snapshot{
		MatchID: 1,
		Tick:    2,
		Modules: []ModuleData{
			{
				ModuleName:    "Mod",
				ModuleVersion: "1.0",
				Components: []ComponentData{
					{Name: "ENTITY_ID", Values: []float32{1, 2}},
					{Name: "POSITION_X", Values: []float32{150, 200}},
					{Name: "POSITION_Y", Values: []float32{50, 75}},
				},
			},
		},
	}

	delta := ComputeDelta(from, to)
	require.Empty(t, delta.AddedEntities)
	require.Empty(t, delta.RemovedEntities)
	require.Contains(t, delta.ChangedComponents, "Mod")
	assert.Equal(t, map[int64]float32{1: 150}, delta.ChangedComponents["Mod"]["POSITION_X"])
	assert.Equal(t, map[int64]float32{2: 75}, delta.ChangedComponents["Mod"]["POSITION_Y"])

	applied, err := ApplyDelta(&from, &delta)
	require.NoError(t, err)
	require.Len(t, applied.Modules, 1)
	assertSnapshotValueEqual(t, to, *applied)
}

func TestApplyDeltaRejectsNilInputs(t *testing.T) {
	_, err := ApplyDelta(nil, &DeltaSnapshot{})
	require.Error(t, err)
	_, err = ApplyDelta(&Snapshot{}, nil)
	require.Error(t, err)
}

func TestComputeDeltaTracksAddedAndRemovedEntities(t *testing.T) {
	from := Snapshot{Modules: []ModuleData{{
		ModuleName: "Mod",
		Components: []ComponentData{
			{Name: "ENTITY_ID", Values: []float32{1}},
			{Name: "HP", Values: []float32{10}},
		},
	}}}
	to := Snapshot{Modules: []ModuleData{{
		ModuleName: "Mod",
		Components: []ComponentData{
			{Name: "ENTITY_ID", Values: []float32{2}},
			{Name: "HP", Values: []float32{20}},
		},
	}}}

	delta := ComputeDelta(from, to)
	assert.Contains(t, delta.AddedEntities, int64(2))
	assert.Contains(t, delta.RemovedEntities, int64(1))
	assert.Equal(t, map[int64]float32{2: 20}, delta.ChangedComponents["Mod"]["HP"])

	applied, err := ApplyDelta(&from, &delta)
	require.NoError(t, err)
	assertSnapshotValueEqual(t, to, *applied)
}

// assertSnapshotValueEqual compares two snapshots by value, ignoring
// module/column ordering, matching the round-trip law's "modulo ordering"
// clause (§8).
func assertSnapshotValueEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	wantMap := toValueMap(want)
	gotMap := toValueMap(got)
	require.Equal(t, len(wantMap), len(gotMap))
	for name, wms := range wantMap {
		gms, ok := gotMap[name]
		require.True(t, ok, "missing module %s", name)
		for compName, wantCol := range wms.components {
			if compName == "ENTITY_ID" {
				continue
			}
			gotCol, ok := gms.components[compName]
			require.True(t, ok, "missing component %s in module %s", compName, name)
			assert.Equal(t, wantCol, gotCol)
		}
	}
}
