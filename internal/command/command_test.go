package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/registry"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/token"
)

func TestQueueDrainIsFIFOAndBounded(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(Item{Command: plugin.Command{Name: "c"}, Payload: map[string]any{"i": i}})
	}
	assert.Equal(t, 5, q.Len())

	first := q.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, 0, first[0].Payload["i"])
	assert.Equal(t, 1, first[1].Payload["i"])
	assert.Equal(t, 3, q.Len())

	rest := q.Drain(100)
	require.Len(t, rest, 3)
	assert.Equal(t, 2, rest[0].Payload["i"])
	assert.Equal(t, 0, q.Len())
}

type stubFactory struct {
	name     string
	commands []plugin.Command
}

func (f *stubFactory) Create(ctx *plugin.Context) (plugin.Module, error) {
	return &stubModule{name: f.name, commands: f.commands}, nil
}

type stubModule struct {
	name     string
	commands []plugin.Command
}

func (m *stubModule) Name() string                                  { return m.name }
func (m *stubModule) Version() string                                { return "0.0.1" }
func (m *stubModule) FlagComponent() (plugin.ComponentDeclaration, bool) { return plugin.ComponentDeclaration{}, false }
func (m *stubModule) Components() []plugin.ComponentDeclaration     { return nil }
func (m *stubModule) Systems() []plugin.System                      { return nil }
func (m *stubModule) Commands() []plugin.Command                    { return m.commands }
func (m *stubModule) Exports() plugin.Exports                       { return plugin.Exports{} }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	shared := ecs.NewLocking(ecs.New(16, 16))
	svc := token.NewService([]byte("key"), time.Hour)
	return registry.New(t.TempDir(), shared, svc, registry.DefaultEntityModuleName, nil)
}

func TestResolverFindsCommandAcrossModules(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name: "alpha",
		commands: []plugin.Command{{Name: "heal", ModuleName: "alpha", Execute: func(map[string]any) error { return nil }}},
	}, ""))

	r := NewResolver(reg, nil)
	cmd, ok := r.Resolve("heal")
	require.True(t, ok)
	assert.Equal(t, "alpha", cmd.ModuleName)

	_, ok = r.Resolve("nope")
	assert.False(t, ok)
}

func TestResolverCacheInvalidatesOnNewRegistration(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterFactory(&stubFactory{name: "alpha"}, ""))

	r := NewResolver(reg, nil)
	_, ok := r.Resolve("spawn")
	assert.False(t, ok)

	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:     "beta",
		commands: []plugin.Command{{Name: "spawn", ModuleName: "beta", Execute: func(map[string]any) error { return nil }}},
	}, ""))

	cmd, ok := r.Resolve("spawn")
	require.True(t, ok)
	assert.Equal(t, "beta", cmd.ModuleName)
}

func TestDispatcherRejectsWhenNotRunning(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:     "alpha",
		commands: []plugin.Command{{Name: "heal", ModuleName: "alpha", Execute: func(map[string]any) error { return nil }}},
	}, ""))

	r := NewResolver(reg, nil)
	q := NewQueue()
	running := false
	d := NewDispatcher(r, q, func() bool { return running })

	err := d.Named("heal").Execute(nil)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.InvalidState))

	running = true
	require.NoError(t, d.Named("heal").Execute(nil))
	assert.Equal(t, 1, q.Len())
}

func TestExecutionPayloadInjectsMatchIDOnlyWhenScoped(t *testing.T) {
	plain := Item{Payload: map[string]any{"a": 1}}
	assert.Equal(t, map[string]any{"a": 1}, plain.ExecutionPayload())

	matchID := int64(42)
	scoped := Item{Payload: map[string]any{"a": 1}, MatchID: &matchID}
	got := scoped.ExecutionPayload()
	assert.Equal(t, map[string]any{"a": 1, MatchIDPayloadKey: int64(42)}, got)

	// The original payload is never mutated.
	assert.NotContains(t, scoped.Payload, MatchIDPayloadKey)
}

func TestDispatcherForMatchThreadsMatchIDToExecutor(t *testing.T) {
	reg := newTestRegistry(t)
	var seenMatchID any
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name: "alpha",
		commands: []plugin.Command{{Name: "heal", ModuleName: "alpha", Execute: func(payload map[string]any) error {
			seenMatchID = payload[MatchIDPayloadKey]
			return nil
		}}},
	}, ""))

	r := NewResolver(reg, nil)
	q := NewQueue()
	d := NewDispatcher(r, q, func() bool { return true })

	require.NoError(t, d.Named("heal").ForMatch(7).Execute(map[string]any{"x": 1}))
	items := q.Drain(1)
	require.Len(t, items, 1)
	require.NoError(t, items[0].Command.Execute(items[0].ExecutionPayload()))
	assert.Equal(t, int64(7), seenMatchID)
}

func TestDispatcherUnknownCommandNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	r := NewResolver(reg, nil)
	q := NewQueue()
	d := NewDispatcher(r, q, func() bool { return true })

	err := d.Named("nope").ForMatch(5).Execute(nil)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.NotFound))
}
