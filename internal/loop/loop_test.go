package loop

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/benchmark"
	"github.com/simfleet/simfleet/internal/command"
	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/registry"
	"github.com/simfleet/simfleet/internal/token"
)

type countingSystem struct {
	calls *int
	err   error
}

func (s *countingSystem) Update() error {
	*s.calls++
	return s.err
}

type panicSystem struct{}

func (panicSystem) Update() error { panic("boom") }

type stubFactory struct {
	name    string
	systems []plugin.System
}

func (f *stubFactory) Create(ctx *plugin.Context) (plugin.Module, error) {
	return &stubModule{name: f.name, systems: f.systems}, nil
}

type stubModule struct {
	name    string
	systems []plugin.System
}

func (m *stubModule) Name() string                                      { return m.name }
func (m *stubModule) Version() string                                    { return "0.0.1" }
func (m *stubModule) FlagComponent() (plugin.ComponentDeclaration, bool) { return plugin.ComponentDeclaration{}, false }
func (m *stubModule) Components() []plugin.ComponentDeclaration          { return nil }
func (m *stubModule) Systems() []plugin.System                          { return m.systems }
func (m *stubModule) Commands() []plugin.Command                        { return nil }
func (m *stubModule) Exports() plugin.Exports                           { return plugin.Exports{} }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	shared := ecs.NewLocking(ecs.New(16, 16))
	svc := token.NewService([]byte("key"), time.Hour)
	return registry.New(t.TempDir(), shared, svc, registry.DefaultEntityModuleName, nil)
}

func TestAdvanceTickRunsSystemsAndDrainsCommands(t *testing.T) {
	reg := newTestRegistry(t)
	calls := 0
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:    "alpha",
		systems: []plugin.System{&countingSystem{calls: &calls}},
	}, ""))

	q := command.NewQueue()
	executed := false
	q.Enqueue(command.Item{Command: plugin.Command{Name: "heal", ModuleName: "alpha", Execute: func(map[string]any) error {
		executed = true
		return nil
	}}})

	l := New(reg, q, benchmark.New(), nil, nil)
	l.AdvanceTick(1, 0)

	assert.Equal(t, 1, calls)
	assert.True(t, executed)
}

func TestAdvanceTickThreadsMatchIDFromQueuedItem(t *testing.T) {
	reg := newTestRegistry(t)
	q := command.NewQueue()
	var seenMatchID any
	q.Enqueue(command.Item{
		Command: plugin.Command{Name: "heal", ModuleName: "alpha", Execute: func(payload map[string]any) error {
			seenMatchID = payload[command.MatchIDPayloadKey]
			return nil
		}},
		MatchID: int64Ptr(9),
	})

	l := New(reg, q, benchmark.New(), nil, nil)
	l.AdvanceTick(1, 0)

	assert.Equal(t, int64(9), seenMatchID)
}

func int64Ptr(v int64) *int64 { return &v }

func TestAdvanceTickIsolatesSystemFaults(t *testing.T) {
	reg := newTestRegistry(t)
	calls := 0
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name: "alpha",
		systems: []plugin.System{
			&countingSystem{calls: &calls, err: errors.New("boom")},
			&countingSystem{calls: &calls},
		},
	}, ""))

	var faulted string
	l := New(reg, command.NewQueue(), benchmark.New(), nil, func(moduleName string, err error) {
		faulted = moduleName
	})
	l.AdvanceTick(1, 0)

	assert.Equal(t, 2, calls, "the second system must still run after the first errors")
	assert.Equal(t, "alpha", faulted)
}

func TestAdvanceTickRecoversPanickingSystem(t *testing.T) {
	reg := newTestRegistry(t)
	calls := 0
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:    "alpha",
		systems: []plugin.System{panicSystem{}, &countingSystem{calls: &calls}},
	}, ""))

	l := New(reg, command.NewQueue(), benchmark.New(), nil, nil)
	assert.NotPanics(t, func() { l.AdvanceTick(1, 0) })
	assert.Equal(t, 1, calls, "the system after the panicking one must still run")
}

func TestSystemCacheInvalidatesOnNewModule(t *testing.T) {
	reg := newTestRegistry(t)
	callsA := 0
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:    "alpha",
		systems: []plugin.System{&countingSystem{calls: &callsA}},
	}, ""))

	l := New(reg, command.NewQueue(), benchmark.New(), nil, nil)
	l.AdvanceTick(1, 0)
	assert.Equal(t, 1, callsA)

	callsB := 0
	require.NoError(t, reg.RegisterFactory(&stubFactory{
		name:    "beta",
		systems: []plugin.System{&countingSystem{calls: &callsB}},
	}, ""))

	l.AdvanceTick(2, 0)
	assert.Equal(t, 2, callsA)
	assert.Equal(t, 1, callsB)
}

func TestTickCompleteListenersNotified(t *testing.T) {
	reg := newTestRegistry(t)
	l := New(reg, command.NewQueue(), benchmark.New(), nil, nil)

	var seen []int64
	l.AddListener(listenerFunc(func(tick int64) { seen = append(seen, tick) }))
	l.AdvanceTick(7, 0)
	l.AdvanceTick(8, 0)

	assert.Equal(t, []int64{7, 8}, seen)
}

type listenerFunc func(tickNo int64)

func (f listenerFunc) OnTickComplete(tickNo int64) { f(tickNo) }
