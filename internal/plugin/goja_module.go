package plugin

import (
	"github.com/dop251/goja"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/simerr"
)

// GojaFactory is a Factory backed by a parsed plugin Archive. Create runs
// the archive's script in a fresh *goja.Runtime, the way the teacher's
// script engine creates a fresh goja.New() per execution for isolation —
// generalised here to one runtime per module instance, long-lived for the
// module's lifetime instead of per-call.
type GojaFactory struct {
	archive *Archive
}

// NewGojaFactory wraps a loaded Archive as a Factory.
func NewGojaFactory(a *Archive) *GojaFactory {
	return &GojaFactory{archive: a}
}

func (f *GojaFactory) Create(ctx *Context) (Module, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	bridge := &storeBridge{ctx: ctx}
	if err := vm.Set("store", bridge); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "bind store into plugin runtime", err)
	}
	if err := vm.Set("exports", &exportsBridge{ctx: ctx}); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "bind exports into plugin runtime", err)
	}
	logs := make([]string, 0)
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			logs = append(logs, a.String())
		}
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "bind console into plugin runtime", err)
	}

	if _, err := vm.RunString(f.archive.Source); err != nil {
		return nil, simerr.Wrap(simerr.InvalidRequest, "run plugin script "+f.archive.Path, err)
	}

	return &jsModule{manifest: f.archive.Manifest, vm: vm, logs: &logs}, nil
}

// storeBridge exposes a module's scoped ECS view to JS. goja calls exported
// Go methods through reflection when the receiver is set as a JS global, so
// a plugin script calls these as store.getComponent(...), etc. Numbers
// cross the JS/Go boundary as float64; entity and component ids are cast
// back to their Go types at the boundary.
type storeBridge struct {
	ctx *Context
}

func (b *storeBridge) CreateEntityForMatch(matchID float64) float64 {
	id, err := b.ctx.Store().CreateEntityForMatch(int64(matchID))
	if err != nil {
		panic(err)
	}
	return float64(id)
}

func (b *storeBridge) DeleteEntity(entityID float64) {
	if err := b.ctx.Store().DeleteEntity(ecs.EntityID(int64(entityID))); err != nil {
		panic(err)
	}
}

func (b *storeBridge) AttachComponent(entityID, componentID, value float64) {
	err := b.ctx.Store().AttachComponent(ecs.EntityID(int64(entityID)), ecs.ComponentID(int64(componentID)), float32(value))
	if err != nil {
		panic(err)
	}
}

func (b *storeBridge) RemoveComponent(entityID, componentID float64) {
	err := b.ctx.Store().RemoveComponent(ecs.EntityID(int64(entityID)), ecs.ComponentID(int64(componentID)))
	if err != nil {
		panic(err)
	}
}

func (b *storeBridge) GetComponent(entityID, componentID float64) float64 {
	v, err := b.ctx.Store().GetComponent(ecs.EntityID(int64(entityID)), ecs.ComponentID(int64(componentID)))
	if err != nil {
		panic(err)
	}
	return float64(v)
}

func (b *storeBridge) HasComponent(entityID, componentID float64) bool {
	ok, err := b.ctx.Store().HasComponent(ecs.EntityID(int64(entityID)), ecs.ComponentID(int64(componentID)))
	if err != nil {
		panic(err)
	}
	return ok
}

// exportsBridge lets a plugin script read a sibling module's exports, e.g.
// exports.get("physics", "gravity").
type exportsBridge struct {
	ctx *Context
}

func (e *exportsBridge) Get(moduleName, key string) any {
	ex, ok := e.ctx.Exports(moduleName)
	if !ok {
		return goja.Undefined()
	}
	return ex[key]
}

// jsModule adapts a goja.Runtime that has already run a plugin's script
// into the Module interface, dispatching systems and commands to named JS
// functions via goja.AssertFunction.
type jsModule struct {
	manifest manifest
	vm       *goja.Runtime
	logs     *[]string
}

func (m *jsModule) Name() string    { return m.manifest.Name }
func (m *jsModule) Version() string { return m.manifest.Version }

func (m *jsModule) FlagComponent() (ComponentDeclaration, bool) {
	if m.manifest.FlagComponent == nil {
		return ComponentDeclaration{}, false
	}
	return convertComponent(*m.manifest.FlagComponent), true
}

func (m *jsModule) Components() []ComponentDeclaration {
	out := make([]ComponentDeclaration, 0, len(m.manifest.Components))
	for _, c := range m.manifest.Components {
		out = append(out, convertComponent(c))
	}
	return out
}

func convertComponent(c manifestComponent) ComponentDeclaration {
	level := PermissionLevelName(c.Level)
	if level == "" {
		level = LevelWrite
	}
	kind := ecs.KindValue
	switch c.Kind {
	case "flag":
		kind = ecs.KindFlag
	case "permissioned":
		kind = ecs.KindPermissioned
	case "core":
		kind = ecs.KindCore
	}
	return ComponentDeclaration{ID: ecs.ComponentID(c.ID), Name: c.Name, Kind: kind, Level: level}
}

func (m *jsModule) Systems() []System {
	out := make([]System, 0, len(m.manifest.Systems))
	for _, fnName := range m.manifest.Systems {
		out = append(out, &jsSystem{vm: m.vm, fnName: fnName})
	}
	return out
}

func (m *jsModule) Commands() []Command {
	out := make([]Command, 0, len(m.manifest.Commands))
	for _, c := range m.manifest.Commands {
		fnName := c.Function
		if fnName == "" {
			fnName = c.Name
		}
		out = append(out, Command{
			Name:       c.Name,
			ModuleName: m.manifest.Name,
			Schema:     c.Schema,
			Parameters: c.Params,
			Execute:    jsCommandExecutor(m.vm, fnName),
		})
	}
	return out
}

func (m *jsModule) Exports() Exports {
	out := make(Exports, len(m.manifest.Exports))
	for _, name := range m.manifest.Exports {
		out[name] = m.vm.Get(name).Export()
	}
	return out
}

type jsSystem struct {
	vm     *goja.Runtime
	fnName string
}

func (s *jsSystem) Update() error {
	fnVal := s.vm.Get(s.fnName)
	if fnVal == nil || goja.IsUndefined(fnVal) {
		return simerr.InvalidRequestf("plugin system function %s not defined", s.fnName)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return simerr.InvalidRequestf("plugin system %s is not a function", s.fnName)
	}
	_, err := fn(goja.Undefined())
	return err
}

func jsCommandExecutor(vm *goja.Runtime, fnName string) func(map[string]any) error {
	return func(payload map[string]any) error {
		fnVal := vm.Get(fnName)
		if fnVal == nil || goja.IsUndefined(fnVal) {
			return simerr.InvalidRequestf("plugin command function %s not defined", fnName)
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return simerr.InvalidRequestf("plugin command %s is not a function", fnName)
		}
		_, err := fn(goja.Undefined(), vm.ToValue(payload))
		return err
	}
}
