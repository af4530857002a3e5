// Package plugin defines the Plugin ABI (§6) — the stable interfaces a
// module contributes — and a goja-backed loader that lets an archive file
// supply those interfaces as JavaScript instead of compiled Go, which is
// what "dynamically loads behaviour code from archive files" means in a
// language without a safe in-process dynamic-library loader.
//
// Grounded on the teacher's system/tee script engine (dop251/goja, a
// fresh *goja.Runtime per execution for isolation) generalised from a
// single request/response call into a long-lived module whose systems run
// every tick and whose commands run on demand.
package plugin

import "github.com/simfleet/simfleet/internal/ecs"

// ComponentDeclaration is one component a module declares at load time
// (§4.5 step 2). Level is meaningful only when Kind is ecs.KindPermissioned.
type ComponentDeclaration struct {
	ID    ecs.ComponentID
	Name  string
	Kind  ecs.ComponentKind
	Level PermissionLevelName
}

// PermissionLevelName mirrors token.Level as a string so that plugin
// declarations do not depend on the token package; the registry converts
// it to a token.Level when it builds permission claims.
type PermissionLevelName string

const (
	LevelPrivate PermissionLevelName = "PRIVATE"
	LevelRead    PermissionLevelName = "READ"
	LevelWrite   PermissionLevelName = "WRITE"
)

// CommandParam documents one parameter of a command, optional metadata
// beyond the bare schema.
type CommandParam struct {
	Name        string
	Type        string
	Description string
}

// Command is the two-field record §9 recommends collapsing command
// variability behind: a schema plus an executor, with a name and owning
// module for registry bookkeeping.
type Command struct {
	Name       string
	ModuleName string
	Schema     map[string]string
	Parameters []CommandParam
	Execute    func(payload map[string]any) error
}

// System is one EngineSystem: update() taking no arguments.
type System interface {
	Update() error
}

// Exports is the set of values a module publishes for sibling modules.
type Exports map[string]any

// Module is an EngineModule: the runtime unit a factory produces.
type Module interface {
	Name() string
	Version() string
	FlagComponent() (ComponentDeclaration, bool)
	Components() []ComponentDeclaration
	Systems() []System
	Commands() []Command
	Exports() Exports
}

// ExportsLookup resolves a sibling module's published exports by name, the
// capability a ModuleContext gives every module for cross-module discovery
// (§4.5 step 7).
type ExportsLookup interface {
	Exports(moduleName string) (Exports, bool)
}

// Context is the ModuleContext a factory's Create receives. It starts as
// an empty placeholder (§4.5 step 1) and has its scoped store installed
// once the registry has issued the module's capability token (step 6).
type Context struct {
	ModuleName string
	store      ecs.Interface
	lookup     ExportsLookup
}

// NewContext builds a placeholder context for moduleName, store-less until
// SetStore is called.
func NewContext(moduleName string, lookup ExportsLookup) *Context {
	return &Context{ModuleName: moduleName, lookup: lookup}
}

// SetStore installs the module's final ModuleScopedStore.
func (c *Context) SetStore(store ecs.Interface) {
	c.store = store
}

// Store returns the module's scoped ECS view. Plugins may only touch the
// ECS through this accessor, never the shared store directly.
func (c *Context) Store() ecs.Interface {
	return c.store
}

// Exports resolves a sibling module's published exports.
func (c *Context) Exports(moduleName string) (Exports, bool) {
	if c.lookup == nil {
		return nil, false
	}
	return c.lookup.Exports(moduleName)
}

// Factory is a ModuleFactory: produces one Module given a Context.
type Factory interface {
	Create(ctx *Context) (Module, error)
}
