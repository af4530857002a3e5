// Package registry implements the Module Registry (§4.5): discovers
// plugin archives, runs each factory's initialisation sequence, issues
// capability tokens, and incrementally re-authorises already-loaded
// modules as new ones register.
//
// Grounded on the teacher's system/core Registry/DependencyManager/Bus
// trio (map[string]ServiceModule behind a mutex, explicit ordering,
// cache-invalidate-on-mutation) generalised from static service modules to
// dynamically loaded plugin archives.
package registry

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/permission"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/token"
)

// DefaultEntityModuleName is the built-in entity-management module that
// receives a superuser token (§4.5 step 5).
const DefaultEntityModuleName = "entities"

// permEntry is one row of the permission registry: which module owns a
// component, and the level it declared.
type permEntry struct {
	OwnerModule string
	Level       token.Level
}

// loaded is everything the registry tracks for one installed module.
type loaded struct {
	name        string
	version     string
	factory     plugin.Factory
	instance    plugin.Module
	ctx         *plugin.Context
	scoped      *permission.ModuleScopedStore
	tok         token.Token
	archivePath string // empty for programmatically-registered factories
}

// Registry is the container's Module Registry.
type Registry struct {
	mu sync.Mutex

	scanDir         string
	shared          ecs.Interface
	tokenService    *token.Service
	builtinName     string
	log             *logging.Logger

	byName map[string]*loaded
	order  []string // registration order, preserved across re-auth

	perms map[ecs.ComponentID]permEntry

	version      int
	resolveCache []plugin.Module
	resolveAt    int
}

// New creates a Registry pointed at scanDir, authorising modules against
// shared through tokenService. builtinName is the module whose token is
// issued with the superuser bit set.
func New(scanDir string, shared ecs.Interface, tokenService *token.Service, builtinName string, log *logging.Logger) *Registry {
	if builtinName == "" {
		builtinName = DefaultEntityModuleName
	}
	if log == nil {
		log = logging.Default
	}
	return &Registry{
		scanDir:      scanDir,
		shared:       shared,
		tokenService: tokenService,
		builtinName:  builtinName,
		log:          log,
		byName:       make(map[string]*loaded),
		perms:        make(map[ecs.ComponentID]permEntry),
	}
}

// Exports implements plugin.ExportsLookup.
func (r *Registry) Exports(moduleName string) (plugin.Exports, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.byName[moduleName]
	if !ok {
		return nil, false
	}
	return lm.instance.Exports(), true
}

// Scan discovers plugin archives under scanDir (non-recursive) and loads
// every one of them, in path order, including archives whose module is
// already loaded. Duplicate module names overwrite the earlier entry with
// a warning (§4.5 Discovery).
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.scanDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return simerr.Wrap(simerr.InvalidRequest, "scan module directory", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(r.scanDir, e.Name()))
	}
	sort.Strings(paths)
	for _, p := range paths {
		archive, err := plugin.LoadArchive(p)
		if err != nil {
			r.log.WithField("path", p).WithField("error", err).Warn("skip unloadable plugin archive")
			continue
		}
		if err := r.RegisterFactory(plugin.NewGojaFactory(archive), p); err != nil {
			r.log.WithField("path", p).WithField("error", err).Warn("failed to register plugin module")
		}
	}
	return nil
}

// RegisterFactory runs the single-factory initialisation sequence of §4.5
// steps 1-7 and performs incremental re-authorisation of every other
// already-loaded module (§4.5 "Incremental re-auth").
func (r *Registry) RegisterFactory(factory plugin.Factory, archivePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerFactoryLocked(factory, archivePath)
}

func (r *Registry) registerFactoryLocked(factory plugin.Factory, archivePath string) error {
	// Step 1: placeholder context, invoke the factory.
	ctx := plugin.NewContext("", r)
	instance, err := factory.Create(ctx)
	if err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "create module", err)
	}
	name := instance.Name()
	ctx.ModuleName = name

	if existing, ok := r.byName[name]; ok {
		r.log.WithField("module", name).Warn("duplicate module name overwrites earlier entry")
		r.removeOwnedPermsLocked(existing.name)
		r.removeFromOrderLocked(name)
	}

	// Step 2: collect declared components.
	declared := instance.Components()
	if flag, ok := instance.FlagComponent(); ok {
		declared = append(declared, flag)
	}

	// Step 3: register each Permissioned component in the permission
	// registry, owner = this module. Flag/Value components stay ungated,
	// same as the platform's Core components.
	for _, c := range declared {
		if c.Kind != ecs.KindPermissioned {
			continue
		}
		r.perms[c.ID] = permEntry{OwnerModule: name, Level: levelFromName(c.Level)}
	}

	// Step 4: compute this module's permission claims — a snapshot of every
	// component declared so far (self included) at its declared level.
	claims := r.snapshotPermsLocked()

	// Step 5: issue a capability token, superuser iff the built-in entity
	// module.
	superuser := name == r.builtinName
	tok, err := r.tokenService.Issue(name, superuser, claims)
	if err != nil {
		return err
	}

	// Step 6: build the final ModuleScopedStore and install it.
	scoped := permission.NewModuleScopedStore(r.shared, r.tokenService, tok.Raw)
	ctx.SetStore(scoped)

	lm := &loaded{
		name:        name,
		version:     instance.Version(),
		factory:     factory,
		instance:    instance,
		ctx:         ctx,
		scoped:      scoped,
		tok:         tok,
		archivePath: archivePath,
	}
	r.byName[name] = lm
	r.order = append(r.order, name)

	// Step 7 (exports) is satisfied lazily by Exports(name) above; nothing
	// further to register since the lookup reads instance.Exports() live.

	r.reauthorizeOthersLocked(name)
	r.version++
	return nil
}

// reauthorizeOthersLocked rebuilds and re-issues tokens for every module
// other than justRegistered so existing modules gain access to the
// newcomer's READ/WRITE components (§4.5 "Incremental re-auth").
func (r *Registry) reauthorizeOthersLocked(justRegistered string) {
	claims := r.snapshotPermsLocked()
	for name, lm := range r.byName {
		if name == justRegistered {
			continue
		}
		refreshed, err := r.tokenService.Refresh(lm.tok, claims)
		if err != nil {
			r.log.WithField("module", name).WithField("error", err).Warn("failed to refresh token during incremental re-auth")
			continue
		}
		lm.tok = refreshed
		lm.scoped.SetToken(refreshed.Raw)
	}
}

func (r *Registry) snapshotPermsLocked() map[ecs.ComponentID]token.ComponentPermission {
	out := make(map[ecs.ComponentID]token.ComponentPermission, len(r.perms))
	for comp, entry := range r.perms {
		out[comp] = token.ComponentPermission{Level: entry.Level, OwnerModule: entry.OwnerModule}
	}
	return out
}

func levelFromName(n plugin.PermissionLevelName) token.Level {
	switch n {
	case plugin.LevelPrivate:
		return token.Private
	case plugin.LevelRead:
		return token.Read
	default:
		return token.Write
	}
}

func (r *Registry) removeOwnedPermsLocked(module string) {
	for comp, entry := range r.perms {
		if entry.OwnerModule == module {
			delete(r.perms, comp)
		}
	}
}

func (r *Registry) removeFromOrderLocked(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// InstallFromArchivePath copies src into the scan directory then triggers a
// full rescan, per §4.5 "Install from archive path".
func (r *Registry) InstallFromArchivePath(src string) error {
	if err := os.MkdirAll(r.scanDir, 0o755); err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "create module scan directory", err)
	}
	dst := filepath.Join(r.scanDir, filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "open archive to install", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "copy archive into scan directory", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return simerr.Wrap(simerr.InvalidRequest, "copy archive into scan directory", err)
	}
	if err := out.Close(); err != nil {
		return simerr.Wrap(simerr.InvalidRequest, "copy archive into scan directory", err)
	}

	r.mu.Lock()
	r.version++
	r.mu.Unlock()

	return r.Scan()
}

// UninstallModule removes name from the in-memory registry without
// deleting its archive file; per §4.5/§9 this is in-memory only — the
// module reappears on the next full rescan unless the file is removed
// out-of-band.
func (r *Registry) UninstallModule(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return simerr.NotFoundf("module %s", name)
	}
	delete(r.byName, name)
	r.removeOwnedPermsLocked(name)
	r.removeFromOrderLocked(name)
	r.version++
	return nil
}

// Reset clears every loaded module and the permission registry. It is
// available directly for tests; InstallFromArchivePath does not call it
// (it bumps the version, invalidating dependents' caches, then rescans).
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*loaded)
	r.order = nil
	r.perms = make(map[ecs.ComponentID]permEntry)
	r.version++
}

// ResolveAllModules returns every loaded module in registration order,
// cached until the registry mutates (§4.5 "Resolve-all cache").
func (r *Registry) ResolveAllModules() []plugin.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolveCache != nil && r.resolveAt == r.version {
		return r.resolveCache
	}
	out := make([]plugin.Module, 0, len(r.order))
	for _, name := range r.order {
		if lm, ok := r.byName[name]; ok {
			out = append(out, lm.instance)
		}
	}
	r.resolveCache = out
	r.resolveAt = r.version
	return out
}

// Version returns a counter that increments on every mutation (register,
// uninstall, reset), letting dependents like the game loop's system cache
// and the snapshot engine's module map cheaply detect staleness.
func (r *Registry) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Lookup returns the loaded module named name, if any.
func (r *Registry) Lookup(name string) (plugin.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return lm.instance, true
}

// TokenFor returns the current signed capability token for a loaded
// module, used by tests and by built-in modules that need to act through
// the registry's own authority.
func (r *Registry) TokenFor(name string) (token.Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.byName[name]
	if !ok {
		return token.Token{}, false
	}
	return lm.tok, true
}

// ModuleCount returns the number of currently loaded modules, used by the
// container's statistics surface (§4.1 getStats).
func (r *Registry) ModuleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
