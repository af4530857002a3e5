// Package loop implements the Game Loop (§4.2): the four-step
// advanceTick contract, with a lazily-built, explicitly-invalidated
// system cache.
package loop

import (
	"github.com/simfleet/simfleet/internal/benchmark"
	"github.com/simfleet/simfleet/internal/command"
	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/registry"
)

// TickCompleteListener is the persistence listener ABI (§6):
// onTickComplete invoked after every tick; implementations may skip work
// for most ticks (e.g. persist every N).
type TickCompleteListener interface {
	OnTickComplete(tickNo int64)
}

// namedSystem pairs a system with the module that declared it, so a fault
// can be attributed and so per-module benchmark scopes are labelled.
type namedSystem struct {
	moduleName string
	system     plugin.System
}

// Loop drives one container's per-tick execution.
type Loop struct {
	reg       *registry.Registry
	queue     *command.Queue
	bench     *benchmark.Collector
	log       *logging.Logger
	listeners []TickCompleteListener
	onFault   func(moduleName string, err error)

	systemCache   []namedSystem
	systemCacheAt int
	systemBuilt   bool
}

// New builds a Loop wired to reg for system resolution, queue for command
// draining, and bench for per-tick timing. onFault, if non-nil, is called
// whenever a system or command executor returns an error (e.g. to drive a
// simmetrics counter); it is always called in addition to logging, never
// instead of it.
func New(reg *registry.Registry, queue *command.Queue, bench *benchmark.Collector, log *logging.Logger, onFault func(moduleName string, err error)) *Loop {
	if log == nil {
		log = logging.Default
	}
	return &Loop{reg: reg, queue: queue, bench: bench, log: log, onFault: onFault}
}

// AddListener registers a tick-complete listener, notified in registration
// order after every AdvanceTick.
func (l *Loop) AddListener(listener TickCompleteListener) {
	l.listeners = append(l.listeners, listener)
}

// InvalidateSystemCache forces the next AdvanceTick to rebuild the system
// list from resolveAllModules(), per §4.2 "invalidated explicitly on
// module install/uninstall/reload".
func (l *Loop) InvalidateSystemCache() {
	l.systemBuilt = false
}

func (l *Loop) systems() []namedSystem {
	if l.systemBuilt && l.systemCacheAt == l.reg.Version() {
		return l.systemCache
	}
	var systems []namedSystem
	for _, mod := range l.reg.ResolveAllModules() {
		for _, sys := range mod.Systems() {
			systems = append(systems, namedSystem{moduleName: mod.Name(), system: sys})
		}
	}
	l.systemCache = systems
	l.systemCacheAt = l.reg.Version()
	l.systemBuilt = true
	return systems
}

// defaultMaxCommandsPerTick bounds step 1's drain when AdvanceTick is
// passed maxCommands ≤ 0.
const defaultMaxCommandsPerTick = command.DefaultMaxPerTick

// AdvanceTick runs the four-step contract of §4.2 for tickNo, using
// maxCommands as the bound on step 1's drain (pass ≤0 to use the default).
func (l *Loop) AdvanceTick(tickNo int64, maxCommands int) {
	if maxCommands <= 0 {
		maxCommands = defaultMaxCommandsPerTick
	}

	// Step 1: drain and execute commands. An executor error is logged and
	// does not abort the tick.
	for _, item := range l.queue.Drain(maxCommands) {
		func() {
			defer l.recoverInto(item.Command.ModuleName)
			if err := item.Command.Execute(item.ExecutionPayload()); err != nil {
				l.fault(item.Command.ModuleName, err)
			}
		}()
	}

	// Step 2: run cached systems in module-declaration order, fault-isolated
	// per system.
	for _, ns := range l.systems() {
		func() {
			defer l.recoverInto(ns.moduleName)
			err := l.bench.Measure(ns.moduleName, "update", ns.system.Update)
			if err != nil {
				l.fault(ns.moduleName, err)
			}
		}()
	}

	// Step 3: reset and collect per-module benchmark samples.
	l.bench.CollectTick()

	// Step 4: notify tick-complete listeners.
	for _, listener := range l.listeners {
		listener.OnTickComplete(tickNo)
	}
}

func (l *Loop) fault(moduleName string, err error) {
	l.log.ForModule(moduleName).WithField("error", err).Warn("command or system execution failed")
	if l.onFault != nil {
		l.onFault(moduleName, err)
	}
}

// recoverInto converts a panicking executor or system into a logged fault
// instead of crashing the tick worker, since a hostile or buggy plugin
// script can panic goja's Go-called functions.
func (l *Loop) recoverInto(moduleName string) {
	if r := recover(); r != nil {
		l.log.ForModule(moduleName).WithField("panic", r).Error("recovered panic during tick")
	}
}
