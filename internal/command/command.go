// Package command implements the Command Pipeline (§4.2, §4.1 "Commands
// operation"): a bounded-drain FIFO queue of resolved (command, payload)
// pairs, with a registry-backed name resolver cached until the registry
// mutates.
//
// Grounded on the teacher's infrastructure/ratelimit token-bucket style of
// a small mutex-guarded slice-backed queue, generalised from rate-limiter
// buckets to an MPSC command queue (§5: "many enqueuers, one dequeuer").
package command

import (
	"sync"

	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/plugin"
	"github.com/simfleet/simfleet/internal/registry"
	"github.com/simfleet/simfleet/internal/simerr"
)

// DefaultMaxPerTick is the default bound on how many queued items one
// advanceTick drains (§4.2 step 1).
const DefaultMaxPerTick = 10000

// MatchIDPayloadKey is the payload key a forMatch(m) dispatch injects so
// plugin command code can actually observe which match it is running for,
// via ExecutionPayload.
const MatchIDPayloadKey = "matchId"

// Item is one enqueued (command, payload) pair. MatchID is set when the
// caller used the forMatch(m) variant; a plain named(n) call leaves it nil.
type Item struct {
	Command plugin.Command
	Payload map[string]any
	MatchID *int64
}

// ExecutionPayload is the map actually passed to Command.Execute: Payload
// unchanged for a plain named(n) dispatch, or Payload plus MatchID under
// MatchIDPayloadKey for a forMatch(m) dispatch. Payload itself is never
// mutated, since the caller may still hold a reference to it.
func (i Item) ExecutionPayload() map[string]any {
	if i.MatchID == nil {
		return i.Payload
	}
	out := make(map[string]any, len(i.Payload)+1)
	for k, v := range i.Payload {
		out[k] = v
	}
	out[MatchIDPayloadKey] = *i.MatchID
	return out
}

// Queue is the container's MPSC command queue: unbounded storage, bounded
// per-tick drain.
type Queue struct {
	mu    sync.Mutex
	items []Item
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends item to the tail, called from any submitter goroutine.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Drain pops up to max items from the head in FIFO order, called only from
// the tick worker.
func (q *Queue) Drain(max int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || len(q.items) == 0 {
		return nil
	}
	n := max
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Item, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out
}

// Len reports the number of items currently queued, used by the
// container's commandQueueSize metric.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Resolver resolves a command name against every loaded module's declared
// commands, caching the merged name→Command map until the registry
// mutates (the same cache-until-invalidated shape as the game loop's
// system cache and the snapshot engine's module map).
type Resolver struct {
	reg *registry.Registry
	log *logging.Logger

	mu      sync.Mutex
	cache   map[string]plugin.Command
	cacheAt int
}

// NewResolver builds a Resolver backed by reg.
func NewResolver(reg *registry.Registry, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.Default
	}
	return &Resolver{reg: reg, log: log}
}

// Resolve looks up name, rebuilding the cache first if the registry has
// mutated since the cache was last built. Names are globally unique within
// a container; duplicates across modules overwrite the earlier entry with
// a warning (§3 "Command").
func (r *Resolver) Resolve(name string) (plugin.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil || r.cacheAt != r.reg.Version() {
		r.rebuildLocked()
	}
	cmd, ok := r.cache[name]
	return cmd, ok
}

func (r *Resolver) rebuildLocked() {
	cache := make(map[string]plugin.Command)
	for _, mod := range r.reg.ResolveAllModules() {
		for _, cmd := range mod.Commands() {
			if _, dup := cache[cmd.Name]; dup {
				r.log.WithField("command", cmd.Name).Warn("duplicate command name overwrites earlier entry")
			}
			cache[cmd.Name] = cmd
		}
	}
	r.cache = cache
	r.cacheAt = r.reg.Version()
}

// Dispatcher is the fluent entry point `commands()` exposes at the
// container level: commands().named(n).execute(payload) and
// ...forMatch(m).execute(payload), both requiring RUNNING.
type Dispatcher struct {
	resolver *Resolver
	queue    *Queue
	running  func() bool
}

// NewDispatcher builds a Dispatcher. running reports whether the owning
// container is currently RUNNING; enqueue is rejected INVALID_STATE when
// it returns false.
func NewDispatcher(resolver *Resolver, queue *Queue, running func() bool) *Dispatcher {
	return &Dispatcher{resolver: resolver, queue: queue, running: running}
}

// Handle is the per-name builder returned by Named, carrying an optional
// match scope set by ForMatch.
type Handle struct {
	d       *Dispatcher
	name    string
	matchID *int64
}

// Named begins a command invocation for name.
func (d *Dispatcher) Named(name string) *Handle {
	return &Handle{d: d, name: name}
}

// ForMatch scopes the invocation to matchID.
func (h *Handle) ForMatch(matchID int64) *Handle {
	h.matchID = &matchID
	return h
}

// Execute resolves the command and enqueues it for the next tick's drain.
func (h *Handle) Execute(payload map[string]any) error {
	if !h.d.running() {
		return simerr.InvalidStatef("container is not running")
	}
	cmd, ok := h.d.resolver.Resolve(h.name)
	if !ok {
		return simerr.NotFoundf("command %s", h.name)
	}
	h.d.queue.Enqueue(Item{Command: cmd, Payload: payload, MatchID: h.matchID})
	return nil
}
