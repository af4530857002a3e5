// Package container implements the Execution Container (§4.1): the
// per-tenant lifecycle state machine that owns one ECS store, one module
// registry, one command pipeline, one game loop, one session/match
// registry pair, and one resource area.
//
// Grounded on the teacher's system/core LifecycleManager (ordered
// start/stop, swallow-and-log on shutdown, status bookkeeping) generalised
// from a static service registry to one dynamically-scoped simulation
// container.
package container

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/simfleet/simfleet/internal/benchmark"
	"github.com/simfleet/simfleet/internal/command"
	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/loop"
	"github.com/simfleet/simfleet/internal/logging"
	"github.com/simfleet/simfleet/internal/match"
	"github.com/simfleet/simfleet/internal/registry"
	"github.com/simfleet/simfleet/internal/resource"
	"github.com/simfleet/simfleet/internal/session"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/simmetrics"
	"github.com/simfleet/simfleet/internal/snapshot"
	"github.com/simfleet/simfleet/internal/token"
)

// Status is one of the six container lifecycle states (§4.1).
type Status string

const (
	Created  Status = "CREATED"
	Starting Status = "STARTING"
	Running  Status = "RUNNING"
	Paused   Status = "PAUSED"
	Stopping Status = "STOPPING"
	Stopped  Status = "STOPPED"
)

// Config is the per-container configuration recognised by start (§6).
type Config struct {
	Name                string
	ModuleScanDirectory string
	ModuleArchivePaths  []string
	MaxEntities         int
	MaxComponents       int
	MaxCommandsPerTick  int
	MaxMemoryMB         int
	ResourceBaseDir     string
	TokenSigningKey     []byte
	TokenTTL            time.Duration

	// SessionStaleTimeout is the timeout passed to Store.ExpireStale on
	// every cron-scheduled sweep (see SessionSweepCron).
	SessionStaleTimeout time.Duration
	// SessionSweepCron is a standard five-field cron expression
	// controlling how often the stale-session sweep runs.
	SessionSweepCron string
}

func (c Config) withDefaults() Config {
	if c.ModuleScanDirectory == "" {
		c.ModuleScanDirectory = "modules"
	}
	if c.MaxCommandsPerTick <= 0 {
		c.MaxCommandsPerTick = command.DefaultMaxPerTick
	}
	if c.ResourceBaseDir == "" {
		c.ResourceBaseDir = "resources"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
	if c.SessionStaleTimeout <= 0 {
		c.SessionStaleTimeout = 5 * time.Minute
	}
	if c.SessionSweepCron == "" {
		c.SessionSweepCron = "*/1 * * * *"
	}
	return c
}

// Stats is the container statistics surface of §4.1 getStats.
type Stats struct {
	EntityCount       int
	MaxEntities       int
	EcsUsedBytes      int64
	EcsMaxBytes       int64
	ProcessMaxMemory  uint64
	ProcessUsedMemory uint64
	MatchCount        int
	ModuleCount       int
}

// Container is one isolated simulation tenant: its own ECS, registry,
// loop, session/match state, and resource area.
type Container struct {
	ID   int64
	Name string

	cfg Config
	log *logging.Logger
	mtr *simmetrics.Metrics

	mu     sync.Mutex
	status Status
	tick   int64

	store      ecs.Interface
	dirty      *ecs.DirtyTrackingStore
	reg        *registry.Registry
	tokenSvc   *token.Service
	queue      *command.Queue
	resolver   *command.Resolver
	dispatcher *command.Dispatcher
	bench      *benchmark.Collector
	loopEngine *loop.Loop
	sessions   *session.Store
	sweeper    *session.Sweeper
	matches    *match.Registry
	resources  *resource.Area
	snapshots  *snapshot.Engine

	autoAdvanceCancel context.CancelFunc
	autoAdvanceWG     sync.WaitGroup
}

// New creates a container in the CREATED state. Resources are allocated
// only by Start.
func New(id int64, cfg Config, log *logging.Logger, mtr *simmetrics.Metrics) *Container {
	if log == nil {
		log = logging.Default
	}
	if mtr == nil {
		mtr = simmetrics.New()
	}
	cfg = cfg.withDefaults()
	return &Container{ID: id, Name: cfg.Name, cfg: cfg, log: log, mtr: mtr, status: Created}
}

// Status returns the container's current lifecycle state.
func (c *Container) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Container) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == Running
}

// Start allocates every container-owned resource and transitions
// CREATED -> STARTING -> RUNNING (§4.1 "Resources on start"). Rejected
// unless current status is CREATED. A failed start leaves the container
// STOPPED.
func (c *Container) Start() error {
	c.mu.Lock()
	if c.status != Created {
		c.mu.Unlock()
		return simerr.InvalidStatef("start requires CREATED, container is %s", c.status)
	}
	c.status = Starting
	c.mu.Unlock()

	if err := c.startLocked(); err != nil {
		c.mu.Lock()
		c.status = Stopped
		c.mu.Unlock()
		c.mtr.SetStatus(c.name(), allStatuses, string(Stopped))
		return err
	}

	c.mu.Lock()
	c.status = Running
	c.mu.Unlock()
	c.mtr.SetStatus(c.name(), allStatuses, string(Running))
	return nil
}

var allStatuses = []string{
	string(Created), string(Starting), string(Running),
	string(Paused), string(Stopping), string(Stopped),
}

func (c *Container) name() string {
	if c.Name != "" {
		return c.Name
	}
	return strconv.FormatInt(c.ID, 10)
}

func (c *Container) startLocked() error {
	base := ecs.New(c.cfg.MaxEntities, c.cfg.MaxComponents)
	dirty := ecs.NewDirtyTracking(base)
	locked := ecs.NewLocking(dirty)

	c.store = locked
	c.dirty = dirty

	c.tokenSvc = token.NewService(c.cfg.TokenSigningKey, c.cfg.TokenTTL)
	c.reg = registry.New(c.cfg.ModuleScanDirectory, c.store, c.tokenSvc, registry.DefaultEntityModuleName, c.log)

	c.sessions = session.New()
	c.sweeper = session.NewSweeper(c.sessions, c.cfg.SessionStaleTimeout, c.log)
	if err := c.sweeper.Start(c.cfg.SessionSweepCron); err != nil {
		return err
	}
	c.matches = match.New(c.ID, c.isRunning)

	area, err := resource.New(c.cfg.ResourceBaseDir, c.ID)
	if err != nil {
		return err
	}
	c.resources = area

	for _, p := range c.cfg.ModuleArchivePaths {
		if err := c.reg.InstallFromArchivePath(p); err != nil {
			return err
		}
	}
	if err := c.reg.Scan(); err != nil {
		return err
	}

	c.queue = command.NewQueue()
	c.resolver = command.NewResolver(c.reg, c.log)
	c.dispatcher = command.NewDispatcher(c.resolver, c.queue, c.isRunning)

	c.bench = benchmark.New()
	c.loopEngine = loop.New(c.reg, c.queue, c.bench, c.log, func(moduleName string, err error) {
		c.log.ForModule(moduleName).WithField("error", err).Warn("fault isolated during tick")
		c.mtr.RecordSystemError(c.name(), moduleName)
	})

	c.snapshots = snapshot.NewEngine(c.reg, c.store)

	c.mtr.SetModuleCount(c.name(), c.reg.ModuleCount())
	return nil
}

// Pause transitions RUNNING -> PAUSED.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Running {
		return simerr.InvalidStatef("pause requires RUNNING, container is %s", c.status)
	}
	c.status = Paused
	c.mtr.SetStatus(c.name(), allStatuses, string(Paused))
	return nil
}

// Resume transitions PAUSED -> RUNNING.
func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Paused {
		return simerr.InvalidStatef("resume requires PAUSED, container is %s", c.status)
	}
	c.status = Running
	c.mtr.SetStatus(c.name(), allStatuses, string(Running))
	return nil
}

// AdvanceTick runs one tick of the game loop, incrementing currentTick.
// Rejected unless RUNNING.
func (c *Container) AdvanceTick() (int64, error) {
	c.mu.Lock()
	if c.status != Running {
		c.mu.Unlock()
		return 0, simerr.InvalidStatef("advanceTick requires RUNNING, container is %s", c.status)
	}
	c.tick++
	tickNo := c.tick
	c.mu.Unlock()

	start := time.Now()
	c.loopEngine.AdvanceTick(tickNo, c.cfg.MaxCommandsPerTick)
	c.mtr.RecordTick(c.name(), time.Since(start))
	c.mtr.SetEntityCount(c.name(), c.store.EntityCount())
	return tickNo, nil
}

// Play starts a fixed-rate timer invoking AdvanceTick every interval.
// intervalMs <= 0 is rejected. Calling Play while already playing cancels
// the previous schedule first.
func (c *Container) Play(intervalMs int) error {
	if intervalMs <= 0 {
		return simerr.InvalidRequestf("autoAdvanceIntervalMs must be > 0, got %d", intervalMs)
	}
	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.autoAdvanceCancel = cancel
	c.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(time.Duration(intervalMs)*time.Millisecond), 1)
	c.autoAdvanceWG.Add(1)
	go func() {
		defer c.autoAdvanceWG.Done()
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := c.AdvanceTick(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Stop cancels auto-advance, if running. It does not itself change the
// container's lifecycle status — see Shutdown for that.
func (c *Container) Stop() {
	c.mu.Lock()
	cancel := c.autoAdvanceCancel
	c.autoAdvanceCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.autoAdvanceWG.Wait()
	}
}

// Commands returns the fluent command dispatcher.
func (c *Container) Commands() *command.Dispatcher {
	return c.dispatcher
}

// Sessions returns the session state machine for this container.
func (c *Container) Sessions() *session.Store {
	return c.sessions
}

// Matches returns the match registry for this container.
func (c *Container) Matches() *match.Registry {
	return c.matches
}

// Resources returns the file-backed resource area for this container.
func (c *Container) Resources() *resource.Area {
	return c.resources
}

// Snapshots returns the snapshot/delta engine for this container.
func (c *Container) Snapshots() *snapshot.Engine {
	return c.snapshots
}

// Registry returns the module registry for this container.
func (c *Container) Registry() *registry.Registry {
	return c.reg
}

// Queue returns the command queue, used by the container metrics surface
// to report commandQueueSize.
func (c *Container) Queue() *command.Queue {
	return c.queue
}

// ConsumeDirtyInfo returns and clears matchID's {added, modified, removed}
// entity sets since the last consume, for callers that want an
// incremental view of what changed instead of recomputing a full
// snapshot diff every tick.
func (c *Container) ConsumeDirtyInfo(matchID int64) ecs.DirtyInfo {
	return c.dirty.ConsumeDirtyInfo(matchID)
}

// PeekDirtyInfo returns matchID's current dirty sets without clearing
// them.
func (c *Container) PeekDirtyInfo(matchID int64) ecs.DirtyInfo {
	return c.dirty.PeekDirtyInfo(matchID)
}

// Tick returns the current tick counter.
func (c *Container) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// GetStats returns the statistics surface of §4.1.
func (c *Container) GetStats() Stats {
	processMaxMemory, processUsedMemory := processMemory()
	entityCount := 0
	if c.store != nil {
		entityCount = c.store.EntityCount()
	}
	matchCount := 0
	if c.matches != nil {
		matchCount = len(c.matches.List())
	}
	moduleCount := 0
	if c.reg != nil {
		moduleCount = c.reg.ModuleCount()
	}
	var ecsMaxBytes int64
	if c.cfg.MaxMemoryMB > 0 {
		ecsMaxBytes = int64(c.cfg.MaxMemoryMB) * 1024 * 1024
	}
	return Stats{
		EntityCount:       entityCount,
		MaxEntities:       c.cfg.MaxEntities,
		EcsUsedBytes:      int64(entityCount) * int64(c.cfg.MaxComponents) * 4,
		EcsMaxBytes:       ecsMaxBytes,
		ProcessMaxMemory:  processMaxMemory,
		ProcessUsedMemory: processUsedMemory,
		MatchCount:        matchCount,
		ModuleCount:       moduleCount,
	}
}

// Shutdown cancels auto-advance, waits briefly for the tick worker, then
// releases resources and sets STOPPED. Errors during shutdown are logged
// and swallowed — the container still ends up STOPPED (§4.1 "Shutdown").
func (c *Container) Shutdown() {
	c.mu.Lock()
	if c.status == Stopped {
		c.mu.Unlock()
		return
	}
	c.status = Stopping
	c.mu.Unlock()
	c.mtr.SetStatus(c.name(), allStatuses, string(Stopping))

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.log.ForContainer(c.ID, c.Name).Warn("auto-advance did not stop within grace period")
	}

	if c.sweeper != nil {
		c.sweeper.Stop()
	}

	c.mu.Lock()
	c.status = Stopped
	c.mu.Unlock()
	c.mtr.SetStatus(c.name(), allStatuses, string(Stopped))
}
