package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/simfleet/simfleet/internal/logging"
)

// Sweeper runs Store.ExpireStale on a cron schedule, on top of the
// synchronous call any caller can still make directly. Grounded on the
// teacher's automation Scheduler (a goroutine driven by a ticker, started
// from Start and torn down from Stop); here the ticker is replaced by a
// real cron.Cron so the sweep cadence is configurable as a standard
// five-field expression rather than a fixed interval constant.
type Sweeper struct {
	mu      sync.Mutex
	store   *Store
	timeout time.Duration
	log     *logging.Logger
	cron    *cron.Cron
	entryID cron.EntryID
	lastN   int
}

// NewSweeper builds a Sweeper that expires sessions disconnected for
// longer than timeout. It does not start running until Start is called.
func NewSweeper(store *Store, timeout time.Duration, log *logging.Logger) *Sweeper {
	if log == nil {
		log = logging.Default
	}
	return &Sweeper{store: store, timeout: timeout, log: log, cron: cron.New()}
}

// Start schedules the sweep to run every interval (expressed as a cron
// spec, e.g. "@every 1m") and starts the underlying cron.Cron goroutine.
// Calling Start twice is rejected to mirror the single-shot Play/Start
// lifecycle used elsewhere in this module.
func (sw *Sweeper) Start(spec string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.entryID != 0 {
		return fmt.Errorf("sweeper already started")
	}
	id, err := sw.cron.AddFunc(spec, sw.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	sw.entryID = id
	sw.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to
// finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.entryID == 0 {
		return
	}
	<-sw.cron.Stop().Done()
	sw.entryID = 0
}

// LastSwept returns how many sessions were expired by the most recent
// sweep.
func (sw *Sweeper) LastSwept() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.lastN
}

func (sw *Sweeper) sweep() {
	n := sw.store.ExpireStale(sw.timeout)
	sw.mu.Lock()
	sw.lastN = n
	sw.mu.Unlock()
	if n > 0 {
		sw.log.WithField("expired", n).Debug("session sweep expired stale sessions")
	}
}
