// Package benchmark implements the per-tick Benchmark Collector (§4.2 step
// 3, §6 "lastTickBenchmarks"): scoped timing samples gathered during a
// tick, snapshotted and reset at tick end.
package benchmark

import (
	"sync"
	"time"
)

// Sample is one completed scope measurement.
type Sample struct {
	ModuleName string
	ScopeName  string
	Duration   time.Duration
}

// Metric is the public shape the container metrics surface exposes
// (§6 "lastTickBenchmarks").
type Metric struct {
	ModuleName         string
	ScopeName          string
	FullName           string
	ExecutionTimeMs    float64
	ExecutionTimeNanos int64
}

func (s Sample) toMetric() Metric {
	return Metric{
		ModuleName:         s.ModuleName,
		ScopeName:          s.ScopeName,
		FullName:           s.ModuleName + ":" + s.ScopeName,
		ExecutionTimeMs:    float64(s.Duration) / float64(time.Millisecond),
		ExecutionTimeNanos: s.Duration.Nanoseconds(),
	}
}

// Collector accumulates scope samples during a tick and exposes the prior
// tick's drained set as lastTickBenchmarks.
type Collector struct {
	mu      sync.Mutex
	current []Sample
	last     []Metric
}

// New builds an empty Collector.
func New() *Collector {
	return &Collector{}
}

// Record appends a completed measurement for the current tick.
func (c *Collector) Record(moduleName, scopeName string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = append(c.current, Sample{ModuleName: moduleName, ScopeName: scopeName, Duration: d})
}

// Measure times fn as one scope sample for moduleName/scopeName, recording
// the elapsed duration regardless of whether fn returns an error.
func (c *Collector) Measure(moduleName, scopeName string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.Record(moduleName, scopeName, time.Since(start))
	return err
}

// CollectTick drains the samples accumulated since the last call, storing
// them as lastTickBenchmarks and clearing the accumulator for the next
// tick (§4.2 step 3: "replacing the previous tick's").
func (c *Collector) CollectTick() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, 0, len(c.current))
	for _, s := range c.current {
		out = append(out, s.toMetric())
	}
	c.current = nil
	c.last = out
	return out
}

// LastTickBenchmarks returns the metrics surface's lastTickBenchmarks
// field, i.e. the most recently collected tick's samples.
func (c *Collector) LastTickBenchmarks() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, len(c.last))
	copy(out, c.last)
	return out
}
