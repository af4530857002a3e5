package simmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTickIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RecordTick("c1", 5*time.Millisecond)
	m.RecordTick("c1", 7*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TicksTotal.WithLabelValues("c1")))
}

func TestSetEntityAndModuleCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.SetEntityCount("c1", 42)
	m.SetModuleCount("c1", 3)

	assert.Equal(t, float64(42), testutil.ToFloat64(m.EntityCount.WithLabelValues("c1")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ModuleCount.WithLabelValues("c1")))
}

func TestSetStatusOnlyCurrentIsOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	all := []string{"CREATED", "RUNNING", "STOPPED"}

	m.SetStatus("c1", all, "RUNNING")

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ContainerStatus.WithLabelValues("c1", "CREATED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ContainerStatus.WithLabelValues("c1", "RUNNING")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ContainerStatus.WithLabelValues("c1", "STOPPED")))
}
