package fleet

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/container"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/simmetrics"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(nil, simmetrics.NewWithRegistry(prometheus.NewRegistry()))
}

func testConfig(t *testing.T, name string) container.Config {
	return container.Config{
		Name:                name,
		ModuleScanDirectory: t.TempDir(),
		MaxEntities:         16,
		MaxComponents:       8,
		ResourceBaseDir:     t.TempDir(),
		TokenSigningKey:     []byte("key"),
		TokenTTL:            time.Hour,
	}
}

func TestCreateContainerAssignsMonotonicIDs(t *testing.T) {
	m := newTestManager(t)
	c1 := m.CreateContainer(testConfig(t, "alpha"))
	c2 := m.CreateContainer(testConfig(t, "beta"))
	assert.Equal(t, int64(1), c1.ID)
	assert.Equal(t, int64(2), c2.ID)
}

func TestGetByNameLinearScan(t *testing.T) {
	m := newTestManager(t)
	m.CreateContainer(testConfig(t, "alpha"))
	c2 := m.CreateContainer(testConfig(t, "beta"))

	got, err := m.GetByName("beta")
	require.NoError(t, err)
	assert.Equal(t, c2.ID, got.ID)

	_, err = m.GetByName("missing")
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.NotFound))
}

func TestDeleteContainerRequiresStopped(t *testing.T) {
	m := newTestManager(t)
	c := m.CreateContainer(testConfig(t, "alpha"))
	require.NoError(t, c.Start())

	err := m.DeleteContainer(c.ID)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.InvalidState))

	c.Shutdown()
	require.NoError(t, m.DeleteContainer(c.ID))

	_, err = m.Get(c.ID)
	require.Error(t, err)
}

func TestShutdownAllStopsAndClearsDirectory(t *testing.T) {
	m := newTestManager(t)
	c1 := m.CreateContainer(testConfig(t, "alpha"))
	c2 := m.CreateContainer(testConfig(t, "beta"))
	require.NoError(t, c1.Start())
	require.NoError(t, c2.Start())

	m.ShutdownAll()

	assert.Equal(t, container.Stopped, c1.Status())
	assert.Equal(t, container.Stopped, c2.Status())
	assert.Equal(t, 0, m.Count())
}

func TestListOrdersByID(t *testing.T) {
	m := newTestManager(t)
	m.CreateContainer(testConfig(t, "alpha"))
	m.CreateContainer(testConfig(t, "beta"))
	m.CreateContainer(testConfig(t, "gamma"))

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)
	assert.Equal(t, int64(3), list[2].ID)
}
