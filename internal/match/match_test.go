package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/simerr"
)

func TestCreateMatchStampsContainerIDAndAssignsID(t *testing.T) {
	r := New(7, func() bool { return true })

	m, err := r.CreateMatch(Match{EnabledModules: []string{"physics"}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.ContainerID)
	assert.Equal(t, int64(1), m.ID)

	m2, err := r.CreateMatch(Match{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m2.ID)
}

func TestCreateMatchRejectedOnNonRunningContainer(t *testing.T) {
	r := New(7, func() bool { return false })
	_, err := r.CreateMatch(Match{})
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.InvalidState))
}

func TestGetListAndDelete(t *testing.T) {
	r := New(1, func() bool { return true })
	m1, err := r.CreateMatch(Match{})
	require.NoError(t, err)
	m2, err := r.CreateMatch(Match{})
	require.NoError(t, err)

	got, err := r.Get(m1.ID)
	require.NoError(t, err)
	assert.Equal(t, m1, got)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, m1.ID, list[0].ID)
	assert.Equal(t, m2.ID, list[1].ID)

	require.NoError(t, r.Delete(m1.ID))
	_, err = r.Get(m1.ID)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.NotFound))
}

func TestDeleteUnknownMatchNotFound(t *testing.T) {
	r := New(1, func() bool { return true })
	err := r.Delete(999)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.NotFound))
}
