package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simfleet/simfleet/internal/ecs"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewService([]byte("s3cr3t"), time.Minute)
	tok, err := svc.Issue("moduleA", false, map[ecs.ComponentID]ComponentPermission{
		10: {Level: Read, OwnerModule: "moduleA"},
	})
	require.NoError(t, err)

	claims, err := svc.Verify(tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, "moduleA", claims.ModuleName)
	assert.False(t, claims.IsSuperuser)
	assert.Equal(t, Read, claims.ComponentPermissions[10].Level)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	svc := NewService([]byte("right"), time.Minute)
	tok, err := svc.Issue("moduleA", false, nil)
	require.NoError(t, err)

	other := NewService([]byte("wrong"), time.Minute)
	_, err = other.Verify(tok.Raw)
	require.Error(t, err)
}

func TestRefreshPreservesSuperuser(t *testing.T) {
	svc := NewService([]byte("s3cr3t"), time.Minute)
	tok, err := svc.Issue("entities", true, nil)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(tok, map[ecs.ComponentID]ComponentPermission{5: {Level: Write, OwnerModule: "entities"}})
	require.NoError(t, err)
	assert.True(t, refreshed.Claims.IsSuperuser)
	assert.Equal(t, Write, refreshed.Claims.ComponentPermissions[5].Level)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewService([]byte("s3cr3t"), -time.Minute)
	tok, err := svc.Issue("moduleA", false, nil)
	require.NoError(t, err)

	_, err = svc.Verify(tok.Raw)
	require.Error(t, err)
}
