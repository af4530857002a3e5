package simerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOfAndIs(t *testing.T) {
	err := AccessForbiddenf("component %d is PRIVATE", 7)
	require.True(t, Is(err, AccessForbidden))
	require.False(t, Is(err, NotFound))

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, AccessForbidden, code)
}

func TestWrapUnwraps(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(InvalidState, "cannot start", cause)
	assert.ErrorIs(t, err, cause)
}

func TestWithDetails(t *testing.T) {
	err := NotFoundf("module %q", "A").WithDetails(map[string]any{"module": "A"})
	assert.Equal(t, "A", err.Details["module"])
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		NotFound:        404,
		InvalidRequest:  400,
		InvalidState:    409,
		Capacity:        507,
		AccessForbidden: 403,
		Conflict:        409,
		InvalidToken:    401,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code))
	}
}

func TestCodeOfNonError(t *testing.T) {
	_, ok := CodeOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}
