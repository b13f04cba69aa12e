package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.lock")

	held, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	assert.ErrorContains(t, err, "already in progress")

	require.NoError(t, held.Release())

	reacquired, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, reacquired.Release())
}

func TestRelease_Nil(t *testing.T) {
	var held *Lock
	assert.NoError(t, held.Release())
}
