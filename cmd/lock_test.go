package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypull/fetchd/internal/config"
)

func TestAcquireLock(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)
	require.NoError(t, config.EnsureDirs())

	out := filepath.Join(tempDir, "downloads")

	lock, locked, err := AcquireLock(out)
	require.NoError(t, err)
	require.True(t, locked, "first acquisition on a fresh output path must succeed")

	_, locked2, err := AcquireLock(out)
	require.NoError(t, err)
	assert.False(t, locked2, "a second acquisition on the same output path must fail")

	require.NoError(t, lock.Release())

	_, locked3, err := AcquireLock(out)
	require.NoError(t, err)
	assert.True(t, locked3, "acquisition must succeed again after release")
}

func TestAcquireLock_DistinctOutputPathsDoNotContend(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)
	require.NoError(t, config.EnsureDirs())

	lockA, lockedA, err := AcquireLock(filepath.Join(tempDir, "a"))
	require.NoError(t, err)
	require.True(t, lockedA)
	defer lockA.Release()

	_, lockedB, err := AcquireLock(filepath.Join(tempDir, "b"))
	require.NoError(t, err)
	assert.True(t, lockedB, "a different output path must not contend with the first")
}
