package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pippin-db/pippin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoSidecar(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(4194304), cfg.SnapshotThresholdBytes)
	assert.Equal(t, 2, cfg.LogSiblingCount)
}

func TestLoadSidecarOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	sidecar := "[core]\nsnapshot_threshold_bytes = 1024\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.SidecarName), []byte(sidecar), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.SnapshotThresholdBytes)
	assert.Equal(t, 2, cfg.LogSiblingCount)
}

func TestLoadEnvOverridesSidecar(t *testing.T) {
	dir := t.TempDir()
	sidecar := "[core]\nsnapshot_threshold_bytes = 1024\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.SidecarName), []byte(sidecar), 0o644))

	t.Setenv("PIPPIN_SNAPSHOT_THRESHOLD_BYTES", "99")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.SnapshotThresholdBytes)
}
