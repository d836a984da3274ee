package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysFileOntoDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enginecore.yaml")
	contents := []byte(`
sink:
  worker_count: 16
  ring_allocator_capacity: 2048
cache:
  allow_overwrites: false
  max_index_redundancy: 9001
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 16, cfg.Sink.WorkerCount)
	require.Equal(t, 2048, cfg.Sink.RingAllocatorCapacity)
	require.False(t, cfg.Cache.AllowOverwrites)
	require.EqualValues(t, 9001, cfg.Cache.MaxIndexRedundancy)

	// Fields absent from the file retain Default()'s values.
	require.Equal(t, Default().Cache.ClusterSize, cfg.Cache.ClusterSize)
	require.Equal(t, Default().Logging.Level, cfg.Logging.Level)
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enginecore.yaml")
	contents := []byte(`
sink:
  worker_count: 0
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
