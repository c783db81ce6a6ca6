package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoPath(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads_per_queue: 8\nlog_level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.ThreadsPerQueue)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Millisecond, cfg.RetrySleep)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("TENSORSCHED_THREADS_PER_QUEUE", "16")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads_per_queue: 8\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.ThreadsPerQueue)
}

func TestLoad_RejectsInvalidThreadsPerQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads_per_queue: 0\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
