package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Zero(t, cfg.Chunking.MinSize)
	assert.Equal(t, int64(256*1024*1024), cfg.Cache.L1MaxBytes)
	require.NotNil(t, cfg.Cache.PrefetchEnabled)
	assert.True(t, *cfg.Cache.PrefetchEnabled)
	assert.Equal(t, 4, cfg.Cache.PrefetchCount)
}

func TestLoadMissingFilesUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.L1MaxBytes, cfg.Cache.L1MaxBytes)
}

func TestLocalOverridesDefaults(t *testing.T) {
	ditsDir := t.TempDir()
	local := "chunking:\n  min_size: 4096\n  target_size: 16384\ncache:\n  l1_max_bytes: 1048576\n  prefetch_enabled: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(ditsDir, "config.yaml"), []byte(local), 0o644))

	cfg, err := Load(ditsDir)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), cfg.Chunking.MinSize)
	assert.Equal(t, uint32(16384), cfg.Chunking.TargetSize)
	assert.Equal(t, int64(1048576), cfg.Cache.L1MaxBytes)
	require.NotNil(t, cfg.Cache.PrefetchEnabled)
	assert.False(t, *cfg.Cache.PrefetchEnabled)

	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Cache.L2MaxBytes, cfg.Cache.L2MaxBytes)
}

func TestMalformedConfigIsAnError(t *testing.T) {
	ditsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ditsDir, "config.yaml"), []byte("cache: ["), 0o644))

	_, err := Load(ditsDir)
	assert.Error(t, err)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	ditsDir := t.TempDir()
	cfg := Default()
	cfg.Author.Name = "Ada"
	cfg.Author.Email = "ada@example.com"
	cfg.Cache.L2MaxBytes = 12345678

	require.NoError(t, Save(ditsDir, cfg))

	loaded, err := Load(ditsDir)
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Author.Name)
	assert.Equal(t, "ada@example.com", loaded.Author.Email)
	assert.Equal(t, int64(12345678), loaded.Cache.L2MaxBytes)
}
