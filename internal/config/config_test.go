package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultCycleInterval, cfg.CycleInterval)
	assert.Equal(t, 3, cfg.MaxConsecutiveErrors)
	assert.Equal(t, filepath.Join(dir, "data", "pixel-hawk.db"), cfg.DBPath())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "upstream-base-url: https://tiles.internal/fetch\ncycle-interval: 45s\nmax-consecutive-errors: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.internal/fetch", cfg.UpstreamBaseURL)
	assert.Equal(t, 45*time.Second, cfg.CycleInterval)
	assert.Equal(t, 5, cfg.MaxConsecutiveErrors)
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PIXELHAWK_CYCLE_SECONDS", "12")
	t.Setenv("PIXELHAWK_UPSTREAM_BASE_URL", "https://override.example")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.CycleInterval)
	assert.Equal(t, "https://override.example", cfg.UpstreamBaseURL)
}
