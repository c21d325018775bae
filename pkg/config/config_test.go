// Test Type: Unit Test
// Description: Tests for configuration layering - defaults, file, environment

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
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, "blake3", cfg.Checksum)
	assert.Equal(t, "copy", cfg.Mode)
	assert.Equal(t, []string{"json", "matlab"}, cfg.GroupPreference)

	timeout, err := cfg.ItemTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, timeout)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stager.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 8\nmode = \"link\"\n"), 0644))

	cfg, err := loadFrom(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers, "file layer replaces defaults")
	assert.Equal(t, "link", cfg.Mode)
	assert.Equal(t, "blake3", cfg.Checksum, "untouched keys keep defaults")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stager.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 8\n"), 0644))

	t.Setenv("STAGER_WORKERS", "2")
	t.Setenv("STAGER_CHECKSUM", "md5")

	cfg, err := loadFrom(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers, "environment beats file")
	assert.Equal(t, "md5", cfg.Checksum)
}

func TestLoadOverridesBeatEnvironment(t *testing.T) {
	t.Setenv("STAGER_MODE", "copy")

	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.toml"), map[string]interface{}{
		"mode":             "link",
		"group_preference": []string{"matlab"},
	})
	require.NoError(t, err)

	assert.Equal(t, "link", cfg.Mode, "explicit flags beat the environment")
	assert.Equal(t, []string{"matlab"}, cfg.GroupPreference)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stager.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = [not toml"), 0644))

	_, err := loadFrom(path, nil)
	assert.Error(t, err)
}

func TestItemTimeoutInvalid(t *testing.T) {
	cfg := &Config{ItemTimeout: "soon"}
	_, err := cfg.ItemTimeoutDuration()
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.toml"), nil)
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "workers = 4")
	assert.Contains(t, out, "checksum = 'blake3'")
}
