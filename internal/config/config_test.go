package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default Config Tests
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Contains(t, cfg.Server.AllowedOrigins, "chrome-extension://*")
	assert.Equal(t, 5*time.Second, cfg.Storage.BusyTimeout)
	assert.False(t, cfg.Storage.InMemory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "#1d9bf0", cfg.Defaults.ListColor)
	assert.Equal(t, "#657786", cfg.Defaults.TagColor)
	assert.True(t, cfg.Reminders.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Reminders.IntegrityCheck)
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/crm"
	assert.Equal(t, filepath.Join("/tmp/crm", "profilecrm.db"), cfg.DatabasePath())

	cfg.Storage.Path = "/var/lib/crm.db"
	assert.Equal(t, "/var/lib/crm.db", cfg.DatabasePath())
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data, _ := json.Marshal(map[string]interface{}{
		"data_dir": "/data",
		"server":   map[string]interface{}{"port": 9000},
		"logging":  map[string]interface{}{"level": "debug"},
	})
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
data_dir: /yaml
storage:
  busy_timeout: 2s
defaults:
  list_color: "#ff0000"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/yaml", cfg.DataDir)
	assert.Equal(t, 2*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "#ff0000", cfg.Defaults.ListColor)
	assert.Equal(t, "#657786", cfg.Defaults.TagColor)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PROFILECRM_DATA_DIR", "/env")
	t.Setenv("PROFILECRM_PORT", "7000")
	t.Setenv("PROFILECRM_LOG_LEVEL", "warn")
	t.Setenv("PROFILECRM_STORAGE_IN_MEMORY", "true")
	t.Setenv("PROFILECRM_ALLOWED_ORIGINS", "http://a,http://b")
	t.Setenv("PROFILECRM_REMINDERS_ENABLED", "false")
	t.Setenv("PROFILECRM_REMINDERS_INTERVAL", "1m")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "/file", "server": {"port": 9000}}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/env", cfg.DataDir)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Reminders.Enabled)
	assert.Equal(t, time.Minute, cfg.Reminders.Interval)
}

// =============================================================================
// Save Tests
// =============================================================================

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := Default()
	cfg.DataDir = dir
	cfg.Server.Port = 9100
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Server.Port)
	assert.Equal(t, dir, loaded.DataDir)
}

func TestSave_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := Default()
	cfg.Logging.Format = "json"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", loaded.Logging.Format)
}
