package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.apollo.io", cfg.Apollo.BaseURL)
	assert.Equal(t, 1000, cfg.Apollo.DelayMs)
	assert.Equal(t, 60, cfg.Apollo.RequestsPerMinute)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 2000, cfg.Pipeline.PagePauseMs)
	assert.Equal(t, 100, cfg.Pipeline.EnrichLimit)
	assert.Equal(t, "presets.yaml", cfg.Pipeline.PresetsPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: leadflow.db
apollo:
  delay_ms: 250
  requests_per_minute: 30
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadflow.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 250, cfg.Apollo.DelayMs)
	assert.Equal(t, 30, cfg.Apollo.RequestsPerMinute)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LEADFLOW_APOLLO_KEY", "test-key")
	t.Setenv("LEADFLOW_STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Apollo.Key)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	yaml := `
tx-cto:
  person_titles: ["CTO", "VP Engineering"]
  company_locations: ["Texas, US"]
  employee_ranges: ["11,50", "51,200"]
  contact_email_status: ["verified"]
  per_page: 25
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Contains(t, presets, "tx-cto")
	assert.Equal(t, []string{"CTO", "VP Engineering"}, presets["tx-cto"].PersonTitles)
	assert.Equal(t, []string{"11,50", "51,200"}, presets["tx-cto"].EmployeeRanges)
	assert.Equal(t, 25, presets["tx-cto"].PerPage)
}

func TestLoadPresetsMissingFile(t *testing.T) {
	presets, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, presets)
}
