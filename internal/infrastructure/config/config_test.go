package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  allowed_origins:
    - http://localhost:4000
storage:
  database_path: /tmp/test-reconcile.db
matching:
  auto_match_threshold: 0.85
  amount_tolerance: 0.05
  suggestion_floor: 0.25
  workers: 2
observability:
  logging:
    level: debug
    format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:4000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/test-reconcile.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.85, cfg.Matching.AutoMatchThreshold)
	assert.Equal(t, 0.05, cfg.Matching.AmountTolerance)
	assert.Equal(t, 0.25, cfg.Matching.SuggestionFloor)
	assert.Equal(t, 2, cfg.Matching.Workers)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
}

func TestLoadExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("RECONCILE_DB_PATH", "/data/expanded.db")

	path := writeConfig(t, `
storage:
  database_path: ${RECONCILE_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/expanded.db", cfg.Storage.DatabasePath)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "reconcile.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.70, cfg.Matching.AutoMatchThreshold)
	assert.Equal(t, 0.01, cfg.Matching.AmountTolerance)
	assert.Equal(t, 0.30, cfg.Matching.SuggestionFloor)
	assert.Equal(t, 4, cfg.Matching.Workers)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECONCILE_PORT", "7070")
	t.Setenv("RECONCILE_DB_PATH", "/data/env.db")
	t.Setenv("RECONCILE_AUTO_MATCH_THRESHOLD", "0.9")
	t.Setenv("RECONCILE_MATCH_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := LoadFromEnv()

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/data/env.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.9, cfg.Matching.AutoMatchThreshold)
	assert.Equal(t, 8, cfg.Matching.Workers)
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
}

func TestLoadOrEnvFallsBack(t *testing.T) {
	t.Setenv("RECONCILE_PORT", "6060")

	cfg := LoadOrEnvWithPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 6060, cfg.Server.Port)
}
