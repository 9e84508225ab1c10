package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMaxParts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer.MaxParts = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadSparseRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer.RatioOfDefaultsForSparseSerialization = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownCatalogDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Driver = "mongo"
	assert.Error(t, cfg.Validate())
}

func TestValidatePostgresRequiresHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Driver = "postgres"
	cfg.Catalog.PostgresConfig.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("writer:\n  max_parts: 42\ncatalog:\n  driver: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "cat.db") + "\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Writer.MaxParts)
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("writer:\n  max_parts: 42\ncatalog:\n  driver: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "cat.db") + "\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("MERGETREE_MAX_PARTS", "7")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Writer.MaxParts)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, Name: "n", User: "u", Password: "p", SSLMode: "disable"}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=n")
}
