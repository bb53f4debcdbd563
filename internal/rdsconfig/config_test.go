package rdsconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.False(t, cfg.RebuildExpired)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rds:\n  rebuild_expired: true\n  max_branches: 16\n  dialect: mysql\n  host: db.internal\n  port: 3307\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.RebuildExpired)
	assert.Equal(t, 16, cfg.MaxBranches)
	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
}

func TestValidateRejectsUnknownDialect(t *testing.T) {
	cfg := defaults()
	cfg.Dialect = "postgres"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeMaxBranches(t *testing.T) {
	cfg := defaults()
	cfg.MaxBranches = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, defaults().Validate())
}
