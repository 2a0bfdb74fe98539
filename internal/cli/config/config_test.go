package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldWd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "schema.yaml", cfg.Schema.Path)
	assert.Equal(t, "descriptors.yaml", cfg.Descriptors.Path)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Loader.MaxDepth)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
	assert.Equal(t, ".", cfg.Dir)
}

func TestLoad_ConfigFileInParent(t *testing.T) {
	root := t.TempDir()
	content := `
schema:
  path: app/schema.yaml
cache:
  size: 8
database:
  driver: pgx
  url: postgres://localhost/autorelated
loader:
  max_depth: 4
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "autorelated.yml"), []byte(content), 0644))
	nested := filepath.Join(root, "app", "serializers")
	require.NoError(t, os.MkdirAll(nested, 0755))
	chdir(t, nested)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Cache.Size)
	assert.Equal(t, "pgx", cfg.SQLDriver())
	assert.Equal(t, "postgres://localhost/autorelated", cfg.DatabaseURL())
	assert.Equal(t, 4, cfg.Loader.MaxDepth)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())

	// relative paths are resolved against the config file
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(filepath.Dir(cfg.Resolve(cfg.Schema.Path)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "app"), got)
	assert.Equal(t, "/abs/schema.yaml", cfg.Resolve("/abs/schema.yaml"))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTORELATED_CACHE_SIZE", "0")
	t.Setenv("AUTORELATED_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Cache.Size)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level())
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("descriptors:\n  path: d.yaml\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "d.yaml"), cfg.Resolve(cfg.Descriptors.Path))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"driver", "database:\n  driver: mysql\n"},
		{"cache size", "cache:\n  size: -1\n"},
		{"max depth", "loader:\n  max_depth: 0\n"},
		{"log level", "log:\n  level: chatty\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "autorelated.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	cfg := &Config{}
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL())
	assert.Equal(t, "postgres", cfg.SQLDriver())
}

func TestFindConfigFile_NotFound(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := FindConfigFile()
	assert.Error(t, err)
}
