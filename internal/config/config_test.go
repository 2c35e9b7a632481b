package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 15, cfg.Retrieval.VectorK)
	assert.Equal(t, 10, cfg.Retrieval.GraphK)
	assert.Equal(t, 5, cfg.Retrieval.RerankK)
	assert.Equal(t, 180, cfg.Retrieval.HalfLifeHighDays)
	assert.Equal(t, 60, cfg.Retrieval.HalfLifeMediumDays)
	assert.Equal(t, 14, cfg.Retrieval.HalfLifeLowDays)
	assert.Equal(t, 2, cfg.Observer.Gate)
	assert.Equal(t, 3, cfg.Observer.RetryAttempts)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  engine: postgres
  postgres_dsn: postgres://localhost/mnemo
retrieval:
  vector_k: 30
observer:
  gate: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/mnemo", cfg.Storage.PostgresDSN)
	assert.Equal(t, 30, cfg.Retrieval.VectorK)
	assert.Equal(t, 4, cfg.Observer.Gate)
	// Untouched values keep defaults.
	assert.Equal(t, 10, cfg.Retrieval.GraphK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observer:\n  gate: 4\n"), 0o644))

	t.Setenv("MNEMO_OBSERVER_GATE", "8")
	t.Setenv("MNEMO_LLM_PROVIDER", "openai")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Observer.Gate)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnparseableEnvIntFallsBack(t *testing.T) {
	t.Setenv("MNEMO_VECTOR_K", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Retrieval.VectorK)
}
