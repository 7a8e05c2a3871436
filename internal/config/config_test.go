package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultTokenBudget, cfg.TokenBudget)
	assert.Equal(t, DefaultStreamTimeoutSec, cfg.StreamTimeoutSec)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.NotEmpty(t, cfg.WorkspaceDir)
}

func TestLoadProjectFile(t *testing.T) {
	dir := t.TempDir()
	content := `{
		// project overrides
		"port": 9000,
		"tokenBudget": 50000,
		"provider": {
			"anthropic": {"apiKey": "file-key"}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quill.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 50000, cfg.TokenBudget)
	assert.Equal(t, "file-key", cfg.Provider["anthropic"].APIKey)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quill.json"), []byte(`{"port": 9000}`), 0644))
	t.Setenv("QUILL_PORT", "7000")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
}

func TestEnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_QUILL_KEY", "secret-123")
	content := `{"provider": {"openai": {"apiKey": "{env:TEST_QUILL_KEY}"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quill.json"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "secret-123", cfg.Provider["openai"].APIKey)
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Provider["anthropic"].APIKey)
}
