package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALL_RUNTIME_PATH", dir)

	app := NewAppConfig(context.Background())
	cfg := NewMemoryConfig(context.Background(), app)

	expected := DefaultMemoryConfig()
	expected.PersonaPath = filepath.Join(dir, "PERSONA.md")
	assert.Equal(t, expected, cfg)
}

func TestNewMemoryConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	persona := filepath.Join(dir, "persona.md")
	require.NoError(t, os.WriteFile(persona, []byte("  You are Niya, warm and curious.\n"), 0o644))

	t.Setenv("RECALL_RUNTIME_PATH", dir)
	t.Setenv("RECALL_HARD_LIMIT", "6")
	t.Setenv("RECALL_HEALTH_THRESHOLD", "0.7")
	t.Setenv("RECALL_BLOCK_EMOTIONAL", "80")
	t.Setenv("RECALL_ENGINE_TIMEOUT", "5s")
	t.Setenv("RECALL_PERSONA_PATH", persona)

	cfg := NewMemoryConfig(context.Background(), NewAppConfig(context.Background()))

	assert.Equal(t, 6, cfg.HardLimit)
	assert.Equal(t, 0.7, cfg.HealthThreshold)
	assert.Equal(t, 80, cfg.Blocks.EmotionalContext)
	assert.Equal(t, 5*time.Second, cfg.EngineTimeout)
	assert.Equal(t, "You are Niya, warm and curious.", cfg.Persona)
}

func TestMemoryConfigValidate(t *testing.T) {
	cfg := DefaultMemoryConfig()
	require.NoError(t, cfg.Validate())

	cfg.HardLimit = 0
	cfg.HealthThreshold = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hard limit")
	assert.Contains(t, err.Error(), "health threshold")
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := DefaultMemoryConfig()
	p := cfg.Policy()
	assert.Equal(t, 0.1, p.ReinforceBonus)
	assert.Equal(t, 0.2, p.ReplaceMargin)

	rules := cfg.Maintenance()
	assert.Equal(t, 0.3, rules.PruneBelow)
	assert.Equal(t, 2, rules.BoostAfter)
}

func TestResolveRuntimePath(t *testing.T) {
	assert.Equal(t, "/var/lib/recall", resolveRuntimePath("/var/lib/recall"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".recall"), resolveRuntimePath(""))
}
