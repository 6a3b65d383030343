package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 300*time.Second, cfg.Flow.InitialPromptDelay)
	assert.Equal(t, 600*time.Second, cfg.Flow.InactivityTimeout)
	assert.Equal(t, 600*time.Second, cfg.Flow.AutoEndTimeout)
	assert.Equal(t, 10800*time.Second, cfg.Flow.SilentPeriod)
	assert.Equal(t, 0.352, cfg.Retrieval.SimilarityThreshold)
	assert.False(t, cfg.Retrieval.Enabled)
	assert.Empty(t, cfg.Flow.AllowedUsers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("MODEL_PROVIDER", "anthropic")
	t.Setenv("INITIAL_PROMPT_DELAY_SECONDS", "5")
	t.Setenv("SILENT_PERIOD_SECONDS", "60")
	t.Setenv("ALLOWED_USER_IDS", "alice, bob,")
	t.Setenv("RETRIEVAL_ENABLED", "true")
	t.Setenv("SIMILARITY_THRESHOLD", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 5*time.Second, cfg.Flow.InitialPromptDelay)
	assert.Equal(t, 60*time.Second, cfg.Flow.SilentPeriod)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Flow.AllowedUsers)
	assert.True(t, cfg.Retrieval.Enabled)
	assert.Equal(t, 0.5, cfg.Retrieval.SimilarityThreshold)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not a port")
	_, err := Load()
	assert.Error(t, err)
}
