package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Gemini(t *testing.T) {
	t.Run("GEMINI_API_KEY sets router and embedding keys", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Router.APIKey)
		assert.Equal(t, "gem-key", cfg.Embedding.APIKey)
	})

	t.Run("GEMINI_API_KEY leaves ollama embedding key alone", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.Embedding.Provider = "ollama"
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Router.APIKey)
		assert.Empty(t, cfg.Embedding.APIKey)
	})
}

func TestEnvOverrides_Platform(t *testing.T) {
	t.Run("DISCORD_TOKEN sets token and kind when unset", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "tok-123")

		cfg := DefaultConfig()
		cfg.Platform.Kind = ""
		cfg.applyEnvOverrides()

		assert.Equal(t, "tok-123", cfg.Platform.Token)
		assert.Equal(t, "discord", cfg.Platform.Kind)
	})

	t.Run("DISCORD_TOKEN does not override explicit kind", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "tok-123")

		cfg := DefaultConfig()
		cfg.Platform.Kind = "stdio"
		cfg.applyEnvOverrides()

		assert.Equal(t, "tok-123", cfg.Platform.Token)
		assert.Equal(t, "stdio", cfg.Platform.Kind)
	})
}

func TestEnvOverrides_Backends(t *testing.T) {
	t.Setenv("TABBY_URL", "http://gpu-box:5000")
	t.Setenv("TABBY_API_KEY", "tb-key")
	t.Setenv("KOBOLD_URL", "http://gpu-box:5001")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	tabby, ok := cfg.Backends.Profiles["tabby"]
	require.True(t, ok)
	assert.Equal(t, "http://gpu-box:5000", tabby.BaseURL)
	assert.Equal(t, "tb-key", tabby.APIKey)

	// Sampling params must survive the override.
	assert.Equal(t, 0.6, tabby.Temperature)

	kobold, ok := cfg.Backends.Profiles["kobold"]
	require.True(t, ok)
	assert.Equal(t, "http://gpu-box:5001", kobold.BaseURL)
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Setenv("ASTRAL_DB", "/var/lib/astral/mem.db")
	t.Setenv("SEARXNG_URL", "http://searx:8080")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/var/lib/astral/mem.db", cfg.Memory.DatabasePath)
	assert.Equal(t, "http://searx:8080", cfg.Search.BaseURL)
}
