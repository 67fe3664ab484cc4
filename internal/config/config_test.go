package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "Astral" {
		t.Errorf("expected Name=Astral, got %s", cfg.Name)
	}
	if cfg.Backends.Default != "tabby" {
		t.Errorf("expected default backend=tabby, got %s", cfg.Backends.Default)
	}
	if cfg.Memory.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Memory.TopK)
	}
	if cfg.Memory.SemanticWeight != 0.7 || cfg.Memory.LexicalWeight != 0.3 {
		t.Errorf("unexpected fusion weights: %v/%v", cfg.Memory.SemanticWeight, cfg.Memory.LexicalWeight)
	}

	tabby, ok := cfg.Backends.Profiles["tabby"]
	if !ok {
		t.Fatal("tabby profile missing from defaults")
	}
	if tabby.Temperature != 0.6 || tabby.TopK != 20 || !tabby.DisableThinking {
		t.Errorf("unexpected tabby profile: %+v", tabby)
	}
	if len(tabby.StopSequences) != 3 || tabby.StopSequences[0] != "\n[" {
		t.Errorf("tabby stop sequences = %v, want transcript markers", tabby.StopSequences)
	}
	if cfg.Bot.TranscriptBudget != 6000 {
		t.Errorf("transcript budget = %d", cfg.Bot.TranscriptBudget)
	}

	kobold, ok := cfg.Backends.Profiles["kobold"]
	if !ok {
		t.Fatal("kobold profile missing from defaults")
	}
	if kobold.Temperature != 0.8 || kobold.RepetitionPen != 1.05 {
		t.Errorf("unexpected kobold profile: %+v", kobold)
	}

	if cfg.Search.Provider != "searxng" {
		t.Errorf("expected search provider=searxng, got %s", cfg.Search.Provider)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ASTRAL_DB", "")
	t.Setenv("DISCORD_TOKEN", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Bot.Name = "Nova"
	cfg.Memory.DatabasePath = "/tmp/nova.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Bot.Name != "Nova" {
		t.Errorf("expected Bot.Name=Nova, got %s", loaded.Bot.Name)
	}
	if loaded.Memory.DatabasePath != "/tmp/nova.db" {
		t.Errorf("expected DatabasePath=/tmp/nova.db, got %s", loaded.Memory.DatabasePath)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if cfg.Backends.Default != "tabby" {
		t.Errorf("expected defaults, got default backend %s", cfg.Backends.Default)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with API key should validate: %v", err)
	}

	t.Run("missing default backend", func(t *testing.T) {
		c := DefaultConfig()
		c.Embedding.APIKey = "k"
		c.Backends.Default = "nonexistent"
		if err := c.Validate(); err == nil {
			t.Error("expected validation error for unknown default backend")
		}
	})

	t.Run("bad embedding provider", func(t *testing.T) {
		c := DefaultConfig()
		c.Embedding.Provider = "word2vec"
		if err := c.Validate(); err == nil {
			t.Error("expected validation error for unknown embedding provider")
		}
	})

	t.Run("gemini without key", func(t *testing.T) {
		c := DefaultConfig()
		c.Embedding.APIKey = ""
		if err := c.Validate(); err == nil {
			t.Error("expected validation error for gemini provider without key")
		}
	})

	t.Run("candidates smaller than top_k", func(t *testing.T) {
		c := DefaultConfig()
		c.Embedding.APIKey = "k"
		c.Memory.Candidates = 3
		c.Memory.TopK = 5
		if err := c.Validate(); err == nil {
			t.Error("expected validation error for candidates < top_k")
		}
	})

	t.Run("discord without token", func(t *testing.T) {
		c := DefaultConfig()
		c.Embedding.APIKey = "k"
		c.Platform.Kind = "discord"
		c.Platform.Token = ""
		if err := c.Validate(); err == nil {
			t.Error("expected validation error for discord platform without token")
		}
	})
}

func TestConfig_DurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetBackendTimeout(); got != 120*time.Second {
		t.Errorf("GetBackendTimeout = %v, want 120s", got)
	}

	cfg.Backends.Timeout = "garbage"
	if got := cfg.GetBackendTimeout(); got != 120*time.Second {
		t.Errorf("GetBackendTimeout fallback = %v, want 120s", got)
	}

	cfg.Memory.MaxFactAge = "48h"
	if got := cfg.GetMaxFactAge(); got != 48*time.Hour {
		t.Errorf("GetMaxFactAge = %v, want 48h", got)
	}
}

func TestConfig_ProfileFallback(t *testing.T) {
	cfg := DefaultConfig()

	p, name := cfg.Profile("kobold")
	if name != "kobold" || p.Temperature != 0.8 {
		t.Errorf("Profile(kobold) = %s %+v", name, p)
	}

	p, name = cfg.Profile("unknown")
	if name != "tabby" {
		t.Errorf("Profile(unknown) should fall back to default, got %s", name)
	}
	if p.Temperature != 0.6 {
		t.Errorf("fallback profile = %+v", p)
	}
}
