// Package config loads and validates Astral configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Astral configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Bot identity and addressing
	Bot BotConfig `yaml:"bot"`

	// Generation backends
	Backends BackendsConfig `yaml:"backends"`

	// Tool router
	Router RouterConfig `yaml:"router"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Long-term memory and retrieval
	Memory MemoryConfig `yaml:"memory"`

	// Cross-encoder reranker
	Rerank RerankConfig `yaml:"rerank"`

	// Web search
	Search SearchConfig `yaml:"search"`

	// Persona file
	Persona PersonaConfig `yaml:"persona"`

	// Platform connection (Discord gateway or stdio)
	Platform PlatformConfig `yaml:"platform"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BotConfig configures the bot's identity.
type BotConfig struct {
	// Display name the bot answers to; also stripped from generated output.
	Name string `yaml:"name"`

	// Additional names that count as addressing the bot.
	Aliases []string `yaml:"aliases"`

	// How many recent turns of channel history go into the prompt.
	HistoryWindow int `yaml:"history_window"`

	// Insert an identity reminder after this many transcript messages.
	IdentityReminderEvery int `yaml:"identity_reminder_every"`

	// Character cap on the assembled transcript. Oldest lines are dropped
	// first; zero disables the cap.
	TranscriptBudget int `yaml:"transcript_budget"`
}

// BackendsConfig configures the completion backends.
type BackendsConfig struct {
	// Which backend serves a turn when the router doesn't care.
	Default string `yaml:"default"`

	// Named backends keyed by profile name ("tabby", "kobold", ...).
	Profiles map[string]BackendProfile `yaml:"profiles"`

	// HTTP timeout for completion calls.
	Timeout string `yaml:"timeout"`
}

// BackendProfile describes one OpenAI-compatible completion backend and its
// sampling parameters.
type BackendProfile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	TopK             int     `yaml:"top_k"`
	MinP             float64 `yaml:"min_p"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	RepetitionPen    float64 `yaml:"repetition_penalty"`
	MaxTokens        int     `yaml:"max_tokens"`

	// Completion stop strings. The defaults cut the model off as soon as
	// it starts writing transcript-format speaker tags.
	StopSequences []string `yaml:"stop_sequences"`

	// Ask reasoning models to skip their thinking phase.
	DisableThinking bool `yaml:"disable_thinking"`
}

// RouterConfig configures the tool-routing model.
type RouterConfig struct {
	// Gemini model used for routing decisions.
	Model string `yaml:"model"`

	// GEMINI_API_KEY overrides this.
	APIKey string `yaml:"api_key"`

	// Routing call timeout.
	Timeout string `yaml:"timeout"`

	// Skip the model call when heuristics are unambiguous.
	HeuristicsOnly bool `yaml:"heuristics_only"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // gemini, ollama
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // for ollama
	Dims     int    `yaml:"dims"`
}

// MemoryConfig configures the SQLite store and hybrid retrieval.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Candidate pool size before fusion and reranking.
	Candidates int `yaml:"candidates"`

	// Final number of facts injected into the prompt.
	TopK int `yaml:"top_k"`

	// Facts below this relevance are discarded.
	MinScore float64 `yaml:"min_score"`

	// Hybrid fusion weights. Semantic dominates.
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`

	// User/bot exchanges shorter than these are not worth remembering.
	MinUserChars     int `yaml:"min_user_chars"`
	MinCombinedChars int `yaml:"min_combined_chars"`

	// Facts older than this are eligible for maintenance purge.
	MaxFactAge string `yaml:"max_fact_age"`
}

// RerankConfig configures the optional cross-encoder rerank stage.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"` // TEI-style /rerank endpoint
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// SearchConfig configures the web search provider.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`

	// searxng (self-hosted, time-range aware) or duckduckgo (no instance
	// needed, ignores time ranges).
	Provider string `yaml:"provider"`

	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
	Timeout    string `yaml:"timeout"`
}

// PersonaConfig configures the persona card.
type PersonaConfig struct {
	Path      string `yaml:"path"`
	HotReload bool   `yaml:"hot_reload"`
}

// PlatformConfig configures the chat platform connection.
type PlatformConfig struct {
	// discord or stdio
	Kind  string `yaml:"kind"`
	Token string `yaml:"token"`

	// Channels the bot responds in; empty means all.
	Channels []string `yaml:"channels"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Dir        string          `yaml:"dir"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Astral",
		Version: "1.0.0",

		Bot: BotConfig{
			Name:                  "Astra",
			HistoryWindow:         12,
			IdentityReminderEvery: 8,
			TranscriptBudget:      6000,
		},

		Backends: BackendsConfig{
			Default: "tabby",
			Timeout: "120s",
			Profiles: map[string]BackendProfile{
				"tabby": {
					BaseURL:          "http://localhost:5000",
					Temperature:      0.6,
					TopP:             0.95,
					TopK:             20,
					MinP:             0,
					PresencePenalty:  0.3,
					FrequencyPenalty: 0.1,
					MaxTokens:        512,
					StopSequences:    []string{"\n[", "[Astra]", "[User]"},
					DisableThinking:  true,
				},
				"kobold": {
					BaseURL:       "http://localhost:5001",
					Temperature:   0.8,
					TopP:          0.95,
					TopK:          40,
					MinP:          0.05,
					RepetitionPen: 1.05,
					MaxTokens:     512,
					StopSequences: []string{"\n[", "[Astra]", "[User]"},
				},
			},
		},

		Router: RouterConfig{
			Model:   "gemini-2.0-flash",
			Timeout: "15s",
		},

		Embedding: EmbeddingConfig{
			Provider: "gemini",
			Model:    "text-embedding-004",
			Dims:     768,
			BaseURL:  "http://localhost:11434",
		},

		Memory: MemoryConfig{
			DatabasePath:     "data/astral.db",
			Candidates:       20,
			TopK:             5,
			MinScore:         0.78,
			SemanticWeight:   0.7,
			LexicalWeight:    0.3,
			MinUserChars:     15,
			MinCombinedChars: 50,
			MaxFactAge:       "2160h", // 90 days
		},

		Rerank: RerankConfig{
			Enabled: false,
			BaseURL: "http://localhost:8787",
			Timeout: "10s",
		},

		Search: SearchConfig{
			Enabled:    true,
			Provider:   "searxng",
			BaseURL:    "http://localhost:8888",
			MaxResults: 5,
			Timeout:    "20s",
		},

		Persona: PersonaConfig{
			Path:      "persona.md",
			HotReload: true,
		},

		Platform: PlatformConfig{
			Kind: "stdio",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Dir:       "data/logs",
		},
	}
}

// Load loads configuration from a YAML file. Missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Router.APIKey = key
		if c.Embedding.Provider == "gemini" {
			c.Embedding.APIKey = key
		}
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.Platform.Token = token
		if c.Platform.Kind == "" {
			c.Platform.Kind = "discord"
		}
	}
	if path := os.Getenv("ASTRAL_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
	if url := os.Getenv("SEARXNG_URL"); url != "" {
		c.Search.BaseURL = url
	}
	if url := os.Getenv("TABBY_URL"); url != "" {
		if p, ok := c.Backends.Profiles["tabby"]; ok {
			p.BaseURL = url
			c.Backends.Profiles["tabby"] = p
		}
	}
	if url := os.Getenv("KOBOLD_URL"); url != "" {
		if p, ok := c.Backends.Profiles["kobold"]; ok {
			p.BaseURL = url
			c.Backends.Profiles["kobold"] = p
		}
	}
	if key := os.Getenv("TABBY_API_KEY"); key != "" {
		if p, ok := c.Backends.Profiles["tabby"]; ok {
			p.APIKey = key
			c.Backends.Profiles["tabby"] = p
		}
	}
}

// GetBackendTimeout returns the completion timeout as a duration.
func (c *Config) GetBackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backends.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRouterTimeout returns the routing call timeout as a duration.
func (c *Config) GetRouterTimeout() time.Duration {
	d, err := time.ParseDuration(c.Router.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetSearchTimeout returns the web search timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetRerankTimeout returns the reranker timeout as a duration.
func (c *Config) GetRerankTimeout() time.Duration {
	d, err := time.ParseDuration(c.Rerank.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetMaxFactAge returns the fact retention window as a duration.
func (c *Config) GetMaxFactAge() time.Duration {
	d, err := time.ParseDuration(c.Memory.MaxFactAge)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return d
}

// ValidEmbeddingProviders lists all supported embedding providers.
var ValidEmbeddingProviders = []string{"gemini", "ollama"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Backends.Profiles) == 0 {
		return fmt.Errorf("no generation backends configured")
	}
	if _, ok := c.Backends.Profiles[c.Backends.Default]; !ok {
		return fmt.Errorf("default backend %q not found in profiles", c.Backends.Default)
	}

	validProvider := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if c.Embedding.Provider == "gemini" && c.Embedding.APIKey == "" {
		return fmt.Errorf("gemini embedding provider requires an API key (set GEMINI_API_KEY)")
	}

	if c.Memory.SemanticWeight+c.Memory.LexicalWeight == 0 {
		return fmt.Errorf("retrieval fusion weights cannot both be zero")
	}
	if c.Memory.TopK <= 0 || c.Memory.Candidates < c.Memory.TopK {
		return fmt.Errorf("invalid retrieval sizes: candidates=%d top_k=%d", c.Memory.Candidates, c.Memory.TopK)
	}

	if c.Platform.Kind == "discord" && c.Platform.Token == "" {
		return fmt.Errorf("discord platform requires a token (set DISCORD_TOKEN)")
	}

	return nil
}

// Profile returns the named backend profile, falling back to the default.
func (c *Config) Profile(name string) (BackendProfile, string) {
	if p, ok := c.Backends.Profiles[name]; ok {
		return p, name
	}
	return c.Backends.Profiles[c.Backends.Default], c.Backends.Default
}
