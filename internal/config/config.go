// Package config handles Valet configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./valet.yaml, ~/.config/valet/config.yaml, /etc/valet/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"valet.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "valet", "config.yaml"))
	}

	paths = append(paths, "/etc/valet/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Valet configuration.
type Config struct {
	Listen    ListenConfig            `yaml:"listen"`
	Anthropic AnthropicConfig         `yaml:"anthropic"`
	Model     string                  `yaml:"model"`
	Agent     AgentConfig             `yaml:"agent"`
	Calendar  CalendarConfig          `yaml:"calendar"`
	Pricing   map[string]PricingEntry `yaml:"pricing"`
	DataDir   string                  `yaml:"data_dir"`
	LogLevel  string                  `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig defines the agent loop safety limits. Zero values take
// the documented defaults; MaxConversationTokens zero disables context
// management entirely.
type AgentConfig struct {
	// MaxIterations bounds provider round trips per turn (default 10).
	MaxIterations int `yaml:"max_iterations"`
	// HardTokenLimit is the pre-flight request token ceiling (default 200000).
	HardTokenLimit int `yaml:"hard_token_limit"`
	// MaxOutputTokens caps a single provider response (default 4096).
	MaxOutputTokens int `yaml:"max_output_tokens"`
	// MaxConversationTokens triggers summarization when the tracked
	// conversation token count reaches it. Zero disables summarization.
	MaxConversationTokens int `yaml:"max_conversation_tokens"`
	// KeepRecent is the number of messages preserved verbatim through
	// summarization (default 10).
	KeepRecent int `yaml:"keep_recent"`
}

// CalendarConfig defines the CalDAV calendar the agent can read.
type CalendarConfig struct {
	URL      string `yaml:"url"`  // CalDAV collection URL
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PricingEntry is the USD price per million tokens for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no
// credentials. Useful for tests and for `valet init`.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8265
	}
	if c.Model == "" {
		c.Model = "claude-sonnet-4-20250514"
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.HardTokenLimit == 0 {
		c.Agent.HardTokenLimit = 200_000
	}
	if c.Agent.MaxOutputTokens == 0 {
		c.Agent.MaxOutputTokens = 4096
	}
	if c.Agent.KeepRecent == 0 {
		c.Agent.KeepRecent = 10
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.Pricing == nil {
		c.Pricing = DefaultPricing()
	}
}

// DefaultPricing returns the built-in per-model pricing table (USD per
// million tokens). Models absent from the table cost zero; the loop is
// never blocked by a pricing gap.
func DefaultPricing() map[string]PricingEntry {
	return map[string]PricingEntry{
		"claude-opus-4-20250514":   {InputPerMillion: 15.0, OutputPerMillion: 75.0},
		"claude-sonnet-4-20250514": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
		"claude-3-5-haiku-latest":  {InputPerMillion: 0.8, OutputPerMillion: 4.0},
	}
}
