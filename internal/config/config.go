// Package config handles Shopkeep configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/shopkeep/config.yaml, /etc/shopkeep/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "shopkeep", "config.yaml"))
	}

	paths = append(paths, "/etc/shopkeep/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
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

// Config holds all Shopkeep configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Models      ModelsConfig      `yaml:"models"`
	Anthropic   AnthropicConfig   `yaml:"anthropic"`
	Database    DatabaseConfig    `yaml:"database"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	ImageSearch ImageSearchConfig `yaml:"image_search"`
	Agent       AgentConfig       `yaml:"agent"`
	Usage       UsageConfig       `yaml:"usage"`
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig names a model and the provider that serves it.
type ModelConfig struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"` // ollama, anthropic
	ContextWindow int    `yaml:"context_window"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	// Driver is one of sqlite3 (cgo), sqlite (pure Go) or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CheckpointConfig selects where conversation state is persisted.
type CheckpointConfig struct {
	// Backend is sqlite (default) or redis.
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`      // sqlite file, default shopkeep-state.db
	RedisURL string `yaml:"redis_url"` // redis://host:6379/0
	// Keep is how many checkpoints are retained per thread. Zero keeps all.
	Keep int `yaml:"keep"`
}

// ImageSearchConfig points at the remote image-similarity service.
type ImageSearchConfig struct {
	URL        string  `yaml:"url"`
	TimeoutSec int     `yaml:"timeout_sec"`
	Rate       float64 `yaml:"rate"` // requests per second, 0 = unlimited
	Burst      int     `yaml:"burst"`
	// UploadDir holds pictures customers upload to their threads.
	UploadDir string `yaml:"upload_dir"`
}

// Timeout returns the configured request timeout.
func (c ImageSearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// AgentConfig tunes the conversation engine.
type AgentConfig struct {
	// TopK is how many search matches are returned to the model.
	TopK int `yaml:"top_k"`
	// MaxSteps bounds assistant steps per user message.
	MaxSteps int `yaml:"max_steps"`
	// AnonymousCustomerID marks a session with no logged-in customer.
	AnonymousCustomerID string `yaml:"anonymous_customer_id"`
	// HistoryWindow is how many recent exchanges the system prompt carries.
	HistoryWindow int `yaml:"history_window"`
}

// UsageConfig locates the token usage ledger.
type UsageConfig struct {
	Path string `yaml:"path"` // sqlite file, default shopkeep-usage.db
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references against the environment, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration suitable for local development:
// a pure-Go SQLite store, a local Ollama model and no image search.
func Default() *Config {
	cfg := &Config{
		Models: ModelsConfig{
			Default: "qwen2.5:7b",
			Available: []ModelConfig{
				{Name: "qwen2.5:7b", Provider: "ollama", ContextWindow: 32768},
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver != "postgres" {
		c.Database.DSN = "shopkeep.db"
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "sqlite"
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = "shopkeep-state.db"
	}
	if c.Usage.Path == "" {
		c.Usage.Path = "shopkeep-usage.db"
	}
	if c.ImageSearch.TimeoutSec == 0 {
		c.ImageSearch.TimeoutSec = 10
	}
	if c.ImageSearch.UploadDir == "" {
		c.ImageSearch.UploadDir = "shopkeep-uploads"
	}
	if c.Agent.TopK == 0 {
		c.Agent.TopK = 2
	}
	if c.Agent.MaxSteps == 0 {
		c.Agent.MaxSteps = 8
	}
	if c.Agent.AnonymousCustomerID == "" {
		c.Agent.AnonymousCustomerID = "123456789"
	}
	if c.Agent.HistoryWindow == 0 {
		c.Agent.HistoryWindow = 5
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports configuration errors. These are fatal at startup.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q (valid: sqlite, sqlite3, postgres)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}

	switch c.Checkpoint.Backend {
	case "sqlite":
	case "redis":
		if c.Checkpoint.RedisURL == "" {
			problems = append(problems, "checkpoint.redis_url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("checkpoint.backend %q (valid: sqlite, redis)", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Keep < 0 {
		problems = append(problems, "checkpoint.keep must not be negative")
	}

	if c.Models.Default == "" {
		problems = append(problems, "models.default is required")
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama":
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				problems = append(problems, fmt.Sprintf("model %s needs anthropic.api_key", m.Name))
			}
		default:
			problems = append(problems, fmt.Sprintf("model %s: unknown provider %q", m.Name, m.Provider))
		}
	}

	if c.Agent.TopK < 1 {
		problems = append(problems, "agent.top_k must be at least 1")
	}
	if c.Agent.MaxSteps < 1 {
		problems = append(problems, "agent.max_steps must be at least 1")
	}
	if c.ImageSearch.Rate < 0 {
		problems = append(problems, "image_search.rate must not be negative")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q (valid: text, json)", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
