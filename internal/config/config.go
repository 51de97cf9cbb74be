// Package config loads chat-memory settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/chat-memory/internal/site"
)

// Config holds all chat-memory configuration.
type Config struct {
	Memory  MemoryConfig  `yaml:"memory"`
	Cycle   CycleConfig   `yaml:"cycle"`
	Browser BrowserConfig `yaml:"browser"`
	Journal JournalConfig `yaml:"journal"`
	Logging LoggingConfig `yaml:"logging"`

	// Sites overrides or extends the built-in adapters.
	Sites []site.Adapter `yaml:"sites"`
}

// MemoryConfig configures the memory service client.
type MemoryConfig struct {
	APIURL      string   `yaml:"api_url"`
	APIKey      string   `yaml:"api_key"`
	UserID      string   `yaml:"user_id"`
	Enabled     *bool    `yaml:"enabled"`
	Limit       int      `yaml:"limit"`
	Threshold   *float64 `yaml:"threshold"`
	Infer       *bool    `yaml:"infer"`
	Timeout     string   `yaml:"timeout"`
	AddTimeout  string   `yaml:"add_timeout"`
	Concurrency int      `yaml:"add_concurrency"`
}

// CycleConfig configures submission cycles.
type CycleConfig struct {
	ReleaseDelay string `yaml:"release_delay"`
	HistoryTurns int    `yaml:"history_turns"`
	MaxTurnSize  int    `yaml:"max_turn_size"`
}

// BrowserConfig configures the controlled browser.
type BrowserConfig struct {
	DebuggerURL string   `yaml:"debugger_url"`
	Launch      []string `yaml:"launch"`
	Headless    bool     `yaml:"headless"`
	UserDataDir string   `yaml:"user_data_dir"`
	NavTimeout  string   `yaml:"navigation_timeout"`
}

// JournalConfig configures the local cycle journal.
type JournalConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  *bool  `yaml:"json"`
}

// DefaultConfig returns defaults suitable for a local memory service.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			APIURL:      "http://localhost:8000",
			UserID:      "chat-memory-user",
			Limit:       5,
			Timeout:     "10s",
			AddTimeout:  "30s",
			Concurrency: 2,
		},
		Cycle: CycleConfig{
			ReleaseDelay: "100ms",
			HistoryTurns: 6,
			MaxTurnSize:  2000,
		},
		Browser: BrowserConfig{
			NavTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns the chat-memory home directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chat-memory")
}

// DefaultPath returns the config path: $CHAT_MEMORY_CONFIG or ~/.chat-memory/config.yaml.
func DefaultPath() string {
	if env := os.Getenv("CHAT_MEMORY_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads path (missing file is fine), loads .env from the working
// directory, then applies environment overrides.
func Load(path string) (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CHAT_MEMORY_API_URL"); v != "" {
		c.Memory.APIURL = v
	}
	if v := os.Getenv("CHAT_MEMORY_API_KEY"); v != "" {
		c.Memory.APIKey = v
	}
	if v := os.Getenv("CHAT_MEMORY_USER_ID"); v != "" {
		c.Memory.UserID = v
	}
	if v := os.Getenv("CHAT_MEMORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Memory.Enabled = &b
		}
	}
	if v := os.Getenv("CHAT_MEMORY_DB"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("CHAT_MEMORY_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
}

// Validate checks durations and required fields.
func (c *Config) Validate() error {
	if c.Memory.APIURL == "" {
		return fmt.Errorf("memory.api_url is required")
	}
	if c.Memory.UserID == "" {
		return fmt.Errorf("memory.user_id is required")
	}
	for name, v := range map[string]string{
		"memory.timeout":             c.Memory.Timeout,
		"memory.add_timeout":         c.Memory.AddTimeout,
		"cycle.release_delay":        c.Cycle.ReleaseDelay,
		"browser.navigation_timeout": c.Browser.NavTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if d := c.ReleaseDelay(); d > 2*time.Second {
		return fmt.Errorf("cycle.release_delay %s exceeds 2s", d)
	}
	return nil
}

// MemoryEnabled reports whether memory lookups are on.
func (c *Config) MemoryEnabled() bool {
	return c.Memory.Enabled == nil || *c.Memory.Enabled
}

// SearchTimeout returns the search call timeout.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Memory.Timeout, 10*time.Second)
}

// AddTimeout returns the add call timeout.
func (c *Config) AddTimeout() time.Duration {
	return parseDuration(c.Memory.AddTimeout, 30*time.Second)
}

// ReleaseDelay returns the pause before the send control is clicked.
func (c *Config) ReleaseDelay() time.Duration {
	return parseDuration(c.Cycle.ReleaseDelay, 100*time.Millisecond)
}

// NavigationTimeout returns the page navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavTimeout, 30*time.Second)
}

// JournalPath returns the journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(Dir(), "journal.db")
}

// Registry returns the built-in adapters with configured overrides applied.
func (c *Config) Registry() (*site.Registry, error) {
	r := site.NewRegistry()
	for _, a := range c.Sites {
		if err := r.Register(a); err != nil {
			return nil, fmt.Errorf("sites: %w", err)
		}
	}
	return r, nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
