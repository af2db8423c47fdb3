package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Security levels accepted by the backend for documents and search scope.
const (
	SecurityPublic     = "public"
	SecuritySemiClosed = "semi_closed"
	SecurityClosed     = "closed"
)

// DefaultMaxImageBytes is the image analysis size ceiling (10 MiB).
const DefaultMaxImageBytes = 10 << 20

// Config holds all ispl client configuration.
type Config struct {
	// Backend API
	API APIConfig `yaml:"api"`

	// Conversational search defaults
	Search SearchConfig `yaml:"search"`

	// Image analysis limits
	Image ImageConfig `yaml:"image"`

	// Session token persistence
	Session SessionConfig `yaml:"session"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Terminal UI
	UI UIConfig `yaml:"ui"`
}

// APIConfig configures the backend endpoint and per-call timeouts.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Timeout        string `yaml:"timeout"`         // interactive calls
	UploadTimeout  string `yaml:"upload_timeout"`  // multipart document upload
	AnalyzeTimeout string `yaml:"analyze_timeout"` // image analysis
}

// SearchConfig configures the conversation orchestrator.
type SearchConfig struct {
	Limit         int    `yaml:"limit"`
	SecurityLevel string `yaml:"security_level"`
}

// ImageConfig configures image analysis preconditions.
type ImageConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// SessionConfig configures the token store.
type SessionConfig struct {
	TokenFile string `yaml:"token_file"`
	Watch     bool   `yaml:"watch"` // follow logout/login done by other ispl processes
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	File       string          `yaml:"file"`
	MaxSizeMB  int             `yaml:"max_size_mb"`
	MaxBackups int             `yaml:"max_backups"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// UIConfig configures the interactive client.
type UIConfig struct {
	Theme string `yaml:"theme"` // dark, light
}

// Dir returns the per-user ispl directory (~/.ispl).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".ispl"
	}
	return filepath.Join(home, ".ispl")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        "10s",
			UploadTimeout:  "5m",
			AnalyzeTimeout: "2m",
		},
		Search: SearchConfig{
			Limit:         10,
			SecurityLevel: SecurityPublic,
		},
		Image: ImageConfig{
			MaxBytes: DefaultMaxImageBytes,
		},
		Session: SessionConfig{
			TokenFile: filepath.Join(dir, "session.json"),
			Watch:     true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(dir, "logs", "ispl.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
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
	if u := os.Getenv("ISPL_API_URL"); u != "" {
		c.API.BaseURL = u
	}
	if path := os.Getenv("ISPL_TOKEN_FILE"); path != "" {
		c.Session.TokenFile = path
	}
	if level := os.Getenv("ISPL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if os.Getenv("ISPL_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", c.API.BaseURL)
	}
	if !ValidSecurityLevel(c.Search.SecurityLevel) {
		return fmt.Errorf("invalid search.security_level %q", c.Search.SecurityLevel)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if c.Image.MaxBytes <= 0 {
		return fmt.Errorf("image.max_bytes must be positive, got %d", c.Image.MaxBytes)
	}
	return nil
}

// ValidSecurityLevel reports whether level is one of the three visibility tiers.
func ValidSecurityLevel(level string) bool {
	switch strings.TrimSpace(level) {
	case SecurityPublic, SecuritySemiClosed, SecurityClosed:
		return true
	}
	return false
}

// GetTimeout returns the interactive call timeout.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.API.Timeout, 10*time.Second)
}

// GetUploadTimeout returns the document upload timeout.
func (c *Config) GetUploadTimeout() time.Duration {
	return parseDuration(c.API.UploadTimeout, 5*time.Minute)
}

// GetAnalyzeTimeout returns the image analysis timeout.
func (c *Config) GetAnalyzeTimeout() time.Duration {
	return parseDuration(c.API.AnalyzeTimeout, 2*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
