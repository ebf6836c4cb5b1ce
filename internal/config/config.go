// internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are populated
// from specter.yaml, SPECTER_* environment variables and CLI flags, in that
// order of increasing precedence.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Runner  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output, rotated by lumberjack. Empty disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome session backing each test file.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// ModelConfig configures the vision model provider.
type ModelConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Name            string        `mapstructure:"name" yaml:"name"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
}

// RunnerConfig bounds the agent loop.
type RunnerConfig struct {
	// TurnBudget is the maximum number of model round-trips per test. It is
	// the sole built-in upper bound on a fresh run.
	TurnBudget int `mapstructure:"turn_budget" yaml:"turn_budget"`
}

// CacheConfig controls the replay cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Dir is the cache root. "~" is expanded; the default keeps the cache
	// project-local.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Project namespaces entries so unrelated checkouts sharing a cache dir
	// never collide.
	Project string `mapstructure:"project" yaml:"project"`

	// SettleDelay is inserted before each replayed action. It is a throttle
	// for UI stabilization, not a correctness mechanism.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// SupportedProviders lists the model providers the factory can construct.
const ProviderGemini = "gemini"

// SetDefaults registers every default value on the given viper instance.
// Called before unmarshalling so a missing config file still yields a fully
// usable configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "specter-cli")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)

	v.SetDefault("model.provider", ProviderGemini)
	v.SetDefault("model.name", "gemini-2.5-pro")
	v.SetDefault("model.api_timeout", 2*time.Minute)
	v.SetDefault("model.max_output_tokens", 4096)
	v.SetDefault("model.temperature", 0.2)

	v.SetDefault("runner.turn_budget", 30)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", ".specter/cache")
	v.SetDefault("cache.project", "default")
	v.SetDefault("cache.settle_delay", 500*time.Millisecond)
}

// NewDefault returns a Config populated with defaults only. Used by tests and
// as a fallback when no config file is present.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of registered defaults into the matching struct cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Runner.TurnBudget <= 0 {
		return fmt.Errorf("runner.turn_budget must be positive, got %d", c.Runner.TurnBudget)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when the cache is enabled")
	}
	return nil
}

// CacheDir returns the cache root with "~" expanded.
func (c *Config) CacheDir() (string, error) {
	dir, err := homedir.Expand(c.Cache.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand cache dir %q: %w", c.Cache.Dir, err)
	}
	return dir, nil
}
