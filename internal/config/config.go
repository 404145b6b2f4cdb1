package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete binkb configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Limits  LimitsConfig  `json:"limits" mapstructure:"limits"`
	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LimitsConfig contains hard upper bounds for query operations. These act
// as implicit cancellation: no operation may run unbounded.
type LimitsConfig struct {
	MaxBatchResolve   int `json:"maxBatchResolve" mapstructure:"maxBatchResolve"`
	DefaultMaxResults int `json:"defaultMaxResults" mapstructure:"defaultMaxResults"`
	MaxCallGraphDepth int `json:"maxCallGraphDepth" mapstructure:"maxCallGraphDepth"`
}

// CacheConfig contains string cache configuration
type CacheConfig struct {
	// Dir overrides the artifact location. Empty means co-located with the
	// document's own save artifact.
	Dir string `json:"dir" mapstructure:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

const currentConfigVersion = 1

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: currentConfigVersion,
		Limits: LimitsConfig{
			MaxBatchResolve:   50,
			DefaultMaxResults: 20,
			MaxCallGraphDepth: 10,
		},
		Cache: CacheConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.binkb/config.json
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	// Set defaults
	def := DefaultConfig()
	v.SetDefault("version", def.Version)
	v.SetDefault("limits.maxBatchResolve", def.Limits.MaxBatchResolve)
	v.SetDefault("limits.defaultMaxResults", def.Limits.DefaultMaxResults)
	v.SetDefault("limits.maxCallGraphDepth", def.Limits.MaxCallGraphDepth)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.level", def.Logging.Level)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".binkb"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <root>/.binkb/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".binkb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != currentConfigVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Limits.MaxBatchResolve < 1 {
		return &ConfigError{Field: "limits.maxBatchResolve", Message: "must be at least 1"}
	}
	if c.Limits.DefaultMaxResults < 1 {
		return &ConfigError{Field: "limits.defaultMaxResults", Message: "must be at least 1"}
	}
	if c.Limits.MaxCallGraphDepth < 0 {
		return &ConfigError{Field: "limits.maxCallGraphDepth", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
