package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// ConfigName is the base name of the configuration file
const ConfigName = "autorelated"

// Config represents the autorelated configuration
type Config struct {
	Schema      PathConfig     `mapstructure:"schema"`
	Descriptors PathConfig     `mapstructure:"descriptors"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Database    DatabaseConfig `mapstructure:"database"`
	Loader      LoaderConfig   `mapstructure:"loader"`
	Log         LogConfig      `mapstructure:"log"`

	// Dir is the directory relative paths are resolved against
	Dir string `mapstructure:"-"`
}

// PathConfig points at a YAML document
type PathConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig sizes the accessor cache; zero disables it
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// LoaderConfig configures the prefetch loader
type LoaderConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the configuration from path, or from the nearest
// autorelated.yml or autorelated.yaml when path is empty. Missing files
// fall back to the defaults; AUTORELATED_* variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("schema.path", "schema.yaml")
	v.SetDefault("descriptors.path", "descriptors.yaml")
	v.SetDefault("cache.size", 64)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("loader.max_depth", 10)
	v.SetDefault("log.level", "info")

	// Enable environment variable support
	v.SetEnvPrefix("AUTORELATED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := "."
	if path == "" {
		found, err := FindConfigFile()
		if err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dir = filepath.Dir(path)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Dir = dir

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// FindConfigFile walks up from the working directory looking for
// autorelated.yml or autorelated.yaml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yml", ".yaml"} {
			candidate := filepath.Join(dir, ConfigName+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no autorelated.yml found")
		}
		dir = parent
	}
}

// Resolve returns p relative to the configuration directory
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// DatabaseURL returns the configured database URL, falling back to DATABASE_URL
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}

// SQLDriver returns the database/sql driver name for the configured driver
func (c *Config) SQLDriver() string {
	if c.Database.Driver == "pgx" {
		return "pgx"
	}
	return "postgres"
}

// Level returns the configured log level
func (c *Config) Level() zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("database.driver must be postgres or pgx, got: %s", cfg.Database.Driver)
	}
	if cfg.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got: %d", cfg.Cache.Size)
	}
	if cfg.Loader.MaxDepth <= 0 {
		return fmt.Errorf("loader.max_depth must be positive, got: %d", cfg.Loader.MaxDepth)
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level is invalid: %w", err)
	}
	if cfg.Schema.Path == "" {
		return errors.New("schema.path must be set")
	}
	return nil
}
