// Package config handles ProfileCRM configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	Storage   StorageConfig   `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Defaults  DefaultsConfig  `json:"defaults" yaml:"defaults"`
	Reminders RemindersConfig `json:"reminders" yaml:"reminders" envPrefix:"REMINDERS_"`
}

// StorageConfig for the embedded database
type StorageConfig struct {
	Path        string        `json:"path" yaml:"path" env:"PATH"` // Empty means <data_dir>/profilecrm.db
	InMemory    bool          `json:"in_memory" yaml:"in_memory" env:"IN_MEMORY"`
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port" env:"PORT"`
	Host           string   `json:"host" yaml:"host" env:"HOST"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LoggingConfig for the logger
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" env:"FORMAT"` // "console" or "json"
}

// DefaultsConfig for values filled in when the caller omits them
type DefaultsConfig struct {
	ListColor string `json:"list_color" yaml:"list_color"`
	TagColor  string `json:"tag_color" yaml:"tag_color"`
}

// RemindersConfig for the daemon's background jobs
type RemindersConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Interval       time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
	IntegrityCheck time.Duration `json:"integrity_check" yaml:"integrity_check" env:"INTEGRITY_CHECK"` // Zero disables
}

// EnvPrefix is prepended to every environment override
const EnvPrefix = "PROFILECRM_"

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".profilecrm"),
		Storage: StorageConfig{
			BusyTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Port: 8765,
			Host: "localhost",
			// Extension pages call the daemon from chrome-extension:// origins
			AllowedOrigins: []string{"chrome-extension://*", "moz-extension://*", "http://localhost:*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Defaults: DefaultsConfig{
			ListColor: "#1d9bf0",
			TagColor:  "#657786",
		},
		Reminders: RemindersConfig{
			Enabled:        true,
			Interval:       15 * time.Minute,
			IntegrityCheck: 6 * time.Hour,
		},
	}
}

// DatabasePath returns where the database file lives
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "profilecrm.db")
}

// Load loads config from file, falling back to defaults. Environment
// variables prefixed with PROFILECRM_ win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err == nil {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
