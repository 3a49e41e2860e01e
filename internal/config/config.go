// Package config provides configuration loading and structs for the filmdex server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvEngine      = "FILMDEX_ENGINE"
	EnvPostgresDSN = "FILMDEX_POSTGRES_DSN"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Engine   string         `yaml:"engine"`
	Backends BackendsConfig `yaml:"backends"`
	Import   ImportConfig   `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendsConfig lists the search backends writes fan out to.
type BackendsConfig struct {
	Bleve    BleveConfig    `yaml:"bleve"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// BleveConfig configures the inverted-index backend. Enabled defaults to true.
type BleveConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
}

// SQLiteConfig configures the embedded SQL backend. Enabled defaults to true.
type SQLiteConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// PostgresConfig configures the PostgreSQL backend. It is off unless enabled.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// ImportConfig holds the drop-folder settings of the import watcher.
type ImportConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (c *ImportConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// IsEnabled reports whether the bleve backend is enabled.
func (c *BleveConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// IsEnabled reports whether the sqlite backend is enabled.
func (c *SQLiteConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Backends.Bleve.IndexPath = expandPath(cfg.Backends.Bleve.IndexPath, configDir)
	cfg.Backends.SQLite.DatabasePath = expandPath(cfg.Backends.SQLite.DatabasePath, configDir)
	for i := range cfg.Import.Directories {
		cfg.Import.Directories[i] = expandPath(cfg.Import.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides the engine and the PostgreSQL DSN from the environment.
// A DSN in the environment also enables the PostgreSQL backend.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvEngine)); v != "" {
		cfg.Engine = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Backends.Postgres.DSN = v
		cfg.Backends.Postgres.Enabled = true
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is kept as is.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
