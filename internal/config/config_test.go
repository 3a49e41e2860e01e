package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv(EnvEngine, "")
	t.Setenv(EnvPostgresDSN, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
engine: sqlite
backends:
  sqlite:
    database_path: "/tmp/movies.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if cfg.Engine != "sqlite" {
		t.Errorf("engine = %q, want sqlite", cfg.Engine)
	}
	if cfg.Backends.SQLite.DatabasePath != "/tmp/movies.db" {
		t.Errorf("database_path = %s", cfg.Backends.SQLite.DatabasePath)
	}
	if cfg.Backends.Bleve.IndexPath == "" {
		t.Error("bleve index_path should default")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
backends:
  bleve:
    index_path: "./data/bleve"
  sqlite:
    database_path: "./data/movies.db"
import:
  directories: ["./incoming"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "bleve"); cfg.Backends.Bleve.IndexPath != want {
		t.Errorf("index_path = %s, want %s", cfg.Backends.Bleve.IndexPath, want)
	}
	if want := filepath.Join(dir, "data", "movies.db"); cfg.Backends.SQLite.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Backends.SQLite.DatabasePath, want)
	}
	if len(cfg.Import.Directories) != 1 {
		t.Fatalf("import directories: got %d", len(cfg.Import.Directories))
	}
	if want := filepath.Join(dir, "incoming"); cfg.Import.Directories[0] != want {
		t.Errorf("import directory = %s, want %s", cfg.Import.Directories[0], want)
	}
	if !cfg.Import.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestLoad_memoryPathKept(t *testing.T) {
	path := writeConfig(t, `
backends:
  sqlite:
    database_path: ":memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backends.SQLite.DatabasePath != ":memory:" {
		t.Errorf("database_path = %s, want :memory:", cfg.Backends.SQLite.DatabasePath)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	path := writeConfig(t, `
engine: bleve
backends:
  postgres:
    enabled: false
`)
	t.Setenv(EnvEngine, " Postgres ")
	t.Setenv(EnvPostgresDSN, "postgres://localhost/filmdex?sslmode=disable")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine != "Postgres" {
		t.Errorf("engine = %q, want Postgres", cfg.Engine)
	}
	if !cfg.Backends.Postgres.Enabled {
		t.Error("postgres should be enabled by the DSN override")
	}
	if cfg.Backends.Postgres.DSN != "postgres://localhost/filmdex?sslmode=disable" {
		t.Errorf("dsn = %q", cfg.Backends.Postgres.DSN)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Engine != DefaultEngine {
		t.Errorf("default engine: got %s", cfg.Engine)
	}
	if !cfg.Backends.Bleve.IsEnabled() || !cfg.Backends.SQLite.IsEnabled() {
		t.Error("bleve and sqlite should be enabled by default")
	}
	if cfg.Backends.Postgres.Enabled {
		t.Error("postgres should be disabled by default")
	}
	if cfg.Import.Recursive != nil {
		t.Error("recursive should stay unset without import directories")
	}
}

func TestBackendEnabledFlags(t *testing.T) {
	off := false
	cfg := Default()
	cfg.Backends.Bleve.Enabled = &off
	if cfg.Backends.Bleve.IsEnabled() {
		t.Error("bleve explicitly disabled")
	}
	if !cfg.Backends.SQLite.IsEnabled() {
		t.Error("sqlite should stay enabled")
	}
}

func TestImportConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		c := &ImportConfig{}
		if got := c.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		c := &ImportConfig{Recursive: &f}
		if got := c.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	t.Setenv(EnvEngine, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Engine = "sqlite"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Engine != "sqlite" {
		t.Errorf("loaded engine: got %s", loaded.Engine)
	}
}
