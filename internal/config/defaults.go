package config

// DefaultEngine is the read engine when none is configured.
const DefaultEngine = "bleve"

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.Backends.Bleve.IndexPath == "" {
		cfg.Backends.Bleve.IndexPath = "/usr/local/var/filmdex/data/bleve"
	}
	if cfg.Backends.SQLite.DatabasePath == "" {
		cfg.Backends.SQLite.DatabasePath = "/usr/local/var/filmdex/data/movies.db"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Import.Directories) > 0 && cfg.Import.Recursive == nil {
		t := true
		cfg.Import.Recursive = &t
	}
}
