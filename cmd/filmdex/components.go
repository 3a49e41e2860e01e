package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/catalog"
	"github.com/hyperjump/filmdex/internal/config"
	"github.com/hyperjump/filmdex/internal/indexer"
	"github.com/hyperjump/filmdex/internal/keyword"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/search"
	"github.com/hyperjump/filmdex/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Backends []backend.Backend
	Indexer  *indexer.Indexer
	Router   *search.Router
	Catalog  *catalog.Service
}

// Close releases every backend.
func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

// buildBackends creates one adapter per enabled backend, in write order bleve, sqlite, postgres.
func buildBackends(cfg *config.Config, logger *zap.Logger) []backend.Backend {
	var backends []backend.Backend
	if cfg.Backends.Bleve.IsEnabled() {
		backends = append(backends, keyword.NewBleveIndex(cfg.Backends.Bleve.IndexPath,
			keyword.WithLogger(logger.With(zap.String("backend", keyword.Name)))))
	}
	if cfg.Backends.SQLite.IsEnabled() {
		backends = append(backends, storage.NewSQLiteStorage(cfg.Backends.SQLite.DatabasePath,
			storage.WithLogger(logger.With(zap.String("backend", storage.SQLiteName)))))
	}
	if cfg.Backends.Postgres.Enabled {
		backends = append(backends, storage.NewPostgresStorage(cfg.Backends.Postgres.DSN,
			storage.WithLogger(logger.With(zap.String("backend", storage.PostgresName)))))
	}
	return backends
}

// dataPaths maps each enabled on-disk backend to its data path, for /health.
func dataPaths(cfg *config.Config) map[string]string {
	paths := make(map[string]string)
	if cfg.Backends.Bleve.IsEnabled() {
		paths[keyword.Name] = cfg.Backends.Bleve.IndexPath
	}
	if cfg.Backends.SQLite.IsEnabled() && cfg.Backends.SQLite.DatabasePath != ":memory:" {
		paths[storage.SQLiteName] = cfg.Backends.SQLite.DatabasePath
	}
	return paths
}

// initializeComponents wires the backends into the catalog and ensures their indexes exist.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	backends := buildBackends(cfg, logger)
	idx := indexer.NewIndexer(backends, indexer.WithLogger(logger), indexer.WithMetrics(m))
	router := search.NewRouter(backends, cfg.Engine, search.WithMetrics(m))
	svc := catalog.NewService(idx, router, catalog.WithLogger(logger), catalog.WithMetrics(m))
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("failed to start catalog: %w", err)
	}
	return &Components{
		Backends: backends,
		Indexer:  idx,
		Router:   router,
		Catalog:  svc,
	}, nil
}
