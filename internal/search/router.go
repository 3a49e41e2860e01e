// Package search routes catalog reads to the configured engine of record.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
)

// Router serves every read from one backend, chosen by name. An empty or unknown
// engine name is reported on each read as backend.ErrConfiguration.
type Router struct {
	engine   string
	selected backend.Backend
	metrics  *metrics.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMetrics records every read in m.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter selects the backend whose name equals engine, ignoring case.
func NewRouter(backends []backend.Backend, engine string, opts ...RouterOption) *Router {
	r := &Router{engine: strings.TrimSpace(engine)}
	for _, b := range backends {
		if r.engine != "" && strings.EqualFold(b.Name(), r.engine) {
			r.selected = b
			break
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the engine of record.
func (r *Router) Backend() (backend.Backend, error) {
	if r.selected != nil {
		return r.selected, nil
	}
	if r.engine == "" {
		return nil, fmt.Errorf("no read engine configured: %w", backend.ErrConfiguration)
	}
	return nil, fmt.Errorf("read engine %q is not a configured backend: %w", r.engine, backend.ErrConfiguration)
}

// Get returns the record id from the engine of record.
func (r *Router) Get(ctx context.Context, id string) (*models.Movie, error) {
	b, err := r.Backend()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	m, err := b.Get(ctx, id)
	r.metrics.ObserveRead(b.Name(), "get", err, time.Since(start))
	return m, err
}

// Query runs f on the engine of record.
func (r *Router) Query(ctx context.Context, f *models.Filter) (*backend.QueryResult, error) {
	b, err := r.Backend()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := b.Query(ctx, f)
	r.metrics.ObserveRead(b.Name(), "query", err, time.Since(start))
	return res, err
}

// ListDistinct lists the distinct values of field on the engine of record.
func (r *Router) ListDistinct(ctx context.Context, field string) ([]string, error) {
	b, err := r.Backend()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	values, err := b.ListDistinct(ctx, field)
	r.metrics.ObserveRead(b.Name(), "list_distinct", err, time.Since(start))
	return values, err
}
