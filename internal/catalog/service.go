// Package catalog is the service facade over the write coordinator and the read router.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/indexer"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
	"github.com/hyperjump/filmdex/internal/pagination"
	"github.com/hyperjump/filmdex/internal/search"
)

// Service validates requests and hands writes to the indexer and reads to the router.
type Service struct {
	indexer *indexer.Indexer
	router  *search.Router
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records import outcomes in m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the facade.
func NewService(idx *indexer.Indexer, router *search.Router, opts ...ServiceOption) *Service {
	s := &Service{indexer: idx, router: router, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start ensures every backend's index exists. Failing backends are logged; Start fails only
// when no backend is ready.
func (s *Service) Start(ctx context.Context) error {
	backends := s.indexer.Backends()
	if len(backends) == 0 {
		return fmt.Errorf("no backends enabled: %w", backend.ErrConfiguration)
	}
	var errs []error
	for _, b := range backends {
		if err := b.EnsureIndex(ctx); err != nil {
			s.logger.Error("backend not ready", zap.String("backend", b.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.logger.Info("backend ready", zap.String("backend", b.Name()))
	}
	if len(errs) == len(backends) {
		return fmt.Errorf("no backend is ready: %w", errors.Join(errs...))
	}
	if _, err := s.router.Backend(); err != nil {
		s.logger.Warn("reads will fail until the engine is configured", zap.Error(err))
	}
	return nil
}

// Close releases every backend.
func (s *Service) Close() error {
	var errs []error
	for _, b := range s.indexer.Backends() {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CreateRecord validates in and writes a new record.
func (s *Service) CreateRecord(ctx context.Context, in *models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.indexer.Insert(ctx, in)
}

// GetRecord returns the record id from the engine of record.
func (s *Service) GetRecord(ctx context.Context, id string) (*models.Movie, error) {
	return s.router.Get(ctx, id)
}

// SearchRecords runs f, defaulting page and limit, and returns the paginated result.
func (s *Service) SearchRecords(ctx context.Context, f *models.Filter) (*models.PaginatedResult, error) {
	if f == nil {
		f = &models.Filter{}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.WithDefaults()
	res, err := s.router.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return pagination.Paginate(f, res), nil
}

// UpdateRecord merges patch into the record id and returns the record as the engine of record
// now holds it. When the engine of record cannot serve it, the record is read back from a
// backend that accepted the patch.
func (s *Service) UpdateRecord(ctx context.Context, id string, patch *models.MoviePatch) (*models.Movie, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", models.ErrInvalid)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	_, accepted, err := s.indexer.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	m, err := s.router.Get(ctx, id)
	if err == nil {
		return m, nil
	}
	if m, ok := s.readAny(ctx, id, accepted); ok {
		s.logger.Warn("engine of record unreadable after update", zap.String("id", id), zap.Error(err))
		return m, nil
	}
	return nil, err
}

// DeleteRecord removes the record id. Deleting a missing id succeeds.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	return s.indexer.Delete(ctx, id)
}

// ListDirectors returns the distinct directors in ascending order.
func (s *Service) ListDirectors(ctx context.Context) ([]string, error) {
	return s.router.ListDistinct(ctx, backend.FieldDirector)
}

// ImportRecord upserts the record id. An existing record keeps its created_at.
func (s *Service) ImportRecord(ctx context.Context, id string, in *models.MovieInput) (*models.Movie, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var createdAt time.Time
	existing, err := s.router.Get(ctx, id)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case backend.IsNotFound(err):
	default:
		// created_at is stamped only when the record is known to be new.
		m, ok := s.readAny(ctx, id, s.indexer.Backends())
		if !ok {
			return nil, fmt.Errorf("read existing record %s: %w", id, err)
		}
		s.logger.Warn("import read existing record from a fallback backend", zap.String("id", id), zap.Error(err))
		createdAt = m.CreatedAt
	}
	return s.indexer.Import(ctx, id, in, createdAt)
}

// readAny returns the record id from the first of backends that has it.
func (s *Service) readAny(ctx context.Context, id string, backends []backend.Backend) (*models.Movie, bool) {
	for _, b := range backends {
		m, err := b.Get(ctx, id)
		if err == nil {
			return m, true
		}
		s.logger.Debug("fallback read failed", zap.String("backend", b.Name()), zap.String("id", id), zap.Error(err))
	}
	return nil, false
}
