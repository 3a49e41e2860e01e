// Package indexer writes movie records to every configured backend.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
)

// Indexer fans each write out to all backends. A write succeeds when at least one backend
// accepts it; the failures of the others are logged and counted but not returned.
type Indexer struct {
	backends []backend.Backend
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger that receives per-backend write failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics records every backend call in m.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) IndexerOption {
	return func(idx *Indexer) { idx.now = now }
}

// WithIDGenerator overrides id minting for new records.
func WithIDGenerator(newID func() string) IndexerOption {
	return func(idx *Indexer) { idx.newID = newID }
}

// NewIndexer creates a write coordinator over backends.
func NewIndexer(backends []backend.Backend, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		backends: backends,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Backends returns the backends writes go to.
func (idx *Indexer) Backends() []backend.Backend {
	return idx.backends
}

// timestamp returns the current time at the precision every backend keeps.
func (idx *Indexer) timestamp() time.Time {
	return idx.now().UTC().Truncate(time.Millisecond)
}

// Insert mints an id and timestamps once and writes the same record to every backend.
func (idx *Indexer) Insert(ctx context.Context, in *models.MovieInput) (*models.Movie, error) {
	return idx.Import(ctx, idx.newID(), in, time.Time{})
}

// Import writes the record for a caller-chosen id, replacing any existing one.
// A zero createdAt is stamped with the current time.
func (idx *Indexer) Import(ctx context.Context, id string, in *models.MovieInput, createdAt time.Time) (*models.Movie, error) {
	now := idx.timestamp()
	m := in.Movie(id, now)
	if !createdAt.IsZero() {
		m.CreatedAt = createdAt.UTC().Truncate(time.Millisecond)
	}
	_, err := idx.fanOut(ctx, "insert", func(ctx context.Context, b backend.Backend) error {
		return b.Insert(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	idx.logger.Debug("movie written", zap.String("id", id))
	return m, nil
}

// Update merges patch into the record id on every backend. It returns the new updated_at
// and the backends that accepted the patch.
func (idx *Indexer) Update(ctx context.Context, id string, patch *models.MoviePatch) (time.Time, []backend.Backend, error) {
	updatedAt := idx.timestamp()
	accepted, err := idx.fanOut(ctx, "update", func(ctx context.Context, b backend.Backend) error {
		return b.Update(ctx, id, patch, updatedAt)
	})
	if err != nil {
		return time.Time{}, nil, err
	}
	return updatedAt, accepted, nil
}

// Delete removes the record id from every backend. A backend that does not have it counts as done.
func (idx *Indexer) Delete(ctx context.Context, id string) error {
	_, err := idx.fanOut(ctx, "delete", func(ctx context.Context, b backend.Backend) error {
		if err := b.Delete(ctx, id); err != nil && !backend.IsNotFound(err) {
			return err
		}
		return nil
	})
	return err
}

// fanOut runs write on every backend concurrently and waits for all of them, returning
// the backends that accepted it in configuration order.
// The calls are detached from ctx cancellation.
func (idx *Indexer) fanOut(ctx context.Context, op string, write func(context.Context, backend.Backend) error) ([]backend.Backend, error) {
	if len(idx.backends) == 0 {
		return nil, &WriteError{Op: op, Kind: backend.ErrConfiguration}
	}
	ctx = context.WithoutCancel(ctx)
	errs := make([]error, len(idx.backends))
	var g errgroup.Group
	for i, b := range idx.backends {
		g.Go(func() error {
			start := time.Now()
			err := write(ctx, b)
			idx.metrics.ObserveWrite(b.Name(), op, err, time.Since(start))
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	failures := make(map[string]error)
	var accepted []backend.Backend
	for i, err := range errs {
		if err != nil {
			failures[idx.backends[i].Name()] = err
			continue
		}
		accepted = append(accepted, idx.backends[i])
	}
	if len(accepted) > 0 {
		for name, err := range failures {
			idx.logger.Warn("backend write failed",
				zap.String("backend", name),
				zap.String("op", op),
				zap.Error(err))
		}
		return accepted, nil
	}
	werr := &WriteError{Op: op, Kind: aggregateKind(errs), Failures: failures}
	idx.logger.Error("write failed on every backend", zap.String("op", op), zap.Error(werr))
	return nil, werr
}

// aggregateKind is ErrNotFound only when every backend reported it; otherwise the kind
// of the first other failure.
func aggregateKind(errs []error) error {
	for _, err := range errs {
		if backend.IsNotFound(err) {
			continue
		}
		if kind := backend.KindOf(err); kind != nil {
			return kind
		}
		return backend.ErrBackendUnavailable
	}
	return backend.ErrNotFound
}

// WriteError reports a write that no backend accepted. errors.Is matches Kind only;
// the per-backend causes are kept in Failures.
type WriteError struct {
	Op       string
	Kind     error
	Failures map[string]error
}

func (e *WriteError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: %v: no backends configured", e.Op, e.Kind)
	}
	details := make([]string, 0, len(e.Failures))
	for name, err := range e.Failures {
		details = append(details, fmt.Sprintf("%s: %v", name, err))
	}
	sort.Strings(details)
	return fmt.Sprintf("%s failed on every backend (%s)", e.Op, strings.Join(details, "; "))
}

func (e *WriteError) Unwrap() error { return e.Kind }
