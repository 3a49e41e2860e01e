package backendtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/models"
)

// Stub is an in-memory backend.Backend for coordinator and router tests.
// Query ignores filters and returns every record by id. Setting Err makes every call fail with it.
type Stub struct {
	BackendName string

	mu      sync.Mutex
	Err     error
	records map[string]*models.Movie
	calls   map[string]int
	lastCtx context.Context
}

// NewStub returns an empty stub named name.
func NewStub(name string) *Stub {
	return &Stub{BackendName: name, records: make(map[string]*models.Movie), calls: make(map[string]int)}
}

// Failing returns a stub whose every call fails with err.
func Failing(name string, err error) *Stub {
	s := NewStub(name)
	s.Err = err
	return s
}

// Calls returns how many times op was invoked.
func (s *Stub) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastContext returns the context of the most recent call.
func (s *Stub) LastContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCtx
}

// Record returns a copy of the stored record, or nil.
func (s *Stub) Record(id string) *models.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

func (s *Stub) begin(ctx context.Context, op string) error {
	s.calls[op]++
	s.lastCtx = ctx
	if s.Err == nil {
		return nil
	}
	kind := backend.KindOf(s.Err)
	if kind == nil {
		kind = backend.ErrBackendUnavailable
	}
	return backend.Wrap(s.BackendName, op, kind, s.Err)
}

func (s *Stub) Name() string { return s.BackendName }

func (s *Stub) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(ctx, "ensure_index")
}

func (s *Stub) Insert(ctx context.Context, m *models.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "insert"); err != nil {
		return err
	}
	s.records[m.ID] = m.Clone()
	return nil
}

func (s *Stub) Update(ctx context.Context, id string, patch *models.MoviePatch, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "update"); err != nil {
		return err
	}
	m, ok := s.records[id]
	if !ok {
		return backend.Wrap(s.BackendName, "update", backend.ErrNotFound, nil)
	}
	patch.Apply(m, updatedAt)
	return nil
}

func (s *Stub) Get(ctx context.Context, id string) (*models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "get"); err != nil {
		return nil, err
	}
	m, ok := s.records[id]
	if !ok {
		return nil, backend.Wrap(s.BackendName, "get", backend.ErrNotFound, nil)
	}
	return m.Clone(), nil
}

func (s *Stub) Query(ctx context.Context, f *models.Filter) (*backend.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "query"); err != nil {
		return nil, err
	}
	all := make([]*models.Movie, 0, len(s.records))
	for _, m := range s.records {
		all = append(all, m.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	f = f.WithDefaults()
	from := f.Offset()
	if from > len(all) {
		from = len(all)
	}
	to := len(all)
	if f.Limit < to-from {
		to = from + f.Limit
	}
	return &backend.QueryResult{Movies: all[from:to], TotalCount: len(all)}, nil
}

func (s *Stub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "delete"); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

func (s *Stub) ListDistinct(ctx context.Context, field string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "list_distinct"); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, m := range s.records {
		if m.Director != nil && *m.Director != "" {
			seen[*m.Director] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Stub) Close() error { return nil }
