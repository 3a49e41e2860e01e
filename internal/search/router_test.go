package search

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/backend/backendtest"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
)

func TestNewRouter_Selection(t *testing.T) {
	bleve, sqlite := backendtest.NewStub("bleve"), backendtest.NewStub("sqlite")
	backends := []backend.Backend{bleve, sqlite}
	tests := []struct {
		engine  string
		want    backend.Backend
		wantErr bool
	}{
		{"bleve", bleve, false},
		{"SQLite", sqlite, false},
		{" sqlite ", sqlite, false},
		{"", nil, true},
		{"elastic", nil, true},
		{"sql", nil, true},
	}
	for _, tt := range tests {
		got, err := NewRouter(backends, tt.engine).Backend()
		if tt.wantErr {
			if !errors.Is(err, backend.ErrConfiguration) {
				t.Errorf("engine %q: got %v, want ErrConfiguration", tt.engine, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("engine %q: got %v, %v", tt.engine, got, err)
		}
	}
}

func TestRouter_ReadsOnlyFromEngineOfRecord(t *testing.T) {
	bleve, sqlite := backendtest.NewStub("bleve"), backendtest.NewStub("sqlite")
	ctx := context.Background()
	if err := sqlite.Insert(ctx, backendtest.Movie("m1", "Only in sqlite", 0)); err != nil {
		t.Fatal(err)
	}
	m := metrics.NewIsolated()
	r := NewRouter([]backend.Backend{bleve, sqlite}, "sqlite", WithMetrics(m))

	got, err := r.Get(ctx, "m1")
	if err != nil || got.Title != "Only in sqlite" {
		t.Fatalf("Get: %v, %v", got, err)
	}
	res, err := r.Query(ctx, &models.Filter{})
	if err != nil || res.TotalCount != 1 {
		t.Fatalf("Query: %+v, %v", res, err)
	}
	if _, err := r.ListDistinct(ctx, backend.FieldDirector); err != nil {
		t.Fatalf("ListDistinct: %v", err)
	}
	if bleve.Calls("get")+bleve.Calls("query")+bleve.Calls("list_distinct") != 0 {
		t.Error("reads reached the non-selected backend")
	}
	if got := testutil.ToFloat64(m.BackendReadsTotal.WithLabelValues("sqlite", "get", metrics.OutcomeOK)); got != 1 {
		t.Errorf("read count = %v, want 1", got)
	}
}

func TestRouter_PropagatesErrorsUnchanged(t *testing.T) {
	down := backendtest.Failing("bleve", io.ErrUnexpectedEOF)
	healthy := backendtest.NewStub("sqlite")
	r := NewRouter([]backend.Backend{down, healthy}, "bleve")
	ctx := context.Background()

	if _, err := r.Get(ctx, "m1"); !errors.Is(err, backend.ErrBackendUnavailable) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Get: got %v", err)
	}
	if healthy.Calls("get") != 0 {
		t.Error("router fell back to another backend")
	}

	r = NewRouter([]backend.Backend{healthy}, "sqlite")
	if _, err := r.Get(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestRouter_Misconfigured(t *testing.T) {
	r := NewRouter([]backend.Backend{backendtest.NewStub("bleve")}, "meili")
	ctx := context.Background()
	if _, err := r.Query(ctx, &models.Filter{}); !errors.Is(err, backend.ErrConfiguration) {
		t.Errorf("Query: got %v", err)
	}
	if _, err := r.ListDistinct(ctx, backend.FieldDirector); !errors.Is(err, backend.ErrConfiguration) {
		t.Errorf("ListDistinct: got %v", err)
	}
}
