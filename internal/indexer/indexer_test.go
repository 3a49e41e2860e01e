package indexer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/backend/backendtest"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
)

var fixedNow = time.Date(2024, 5, 4, 10, 30, 0, 123456789, time.UTC)

func strPtr(s string) *string { return &s }

func testIndexer(t *testing.T, backends ...backend.Backend) (*Indexer, *observer.ObservedLogs, *metrics.Metrics) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	m := metrics.NewIsolated()
	idx := NewIndexer(backends,
		WithLogger(zap.New(core)),
		WithMetrics(m),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "id-1" }),
	)
	return idx, logs, m
}

func TestInsert_WritesIdenticalRecordEverywhere(t *testing.T) {
	a, b := backendtest.NewStub("a"), backendtest.NewStub("b")
	idx, logs, _ := testIndexer(t, a, b)

	m, err := idx.Insert(context.Background(), &models.MovieInput{Title: "Paris, Texas", Director: strPtr("Wenders")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if m.ID != "id-1" {
		t.Errorf("ID = %q, want id-1", m.ID)
	}
	want := fixedNow.Truncate(time.Millisecond)
	if !m.CreatedAt.Equal(want) || !m.UpdatedAt.Equal(want) {
		t.Errorf("timestamps = %v/%v, want %v", m.CreatedAt, m.UpdatedAt, want)
	}
	ra, rb := a.Record("id-1"), b.Record("id-1")
	if ra == nil || rb == nil {
		t.Fatal("record missing from a backend")
	}
	if !ra.CreatedAt.Equal(rb.CreatedAt) || ra.Title != rb.Title || *ra.Director != *rb.Director {
		t.Errorf("backends diverged: %+v vs %+v", ra, rb)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %v", logs.All())
	}
}

func TestInsert_PartialFailureSucceeds(t *testing.T) {
	good := backendtest.NewStub("good")
	bad := backendtest.Failing("bad", backend.Wrap("bad", "insert", backend.ErrBackendUnavailable, io.EOF))
	idx, logs, m := testIndexer(t, bad, good)

	if _, err := idx.Insert(context.Background(), &models.MovieInput{Title: "Heat"}); err != nil {
		t.Fatalf("Insert with one failing backend: %v", err)
	}
	if bad.Calls("insert") != 1 || good.Calls("insert") != 1 {
		t.Errorf("calls bad=%d good=%d, want 1 each", bad.Calls("insert"), good.Calls("insert"))
	}
	if good.Record("id-1") == nil {
		t.Error("surviving backend lacks the record")
	}
	warned := logs.FilterMessage("backend write failed").All()
	if len(warned) != 1 || warned[0].ContextMap()["backend"] != "bad" {
		t.Errorf("want one warning naming the failed backend, got %v", logs.All())
	}
	if got := testutil.ToFloat64(m.BackendWritesTotal.WithLabelValues("bad", "insert", metrics.OutcomeError)); got != 1 {
		t.Errorf("error write count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackendWritesTotal.WithLabelValues("good", "insert", metrics.OutcomeOK)); got != 1 {
		t.Errorf("ok write count = %v, want 1", got)
	}
}

func TestInsert_AllFail(t *testing.T) {
	a := backendtest.Failing("a", backend.ErrWriteRejected)
	b := backendtest.Failing("b", backend.ErrBackendUnavailable)
	idx, _, _ := testIndexer(t, a, b)

	_, err := idx.Insert(context.Background(), &models.MovieInput{Title: "Heat"})
	if !errors.Is(err, backend.ErrWriteRejected) {
		t.Fatalf("got %v, want the first failure's kind ErrWriteRejected", err)
	}
	var werr *WriteError
	if !errors.As(err, &werr) || len(werr.Failures) != 2 {
		t.Fatalf("want *WriteError with two failures, got %#v", err)
	}
	if !strings.Contains(err.Error(), "a:") || !strings.Contains(err.Error(), "b:") {
		t.Errorf("message should name both backends: %q", err.Error())
	}
}

func TestUpdate_NotFoundEverywhere(t *testing.T) {
	idx, _, _ := testIndexer(t, backendtest.NewStub("a"), backendtest.NewStub("b"))
	_, _, err := idx.Update(context.Background(), "missing", &models.MoviePatch{Title: models.Some("x")})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpdate_MixedFailureIsNotNotFound(t *testing.T) {
	a := backendtest.NewStub("a")
	b := backendtest.Failing("b", backend.ErrBackendUnavailable)
	idx, _, _ := testIndexer(t, a, b)
	_, _, err := idx.Update(context.Background(), "missing", &models.MoviePatch{Title: models.Some("x")})
	if errors.Is(err, backend.ErrNotFound) {
		t.Errorf("mixed failure should not report not found: %v", err)
	}
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Errorf("got %v, want ErrBackendUnavailable", err)
	}
}

func TestUpdate_StampsUpdatedAt(t *testing.T) {
	a, b := backendtest.NewStub("a"), backendtest.NewStub("b")
	idx, _, _ := testIndexer(t, a, b)
	ctx := context.Background()
	if _, err := idx.Insert(ctx, &models.MovieInput{Title: "Alien"}); err != nil {
		t.Fatal(err)
	}
	later := fixedNow.Add(time.Hour)
	idx.now = func() time.Time { return later }

	updatedAt, accepted, err := idx.Update(ctx, "id-1", &models.MoviePatch{Director: models.Some("Scott")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(accepted) != 2 {
		t.Errorf("accepted %d backends, want 2", len(accepted))
	}
	for _, s := range []*backendtest.Stub{a, b} {
		r := s.Record("id-1")
		if !r.UpdatedAt.Equal(updatedAt) || r.CreatedAt.Equal(updatedAt) {
			t.Errorf("%s: created %v updated %v, want updated %v", s.Name(), r.CreatedAt, r.UpdatedAt, updatedAt)
		}
		if r.Title != "Alien" || r.Director == nil || *r.Director != "Scott" {
			t.Errorf("%s: merge-patch lost fields: %+v", s.Name(), r)
		}
	}
}

func TestUpdate_ReportsAcceptingBackends(t *testing.T) {
	tests := []struct {
		name   string
		failOn []string
		want   []string
	}{
		{"all accept", nil, []string{"a", "b", "c"}},
		{"first fails", []string{"a"}, []string{"b", "c"}},
		{"last two fail", []string{"b", "c"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubs := []*backendtest.Stub{backendtest.NewStub("a"), backendtest.NewStub("b"), backendtest.NewStub("c")}
			idx, _, _ := testIndexer(t, stubs[0], stubs[1], stubs[2])
			ctx := context.Background()
			if _, err := idx.Insert(ctx, &models.MovieInput{Title: "Alien"}); err != nil {
				t.Fatal(err)
			}
			for _, s := range stubs {
				for _, name := range tt.failOn {
					if s.Name() == name {
						s.Err = backend.ErrBackendUnavailable
					}
				}
			}
			_, accepted, err := idx.Update(ctx, "id-1", &models.MoviePatch{Director: models.Some("Scott")})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			got := make([]string, 0, len(accepted))
			for _, b := range accepted {
				got = append(got, b.Name())
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("accepted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelete_MissingIsSuccess(t *testing.T) {
	idx, _, _ := testIndexer(t, backendtest.NewStub("a"), backendtest.NewStub("b"))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := idx.Delete(ctx, "never-there"); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
}

func TestDelete_NotFoundBackendCountsAsDone(t *testing.T) {
	notFound := backendtest.Failing("gone", backend.ErrNotFound)
	down := backendtest.Failing("down", backend.ErrBackendUnavailable)
	idx, _, _ := testIndexer(t, notFound, down)
	if err := idx.Delete(context.Background(), "x"); err != nil {
		t.Errorf("Delete should succeed when one backend reports not found: %v", err)
	}
}

func TestFanOut_DetachedFromCancellation(t *testing.T) {
	a := backendtest.NewStub("a")
	idx, _, _ := testIndexer(t, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := idx.Insert(ctx, &models.MovieInput{Title: "Ronin"}); err != nil {
		t.Fatalf("Insert on cancelled context: %v", err)
	}
	if err := a.LastContext().Err(); err != nil {
		t.Errorf("backend saw a cancelled context: %v", err)
	}
}

func TestFanOut_NoBackends(t *testing.T) {
	idx, _, _ := testIndexer(t)
	_, err := idx.Insert(context.Background(), &models.MovieInput{Title: "x"})
	if !errors.Is(err, backend.ErrConfiguration) {
		t.Errorf("got %v, want ErrConfiguration", err)
	}
}

func TestImport_KeepsCreatedAt(t *testing.T) {
	a := backendtest.NewStub("a")
	idx, _, _ := testIndexer(t, a)
	created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := idx.Import(context.Background(), "fixed", &models.MovieInput{Title: "Solaris"}, created)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "fixed" || !m.CreatedAt.Equal(created) || m.UpdatedAt.Equal(created) {
		t.Errorf("got id=%s created=%v updated=%v", m.ID, m.CreatedAt, m.UpdatedAt)
	}
}
