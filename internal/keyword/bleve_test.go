package keyword

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/backend/backendtest"
	"github.com/hyperjump/filmdex/internal/models"
)

func TestBleveIndex_Contract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return NewBleveIndex("")
	})
}

func TestBleveIndex_OnDiskContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return NewBleveIndex(filepath.Join(t.TempDir(), "movies.bleve"))
	})
}

func TestBleveIndex_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "movies.bleve")
	ctx := context.Background()

	idx := NewBleveIndex(path)
	if err := idx.EnsureIndex(ctx); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := idx.Insert(ctx, backendtest.Movie("m1", "Stalker", 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := NewBleveIndex(path)
	defer func() {
		_ = reopened.Close()
	}()
	if err := reopened.EnsureIndex(ctx); err != nil {
		t.Fatalf("EnsureIndex after reopen: %v", err)
	}
	got, err := reopened.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Title != "Stalker" {
		t.Errorf("title = %q, want Stalker", got.Title)
	}
	n, err := reopened.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
}

func TestBleveIndex_SchemaConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.bleve")
	ctx := context.Background()

	idx := NewBleveIndex(path)
	index, err := idx.handle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := index.SetInternal([]byte(schemaKey), []byte("documents/v0")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := NewBleveIndex(path)
	defer func() {
		_ = reopened.Close()
	}()
	if err := reopened.EnsureIndex(ctx); !errors.Is(err, backend.ErrSchemaConflict) {
		t.Errorf("EnsureIndex on foreign schema: got %v, want ErrSchemaConflict", err)
	}
}

func TestBleveIndex_SearchIsCaseInsensitive(t *testing.T) {
	idx := NewBleveIndex("")
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()
	if err := idx.Insert(ctx, backendtest.Movie("m1", "The Bayes Theorem", 0)); err != nil {
		t.Fatal(err)
	}
	for _, term := range []string{"bayes", "BAYES", "Bayes"} {
		res, err := idx.Query(ctx, (&models.Filter{Search: &term}).WithDefaults())
		if err != nil {
			t.Fatalf("Query %q: %v", term, err)
		}
		if res.TotalCount != 1 {
			t.Errorf("search %q: total %d, want 1", term, res.TotalCount)
		}
	}
}

func TestBuildQuery_SortOrder(t *testing.T) {
	director := "Varda"
	year := 1962
	search := "cleo"
	tests := []struct {
		name string
		f    *models.Filter
		want string
	}{
		{"no filters", &models.Filter{}, "[-created_at _id]"},
		{"director", &models.Filter{Director: &director}, "[_id]"},
		{"year", &models.Filter{ReleaseYear: &year}, "[_id]"},
		{"search", &models.Filter{Search: &search, ReleaseYear: &year}, "[-_score _id]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, order := buildQuery(tt.f.WithDefaults())
			if got := fmt.Sprint(order); got != tt.want {
				t.Errorf("order = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBleveIndex_SearchKeepsStopWords(t *testing.T) {
	b := NewBleveIndex("")
	defer b.Close()
	ctx := context.Background()
	if err := b.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	m := backendtest.Movie("casablanca", "Casablanca", 0)
	synopsis := "A nightclub owner holds letters of transit."
	m.Synopsis = &synopsis
	if err := b.Insert(ctx, m); err != nil {
		t.Fatal(err)
	}
	search := "letters of transit"
	res, err := b.Query(ctx, &models.Filter{Search: &search})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCount != 1 {
		t.Errorf("total = %d, want 1", res.TotalCount)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		count       uint64
		size, from  int
	}{
		{"first page", 1, 10, 25, 10, 0},
		{"last page", 3, 10, 25, 10, 20},
		{"past the end", 4, 10, 25, 0, 25},
		{"empty index", 1, 10, 0, 0, 0},
		{"max limit", 1, math.MaxInt, 3, 3, 0},
		{"max limit second page", 2, math.MaxInt, 3, 0, 3},
		{"max limit third page", 3, math.MaxInt, 3, 0, 3},
		{"max page", math.MaxInt, 10, 3, 0, 3},
		{"huge count", 2, math.MaxInt, math.MaxUint64, 0, math.MaxInt / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, from := window(&models.Filter{Page: tt.page, Limit: tt.limit}, tt.count)
			if size != tt.size || from != tt.from {
				t.Errorf("window = (%d, %d), want (%d, %d)", size, from, tt.size, tt.from)
			}
		})
	}
}

func TestBleveIndex_WritesWaitForUpdate(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		write func(b *BleveIndex) error
	}{
		{"insert", func(b *BleveIndex) error { return b.Insert(ctx, backendtest.Movie("m1", "Upserted", 1)) }},
		{"update", func(b *BleveIndex) error {
			return b.Update(ctx, "m1", &models.MoviePatch{Title: models.Some("Patched")}, time.Now())
		}},
		{"delete", func(b *BleveIndex) error { return b.Delete(ctx, "m1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBleveIndex("")
			defer b.Close()
			if err := b.Insert(ctx, backendtest.Movie("m1", "Original", 0)); err != nil {
				t.Fatal(err)
			}

			// Holding writeMu stands in for an update between its read and its re-index.
			b.writeMu.Lock()
			done := make(chan error, 1)
			go func() { done <- tt.write(b) }()
			select {
			case err := <-done:
				b.writeMu.Unlock()
				t.Fatalf("%s ran during an update's read-modify-write (err=%v)", tt.name, err)
			case <-time.After(50 * time.Millisecond):
			}
			b.writeMu.Unlock()
			if err := <-done; err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
		})
	}
}
