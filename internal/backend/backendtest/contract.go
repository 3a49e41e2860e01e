// Package backendtest holds the behavior every backend.Backend must share, as a reusable test suite.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/models"
)

// Factory returns a fresh, empty backend. The suite calls EnsureIndex and Close itself.
type Factory func(t *testing.T) backend.Backend

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Movie builds a record created n minutes after a fixed base time.
func Movie(id, title string, n int) *models.Movie {
	at := base.Add(time.Duration(n) * time.Minute)
	return &models.Movie{ID: id, Title: title, CreatedAt: at, UpdatedAt: at}
}

func str(v string) *string   { return &v }
func num(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func date(s string) *models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

// Run executes the contract suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("EnsureIndexIdempotent", func(t *testing.T) { testEnsureIndex(t, newBackend) })
	t.Run("InsertGetRoundTrip", func(t *testing.T) { testRoundTrip(t, newBackend) })
	t.Run("InsertIsUpsert", func(t *testing.T) { testUpsert(t, newBackend) })
	t.Run("UpdateMergePatch", func(t *testing.T) { testUpdate(t, newBackend) })
	t.Run("UpdateNullClears", func(t *testing.T) { testUpdateClears(t, newBackend) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newBackend) })
	t.Run("UnfilteredRecencyAndWindow", func(t *testing.T) { testRecency(t, newBackend) })
	t.Run("LargeWindow", func(t *testing.T) { testLargeWindow(t, newBackend) })
	t.Run("RatingBucket", func(t *testing.T) { testRatingBucket(t, newBackend) })
	t.Run("ReleaseYearBoundary", func(t *testing.T) { testReleaseYear(t, newBackend) })
	t.Run("DirectorExact", func(t *testing.T) { testDirectorExact(t, newBackend) })
	t.Run("SearchWeighted", func(t *testing.T) { testSearch(t, newBackend) })
	t.Run("SearchIgnoresPunctuationTerms", func(t *testing.T) { testSearchPunctuation(t, newBackend) })
	t.Run("ListDistinctDirectors", func(t *testing.T) { testListDistinct(t, newBackend) })
	t.Run("ClosedIsUnavailable", func(t *testing.T) { testClosed(t, newBackend) })
}

func open(t *testing.T, newBackend Factory) (backend.Backend, context.Context) {
	t.Helper()
	b := newBackend(t)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()
	if err := b.EnsureIndex(ctx); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	return b, ctx
}

func insertAll(t *testing.T, ctx context.Context, b backend.Backend, movies ...*models.Movie) {
	t.Helper()
	for _, m := range movies {
		if err := b.Insert(ctx, m); err != nil {
			t.Fatalf("Insert %s: %v", m.ID, err)
		}
	}
}

func ids(movies []*models.Movie) []string {
	out := make([]string, len(movies))
	for i, m := range movies {
		out[i] = m.ID
	}
	return out
}

func query(t *testing.T, ctx context.Context, b backend.Backend, f *models.Filter) *backend.QueryResult {
	t.Helper()
	res, err := b.Query(ctx, f.WithDefaults())
	if err != nil {
		t.Fatalf("Query(%+v): %v", f, err)
	}
	return res
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]int, len(got))
	for _, g := range got {
		seen[g]++
	}
	for _, w := range want {
		if seen[w] == 0 {
			return false
		}
		seen[w]--
	}
	return true
}

func testEnsureIndex(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	insertAll(t, ctx, b, Movie("m1", "Heat", 0))
	if err := b.EnsureIndex(ctx); err != nil {
		t.Fatalf("second EnsureIndex: %v", err)
	}
	if _, err := b.Get(ctx, "m1"); err != nil {
		t.Errorf("data lost after second EnsureIndex: %v", err)
	}
}

func testRoundTrip(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	m := Movie("m1", "Blade Runner", 0)
	m.PosterURL = str("https://img.example.com/br.jpg")
	m.ReleaseDate = date("1982-06-25")
	m.Director = str("Ridley Scott")
	m.Synopsis = str("A blade runner must pursue replicants.")
	m.Review = str("Moody and influential.")
	m.Rating = num(4.75)
	m.UpdatedAt = m.CreatedAt.Add(1500 * time.Millisecond)
	insertAll(t, ctx, b, m)

	got, err := b.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := equalMovies(got, m); err != nil {
		t.Error(err)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func testUpsert(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	first := Movie("m1", "First", 0)
	first.Director = str("A")
	second := Movie("m1", "Second", 0)
	insertAll(t, ctx, b, first, second)

	got, err := b.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Second" || got.Director != nil {
		t.Errorf("second insert should replace the first, got %+v", got)
	}
	if res := query(t, ctx, b, &models.Filter{}); res.TotalCount != 1 {
		t.Errorf("total = %d after double insert, want 1", res.TotalCount)
	}
}

func testUpdate(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	m := Movie("m1", "Alien", 0)
	m.Director = str("Scott")
	m.Rating = num(4.5)
	m.ReleaseDate = date("1979-05-25")
	insertAll(t, ctx, b, m)

	updatedAt := m.CreatedAt.Add(time.Hour)
	if err := b.Update(ctx, "m1", &models.MoviePatch{Director: models.Some("Ridley Scott")}, updatedAt); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := b.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	want := m.Clone()
	want.Director = str("Ridley Scott")
	want.UpdatedAt = updatedAt
	if err := equalMovies(got, want); err != nil {
		t.Error(err)
	}

	// The patched value must be visible to filters too.
	res := query(t, ctx, b, &models.Filter{Director: str("Ridley Scott")})
	if !sameSet(ids(res.Movies), []string{"m1"}) {
		t.Errorf("director filter after update: got %v", ids(res.Movies))
	}

	err = b.Update(ctx, "missing", &models.MoviePatch{Title: models.Some("x")}, updatedAt)
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}
}

func testUpdateClears(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	m := Movie("m1", "Alien", 0)
	m.PosterURL = str("https://img.example.com/alien.jpg")
	m.Director = str("Ridley Scott")
	m.Synopsis = str("A crew meets a stowaway.")
	m.Rating = num(4.5)
	m.ReleaseDate = date("1979-05-25")
	insertAll(t, ctx, b, m)

	updatedAt := m.CreatedAt.Add(time.Hour)
	patch := &models.MoviePatch{
		PosterURL:   models.Null[string](),
		Director:    models.Null[string](),
		Rating:      models.Null[float64](),
		ReleaseDate: models.Null[models.Date](),
		Review:      models.Some("Still scary."),
	}
	if err := b.Update(ctx, "m1", patch, updatedAt); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := b.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	want := m.Clone()
	want.PosterURL, want.Director, want.Rating, want.ReleaseDate = nil, nil, nil, nil
	want.Review = str("Still scary.")
	want.UpdatedAt = updatedAt
	if err := equalMovies(got, want); err != nil {
		t.Error(err)
	}

	tests := []struct {
		name   string
		filter *models.Filter
	}{
		{"director", &models.Filter{Director: str("Ridley Scott")}},
		{"rating", &models.Filter{Rating: intp(5)}},
		{"release year", &models.Filter{ReleaseYear: intp(1979)}},
		{"search on cleared director", &models.Filter{Search: str("ridley")}},
	}
	for _, tt := range tests {
		if res := query(t, ctx, b, tt.filter); res.TotalCount != 0 {
			t.Errorf("%s filter still matches cleared field: %v", tt.name, ids(res.Movies))
		}
	}
	if res := query(t, ctx, b, &models.Filter{Search: str("stowaway")}); !sameSet(ids(res.Movies), []string{"m1"}) {
		t.Errorf("untouched synopsis no longer searchable: %v", ids(res.Movies))
	}
	directors, err := b.ListDistinct(ctx, backend.FieldDirector)
	if err != nil {
		t.Fatal(err)
	}
	if len(directors) != 0 {
		t.Errorf("cleared director still listed: %v", directors)
	}
}

func testDelete(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	insertAll(t, ctx, b, Movie("m1", "Heat", 0))
	for i := 0; i < 2; i++ {
		if err := b.Delete(ctx, "m1"); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
	if _, err := b.Get(ctx, "m1"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := b.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of missing id: %v", err)
	}
}

func testRecency(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	for i := 0; i < 25; i++ {
		insertAll(t, ctx, b, Movie(fmt.Sprintf("m%02d", i), fmt.Sprintf("Movie %d", i), i))
	}
	res := query(t, ctx, b, &models.Filter{Page: 1, Limit: 10})
	if res.TotalCount != 25 {
		t.Fatalf("total = %d, want 25", res.TotalCount)
	}
	want := []string{"m24", "m23", "m22", "m21", "m20", "m19", "m18", "m17", "m16", "m15"}
	if got := ids(res.Movies); !reflect.DeepEqual(got, want) {
		t.Errorf("page 1 = %v, want %v", got, want)
	}
	res = query(t, ctx, b, &models.Filter{Page: 3, Limit: 10})
	want = []string{"m04", "m03", "m02", "m01", "m00"}
	if got := ids(res.Movies); !reflect.DeepEqual(got, want) {
		t.Errorf("page 3 = %v, want %v", got, want)
	}
	if res.TotalCount != 25 {
		t.Errorf("total on last page = %d, want 25", res.TotalCount)
	}
	res = query(t, ctx, b, &models.Filter{Page: 4, Limit: 10})
	if len(res.Movies) != 0 || res.TotalCount != 25 {
		t.Errorf("page past the end: %d movies, total %d", len(res.Movies), res.TotalCount)
	}
}

func testLargeWindow(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	insertAll(t, ctx, b, Movie("m0", "Heat", 0), Movie("m1", "Ronin", 1), Movie("m2", "Thief", 2))
	director := Movie("m3", "Collateral", 3)
	director.Director = str("Michael Mann")
	insertAll(t, ctx, b, director)

	tests := []struct {
		name   string
		filter *models.Filter
		want   []string
		total  int
	}{
		{"max limit first page", &models.Filter{Page: 1, Limit: math.MaxInt}, []string{"m3", "m2", "m1", "m0"}, 4},
		{"max limit second page", &models.Filter{Page: 2, Limit: math.MaxInt}, []string{}, 4},
		{"max limit third page", &models.Filter{Page: 3, Limit: math.MaxInt}, []string{}, 4},
		{"max page", &models.Filter{Page: math.MaxInt, Limit: 10}, []string{}, 4},
		{"max page and limit", &models.Filter{Page: math.MaxInt, Limit: math.MaxInt}, []string{}, 4},
		{"filtered max limit", &models.Filter{Page: 1, Limit: math.MaxInt, Director: str("Michael Mann")}, []string{"m3"}, 1},
		{"filtered past the end", &models.Filter{Page: 2, Limit: math.MaxInt, Director: str("Michael Mann")}, []string{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := query(t, ctx, b, tt.filter)
			if got := ids(res.Movies); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if res.TotalCount != tt.total {
				t.Errorf("total = %d, want %d", res.TotalCount, tt.total)
			}
		})
	}
}

func testRatingBucket(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	ratings := map[string]float64{
		"r100": 1.0, "r200": 2.0, "r225": 2.25, "r300": 3.0,
		"r400": 4.0, "r425": 4.25, "r450": 4.5, "r500": 5.0,
	}
	n := 0
	for id, r := range ratings {
		m := Movie(id, "Rated "+id, n)
		m.Rating = num(r)
		insertAll(t, ctx, b, m)
		n++
	}
	insertAll(t, ctx, b, Movie("unrated", "Unrated", n))

	tests := []struct {
		rating int
		want   []string
	}{
		{1, []string{"r100"}},
		{2, []string{"r200"}},
		{3, []string{"r225", "r300"}},
		{4, []string{"r400"}},
		{5, []string{"r425", "r450", "r500"}},
	}
	for _, tt := range tests {
		res := query(t, ctx, b, &models.Filter{Rating: intp(tt.rating), Limit: 50})
		if got := ids(res.Movies); !sameSet(got, tt.want) {
			t.Errorf("rating=%d: got %v, want %v", tt.rating, got, tt.want)
		}
		if res.TotalCount != len(tt.want) {
			t.Errorf("rating=%d: total %d, want %d", tt.rating, res.TotalCount, len(tt.want))
		}
	}
}

func testReleaseYear(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	dates := map[string]string{
		"d1998":  "1998-12-31",
		"d1999a": "1999-01-01",
		"d1999b": "1999-07-15",
		"d1999c": "1999-12-31",
		"d2000":  "2000-01-01",
	}
	n := 0
	for id, d := range dates {
		m := Movie(id, "Dated "+id, n)
		m.ReleaseDate = date(d)
		insertAll(t, ctx, b, m)
		n++
	}
	insertAll(t, ctx, b, Movie("undated", "Undated", n))

	res := query(t, ctx, b, &models.Filter{ReleaseYear: intp(1999), Limit: 50})
	if got := ids(res.Movies); !sameSet(got, []string{"d1999a", "d1999b", "d1999c"}) {
		t.Errorf("release_year=1999: got %v", got)
	}
	res = query(t, ctx, b, &models.Filter{ReleaseYear: intp(2000)})
	if got := ids(res.Movies); !sameSet(got, []string{"d2000"}) {
		t.Errorf("release_year=2000: got %v", got)
	}
}

func testDirectorExact(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	directors := []string{"Nolan", "Christopher Nolan", "nolan", "Jonathan Nolan"}
	for i, d := range directors {
		m := Movie(fmt.Sprintf("m%d", i), "Film "+d, i)
		m.Director = str(d)
		insertAll(t, ctx, b, m)
	}
	res := query(t, ctx, b, &models.Filter{Director: str("Nolan")})
	if got := ids(res.Movies); !sameSet(got, []string{"m0"}) {
		t.Errorf("director=Nolan: got %v, want [m0]", got)
	}
	res = query(t, ctx, b, &models.Filter{Director: str("Christopher Nolan")})
	if got := ids(res.Movies); !sameSet(got, []string{"m1"}) {
		t.Errorf("director=Christopher Nolan: got %v, want [m1]", got)
	}
	res = query(t, ctx, b, &models.Filter{Director: str("Chris")})
	if res.TotalCount != 0 {
		t.Errorf("partial director name matched %v", ids(res.Movies))
	}
}

func testSearch(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	inTitle := Movie("title", "Space Odyssey", 0)
	inSynopsis := Movie("synopsis", "The Long Trip", 1)
	inSynopsis.Synopsis = str("A crew drifts through space for years.")
	inDirector := Movie("director", "Unrelated", 2)
	inDirector.Director = str("Stanley Kubrick")
	none := Movie("none", "Heat", 3)
	none.Synopsis = str("Cops and robbers in Los Angeles.")
	insertAll(t, ctx, b, inTitle, inSynopsis, inDirector, none)

	res := query(t, ctx, b, &models.Filter{Search: str("space")})
	got := ids(res.Movies)
	if !sameSet(got, []string{"title", "synopsis"}) {
		t.Fatalf("search=space: got %v, want title and synopsis hits", got)
	}
	if got[0] != "title" {
		t.Errorf("title match should outrank synopsis match, got %v", got)
	}

	res = query(t, ctx, b, &models.Filter{Search: str("robbers")})
	if got := ids(res.Movies); !sameSet(got, []string{"none"}) {
		t.Errorf("search=robbers: got %v", got)
	}

	res = query(t, ctx, b, &models.Filter{Search: str("space crew")})
	if got := ids(res.Movies); !sameSet(got, []string{"synopsis"}) {
		t.Errorf("every term must match: got %v", got)
	}

	res = query(t, ctx, b, &models.Filter{Search: str("kubrick")})
	if got := ids(res.Movies); !sameSet(got, []string{"director"}) {
		t.Errorf("search on director: got %v", got)
	}

	inTitle.Rating = num(2)
	inSynopsis.Rating = num(5)
	insertAll(t, ctx, b, inTitle, inSynopsis)
	res = query(t, ctx, b, &models.Filter{Search: str("space"), Rating: intp(5)})
	if got := ids(res.Movies); !sameSet(got, []string{"synopsis"}) {
		t.Errorf("search combined with rating: got %v", got)
	}
}

func testSearchPunctuation(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	space := Movie("space", "Space Odyssey", 0)
	dash := Movie("dash", "Heat", 1)
	dash.Synopsis = str("Cops - robbers.")
	insertAll(t, ctx, b, space, dash)

	tests := []struct {
		search string
		want   []string
	}{
		{"space -", []string{"space"}},
		{"- space ...", []string{"space"}},
		{"robbers !", []string{"dash"}},
		{"-", []string{"dash", "space"}},
		{"- ... ?!", []string{"dash", "space"}},
	}
	for _, tt := range tests {
		res := query(t, ctx, b, &models.Filter{Search: str(tt.search)})
		if got := ids(res.Movies); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("search=%q: got %v, want %v", tt.search, got, tt.want)
		}
	}
}

func testListDistinct(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	for i, d := range []string{"Villeneuve", "Bigelow", "Villeneuve", "Anderson", ""} {
		m := Movie(fmt.Sprintf("m%d", i), "Film", i)
		if d != "" {
			m.Director = str(d)
		}
		insertAll(t, ctx, b, m)
	}
	got, err := b.ListDistinct(ctx, backend.FieldDirector)
	if err != nil {
		t.Fatalf("ListDistinct: %v", err)
	}
	want := []string{"Anderson", "Bigelow", "Villeneuve"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListDistinct = %v, want %v", got, want)
	}

	if err := b.Delete(ctx, "m3"); err != nil {
		t.Fatal(err)
	}
	got, err = b.ListDistinct(ctx, backend.FieldDirector)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Bigelow", "Villeneuve"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListDistinct after delete = %v, want %v", got, want)
	}

	if _, err := b.ListDistinct(ctx, "title"); !errors.Is(err, backend.ErrConfiguration) {
		t.Errorf("ListDistinct(title): got %v, want ErrConfiguration", err)
	}
}

func testClosed(t *testing.T, newBackend Factory) {
	b, ctx := open(t, newBackend)
	insertAll(t, ctx, b, Movie("m1", "Heat", 0))
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Insert(ctx, Movie("m2", "Ronin", 1)); !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Errorf("Insert on closed backend: got %v, want ErrBackendUnavailable", err)
	}
	if _, err := b.Get(ctx, "m1"); !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Errorf("Get on closed backend: got %v, want ErrBackendUnavailable", err)
	}
}

func equalMovies(got, want *models.Movie) error {
	if got.ID != want.ID || got.Title != want.Title {
		return fmt.Errorf("id/title: got %s/%q, want %s/%q", got.ID, got.Title, want.ID, want.Title)
	}
	if !reflect.DeepEqual(got.PosterURL, want.PosterURL) || !reflect.DeepEqual(got.Director, want.Director) ||
		!reflect.DeepEqual(got.Synopsis, want.Synopsis) || !reflect.DeepEqual(got.Review, want.Review) ||
		!reflect.DeepEqual(got.Rating, want.Rating) {
		return fmt.Errorf("optional fields: got %+v, want %+v", got, want)
	}
	if (got.ReleaseDate == nil) != (want.ReleaseDate == nil) ||
		(got.ReleaseDate != nil && got.ReleaseDate.String() != want.ReleaseDate.String()) {
		return fmt.Errorf("release_date: got %v, want %v", got.ReleaseDate, want.ReleaseDate)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		return fmt.Errorf("timestamps: got %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
	return nil
}
