// Package storage provides the relational backend: the movie catalog kept in a SQL table
// (SQLite or PostgreSQL) and searched with weighted substring matching.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/models"
)

var errClosed = errors.New("database closed")

// movieColumns lists the table columns in scan order.
var movieColumns = []string{
	"id", "title", "poster_url", "release_date", "director",
	"synopsis", "rating", "review", "created_at", "updated_at",
}

// searchColumns are matched by the free-text search, with their weights.
var searchColumns = []struct {
	name   string
	weight float64
}{
	{"title", backend.TitleWeight},
	{"synopsis", backend.SynopsisWeight},
	{"review", backend.ReviewWeight},
	{"director", backend.DirectorWeight},
}

// dialect captures what differs between the supported SQL engines.
type dialect interface {
	name() string
	open() (*sql.DB, error)
	placeholder(n int) string
	// likeOperator is a case-insensitive LIKE.
	likeOperator() string
	createTable() string
	columns(ctx context.Context, db *sql.DB) (map[string]bool, error)
	// classify maps a driver error to a backend error kind.
	classify(err error) error
}

// SQLStorage implements backend.Backend on a SQL table.
type SQLStorage struct {
	dialect dialect
	logger  *zap.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Option configures a SQLStorage.
type Option func(*SQLStorage)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLStorage) { s.logger = l }
}

func newSQLStorage(d dialect, opts ...Option) *SQLStorage {
	s := &SQLStorage{dialect: d, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements backend.Backend.
func (s *SQLStorage) Name() string { return s.dialect.name() }

// handle opens the database once. Failed opens are retried on the next call.
func (s *SQLStorage) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if s.db != nil {
		return s.db, nil
	}
	db, err := s.dialect.open()
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

func (s *SQLStorage) fail(op string, err error) error {
	if errors.Is(err, errClosed) {
		return backend.Wrap(s.Name(), op, backend.ErrBackendUnavailable, err)
	}
	return backend.Wrap(s.Name(), op, s.dialect.classify(err), err)
}

// EnsureIndex creates the movies table if absent and checks that an existing table
// carries every column.
func (s *SQLStorage) EnsureIndex(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return s.fail("ensure_index", err)
	}
	if _, err := db.ExecContext(ctx, s.dialect.createTable()); err != nil {
		return s.fail("ensure_index", err)
	}
	have, err := s.dialect.columns(ctx, db)
	if err != nil {
		return s.fail("ensure_index", err)
	}
	var missing []string
	for _, c := range movieColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return backend.Wrap(s.Name(), "ensure_index", backend.ErrSchemaConflict,
			fmt.Errorf("movies table lacks columns %s", strings.Join(missing, ", ")))
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_movies_created_at ON movies(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_director ON movies(director)`,
		`CREATE INDEX IF NOT EXISTS idx_movies_release_date ON movies(release_date)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return s.fail("ensure_index", err)
		}
	}
	s.logger.Debug("movies table ready", zap.String("backend", s.Name()))
	return nil
}

// Insert upserts m.
func (s *SQLStorage) Insert(ctx context.Context, m *models.Movie) error {
	db, err := s.handle()
	if err != nil {
		return s.fail("insert", err)
	}
	b := newBinder(s.dialect)
	values := make([]string, len(movieColumns))
	for i, v := range rowValues(m) {
		values[i] = b.bind(v)
	}
	updates := make([]string, 0, len(movieColumns)-1)
	for _, c := range movieColumns[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	stmt := fmt.Sprintf(`INSERT INTO movies (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
		strings.Join(movieColumns, ", "), strings.Join(values, ", "), strings.Join(updates, ", "))
	if _, err := db.ExecContext(ctx, stmt, b.args...); err != nil {
		return s.fail("insert", err)
	}
	return nil
}

// Update sets only the supplied columns plus updated_at. A null field sets its column to NULL.
func (s *SQLStorage) Update(ctx context.Context, id string, patch *models.MoviePatch, updatedAt time.Time) error {
	db, err := s.handle()
	if err != nil {
		return s.fail("update", err)
	}
	b := newBinder(s.dialect)
	var sets []string
	set := func(column string, v interface{}) {
		sets = append(sets, column+" = "+b.bind(v))
	}
	if patch.Title.Set {
		set("title", patch.Title.Value)
	}
	if patch.PosterURL.Set {
		set("poster_url", nullable(patch.PosterURL.Ptr()))
	}
	if patch.ReleaseDate.Set {
		set("release_date", dateValue(patch.ReleaseDate.Ptr()))
	}
	if patch.Director.Set {
		set("director", nullable(patch.Director.Ptr()))
	}
	if patch.Synopsis.Set {
		set("synopsis", nullable(patch.Synopsis.Ptr()))
	}
	if patch.Rating.Set {
		set("rating", ratingValue(patch.Rating.Ptr()))
	}
	if patch.Review.Set {
		set("review", nullable(patch.Review.Ptr()))
	}
	set("updated_at", updatedAt.UnixMilli())
	stmt := fmt.Sprintf(`UPDATE movies SET %s WHERE id = %s`, strings.Join(sets, ", "), b.bind(id))
	result, err := db.ExecContext(ctx, stmt, b.args...)
	if err != nil {
		return s.fail("update", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return s.fail("update", err)
	}
	if n == 0 {
		return backend.Wrap(s.Name(), "update", backend.ErrNotFound, fmt.Errorf("movie %s", id))
	}
	return nil
}

// Get returns the row for id.
func (s *SQLStorage) Get(ctx context.Context, id string) (*models.Movie, error) {
	db, err := s.handle()
	if err != nil {
		return nil, s.fail("get", err)
	}
	b := newBinder(s.dialect)
	stmt := fmt.Sprintf(`SELECT %s FROM movies WHERE id = %s`, strings.Join(movieColumns, ", "), b.bind(id))
	m, err := scanMovie(db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.Wrap(s.Name(), "get", backend.ErrNotFound, fmt.Errorf("movie %s", id))
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	return m, nil
}

// Query returns one page of matches and the total count.
func (s *SQLStorage) Query(ctx context.Context, f *models.Filter) (*backend.QueryResult, error) {
	db, err := s.handle()
	if err != nil {
		return nil, s.fail("query", err)
	}
	f = f.WithDefaults()
	b := newBinder(s.dialect)
	where, score := s.buildWhere(b, f)

	var total int
	countStmt := `SELECT COUNT(*) FROM movies` + where
	if err := db.QueryRowContext(ctx, countStmt, b.args...).Scan(&total); err != nil {
		return nil, s.fail("query", err)
	}

	var order string
	switch {
	case score != "":
		order = ` ORDER BY ` + score + ` DESC, id`
	case f.IsEmpty():
		order = ` ORDER BY created_at DESC, id`
	default:
		order = ` ORDER BY id`
	}
	limit := b.bind(f.Limit)
	offset := b.bind(f.Offset())
	stmt := fmt.Sprintf(`SELECT %s FROM movies%s%s LIMIT %s OFFSET %s`,
		strings.Join(movieColumns, ", "), where, order, limit, offset)
	rows, err := db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, s.fail("query", err)
	}
	defer rows.Close()

	out := &backend.QueryResult{Movies: []*models.Movie{}, TotalCount: total}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, s.fail("query", err)
		}
		out.Movies = append(out.Movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("query", err)
	}
	return out, nil
}

// buildWhere returns the WHERE clause for f and, for searches, the score expression.
// Every search term must match at least one search column.
func (s *SQLStorage) buildWhere(b *binder, f *models.Filter) (where, score string) {
	var conds, scores []string
	if f.Search != nil {
		like := s.dialect.likeOperator()
		for _, term := range models.SearchTerms(*f.Search) {
			var matches, weighted []string
			for _, c := range searchColumns {
				p := b.bind("%" + escapeLike(term) + "%")
				matches = append(matches, fmt.Sprintf(`%s %s %s ESCAPE '\'`, c.name, like, p))
				weighted = append(weighted, fmt.Sprintf(`CASE WHEN %s %s %s ESCAPE '\' THEN %g ELSE 0 END`,
					c.name, like, p, c.weight))
			}
			conds = append(conds, "("+strings.Join(matches, " OR ")+")")
			scores = append(scores, strings.Join(weighted, " + "))
		}
	}
	if f.Rating != nil {
		low, high := f.RatingBounds()
		conds = append(conds, fmt.Sprintf(`rating > %s AND rating <= %s`, b.bind(low), b.bind(high)))
	}
	if f.ReleaseYear != nil {
		first, last := f.YearBounds()
		conds = append(conds, fmt.Sprintf(`release_date >= %s AND release_date <= %s`,
			b.bind(first.UnixMilli()), b.bind(last.UnixMilli())))
	}
	if f.Director != nil {
		conds = append(conds, `director = `+b.bind(*f.Director))
	}
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}
	if len(scores) > 0 {
		score = "(" + strings.Join(scores, " + ") + ")"
	}
	return where, score
}

// Delete removes the row. A missing id is not an error.
func (s *SQLStorage) Delete(ctx context.Context, id string) error {
	db, err := s.handle()
	if err != nil {
		return s.fail("delete", err)
	}
	b := newBinder(s.dialect)
	if _, err := db.ExecContext(ctx, `DELETE FROM movies WHERE id = `+b.bind(id), b.args...); err != nil {
		return s.fail("delete", err)
	}
	return nil
}

// ListDistinct returns the distinct non-empty directors in byte order.
func (s *SQLStorage) ListDistinct(ctx context.Context, field string) ([]string, error) {
	if field != backend.FieldDirector {
		return nil, backend.Wrap(s.Name(), "list_distinct", backend.ErrConfiguration,
			fmt.Errorf("field %q is not listable", field))
	}
	db, err := s.handle()
	if err != nil {
		return nil, s.fail("list_distinct", err)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT director FROM movies WHERE director IS NOT NULL AND director <> '' ORDER BY director`)
	if err != nil {
		return nil, s.fail("list_distinct", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, s.fail("list_distinct", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_distinct", err)
	}
	// PostgreSQL orders by locale collation.
	sort.Strings(out)
	return out, nil
}

// Close closes the database. Later calls fail as unavailable.
func (s *SQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// binder accumulates query arguments and renders dialect placeholders.
type binder struct {
	dialect dialect
	args    []interface{}
}

func newBinder(d dialect) *binder {
	return &binder{dialect: d}
}

func (b *binder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func rowValues(m *models.Movie) []interface{} {
	return []interface{}{
		m.ID, m.Title, nullable(m.PosterURL), dateValue(m.ReleaseDate), nullable(m.Director),
		nullable(m.Synopsis), ratingValue(m.Rating), nullable(m.Review), m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(),
	}
}

func dateValue(d *models.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.UnixMilli()
}

func ratingValue(r *float64) interface{} {
	if r == nil {
		return nil
	}
	return *r
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMovie(row scanner) (*models.Movie, error) {
	var (
		m                    models.Movie
		posterURL, director  sql.NullString
		synopsis, review     sql.NullString
		releaseDate          sql.NullInt64
		rating               sql.NullFloat64
		createdAt, updatedAt int64
	)
	err := row.Scan(&m.ID, &m.Title, &posterURL, &releaseDate, &director,
		&synopsis, &rating, &review, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.PosterURL = stringPtr(posterURL)
	m.Director = stringPtr(director)
	m.Synopsis = stringPtr(synopsis)
	m.Review = stringPtr(review)
	if releaseDate.Valid {
		d := models.DateOf(time.UnixMilli(releaseDate.Int64))
		m.ReleaseDate = &d
	}
	if rating.Valid {
		r := rating.Float64
		m.Rating = &r
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &m, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
