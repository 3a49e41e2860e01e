// Package keyword provides the Bleve inverted-index backend.
package keyword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/models"
	"go.uber.org/zap"
)

// Name is the backend name used in configuration.
const Name = "bleve"

const (
	fieldTitle         = "title"
	fieldSynopsis      = "synopsis"
	fieldReview        = "review"
	fieldDirector      = "director"
	fieldDirectorExact = "director_exact"
	fieldReleaseDate   = "release_date"
	fieldRating        = "rating"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldSource        = "source_json"

	schemaKey     = "filmdex:schema"
	schemaVersion = "movies/v2"

	textAnalyzer = "movie_text"

	distinctBatch = 1000
)

var errClosed = errors.New("index closed")

// BleveIndex implements backend.Backend on a Bleve index.
// Bleve returns stored fields rather than documents, so the canonical record is kept
// as stored JSON next to the indexed fields.
type BleveIndex struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	index  bleve.Index
	closed bool

	// writeMu serializes writes so an upsert never lands inside an update's read-modify-write.
	writeMu sync.Mutex
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// NewBleveIndex returns a backend for the index at path. The index is opened (or created)
// on first use. An empty path keeps the index in memory.
func NewBleveIndex(path string, opts ...Option) *BleveIndex {
	b := &BleveIndex{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements backend.Backend.
func (b *BleveIndex) Name() string { return Name }

// handle opens the index once. Failed opens are retried on the next call.
func (b *BleveIndex) handle() (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	if b.index != nil {
		return b.index, nil
	}
	index, err := openOrCreate(b.path)
	if err != nil {
		return nil, err
	}
	b.index = index
	return index, nil
}

// openOrCreate reuses an existing index at path so restarts keep their data.
// A freshly created index is stamped with the current schema version.
func openOrCreate(path string) (bleve.Index, error) {
	var index bleve.Index
	im, err := buildMapping()
	if err != nil {
		return nil, err
	}
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(im)
	default:
		if _, statErr := os.Stat(path); statErr == nil {
			index, err = bleve.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open Bleve index: %w", err)
			}
			return index, nil
		}
		if dir := filepath.Dir(path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("failed to create index directory: %w", mkErr)
			}
		}
		index, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	if err := index.SetInternal([]byte(schemaKey), []byte(schemaVersion)); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return index, nil
}

func buildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	// Lowercase and tokenize only. Stop words stay indexed so every search term can match.
	if err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = textAnalyzer
	textFieldMapping.Store = false
	for _, f := range []string{fieldTitle, fieldSynopsis, fieldReview, fieldDirector} {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}

	exactFieldMapping := bleve.NewKeywordFieldMapping()
	exactFieldMapping.Store = true
	exactFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldDirectorExact, exactFieldMapping)

	dateFieldMapping := bleve.NewDateTimeFieldMapping()
	dateFieldMapping.Store = false
	dateFieldMapping.IncludeInAll = false
	for _, f := range []string{fieldReleaseDate, fieldCreatedAt, fieldUpdatedAt} {
		docMapping.AddFieldMappingsAt(f, dateFieldMapping)
	}

	ratingFieldMapping := bleve.NewNumericFieldMapping()
	ratingFieldMapping.Store = false
	ratingFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldRating, ratingFieldMapping)

	sourceFieldMapping := bleve.NewTextFieldMapping()
	sourceFieldMapping.Index = false
	sourceFieldMapping.Store = true
	sourceFieldMapping.IncludeInAll = false
	sourceFieldMapping.IncludeTermVectors = false
	sourceFieldMapping.DocValues = false
	docMapping.AddFieldMappingsAt(fieldSource, sourceFieldMapping)

	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = textAnalyzer
	return im, nil
}

// EnsureIndex opens or creates the index and checks its schema version.
func (b *BleveIndex) EnsureIndex(ctx context.Context) error {
	index, err := b.handle()
	if err != nil {
		return backend.Wrap(Name, "ensure_index", backend.ErrBackendUnavailable, err)
	}
	version, err := index.GetInternal([]byte(schemaKey))
	if err != nil {
		return backend.Wrap(Name, "ensure_index", backend.ErrBackendUnavailable, err)
	}
	if string(version) != schemaVersion {
		return backend.Wrap(Name, "ensure_index", backend.ErrSchemaConflict,
			fmt.Errorf("index schema %q, want %q", version, schemaVersion))
	}
	b.logger.Debug("bleve index ready", zap.String("path", b.path))
	return nil
}

// Insert indexes m under its ID, replacing any previous document.
func (b *BleveIndex) Insert(ctx context.Context, m *models.Movie) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.put("insert", m)
}

func (b *BleveIndex) put(op string, m *models.Movie) error {
	doc, err := toDocument(m)
	if err != nil {
		return backend.Wrap(Name, op, backend.ErrWriteRejected, err)
	}
	index, err := b.handle()
	if err != nil {
		return backend.Wrap(Name, op, backend.ErrBackendUnavailable, err)
	}
	if err := index.Index(m.ID, doc); err != nil {
		return backend.Wrap(Name, op, backend.ErrBackendUnavailable, err)
	}
	b.logger.Debug("bleve document indexed", zap.String("op", op), zap.String("id", m.ID))
	return nil
}

// Update loads the stored record, merges patch and re-indexes it.
func (b *BleveIndex) Update(ctx context.Context, id string, patch *models.MoviePatch, updatedAt time.Time) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	m, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(m, updatedAt)
	return b.put("update", m)
}

// Get returns the stored record for id.
func (b *BleveIndex) Get(ctx context.Context, id string) (*models.Movie, error) {
	index, err := b.handle()
	if err != nil {
		return nil, backend.Wrap(Name, "get", backend.ErrBackendUnavailable, err)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{fieldSource}
	res, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, backend.Wrap(Name, "get", backend.ErrBackendUnavailable, err)
	}
	if len(res.Hits) == 0 {
		return nil, backend.Wrap(Name, "get", backend.ErrNotFound, fmt.Errorf("movie %s", id))
	}
	m, err := fromFields(res.Hits[0].Fields)
	if err != nil {
		return nil, backend.Wrap(Name, "get", backend.ErrBackendUnavailable, err)
	}
	return m, nil
}

// Query translates f into a Bleve query and returns the requested page.
func (b *BleveIndex) Query(ctx context.Context, f *models.Filter) (*backend.QueryResult, error) {
	index, err := b.handle()
	if err != nil {
		return nil, backend.Wrap(Name, "query", backend.ErrBackendUnavailable, err)
	}
	f = f.WithDefaults()
	count, err := index.DocCount()
	if err != nil {
		return nil, backend.Wrap(Name, "query", backend.ErrBackendUnavailable, err)
	}
	size, from := window(f, count)
	q, order := buildQuery(f)
	req := bleve.NewSearchRequestOptions(q, size, from, false)
	req.Fields = []string{fieldSource}
	req.SortBy(order)
	res, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, backend.Wrap(Name, "query", backend.ErrBackendUnavailable, err)
	}
	out := &backend.QueryResult{
		Movies:     make([]*models.Movie, 0, len(res.Hits)),
		TotalCount: int(res.Total),
	}
	for _, hit := range res.Hits {
		m, err := fromFields(hit.Fields)
		if err != nil {
			return nil, backend.Wrap(Name, "query", backend.ErrBackendUnavailable, err)
		}
		out.Movies = append(out.Movies, m)
	}
	return out, nil
}

// window bounds the page size and offset of f by the document count. Bleve sizes its
// collector by size+from, which must not overflow. A page past the end keeps size 0 so
// the search still reports the total.
func window(f *models.Filter, count uint64) (size, from int) {
	n := math.MaxInt / 2
	if count < uint64(n) {
		n = int(count)
	}
	size, from = f.Limit, f.Offset()
	if from >= n {
		return 0, n
	}
	if size > n {
		size = n
	}
	return size, from
}

// buildQuery returns the Bleve query for f and its sort order: relevance for searches,
// newest first when unfiltered, id otherwise. Ties always break on id.
// Every filter is a required clause; the free-text search is a boosted disjunction over
// the searchable fields so relevance scoring is left to Bleve.
func buildQuery(f *models.Filter) (blevequery.Query, []string) {
	var musts []blevequery.Query
	if f.Search != nil {
		musts = append(musts, searchQuery(*f.Search))
	}
	if f.Rating != nil {
		low, high := f.RatingBounds()
		lowInclusive, highInclusive := false, true
		rq := bleve.NewNumericRangeInclusiveQuery(&low, &high, &lowInclusive, &highInclusive)
		rq.SetField(fieldRating)
		musts = append(musts, rq)
	}
	if f.ReleaseYear != nil {
		first, last := f.YearBounds()
		// Dates are indexed at UTC midnight; the exclusive next-day bound keeps the last day.
		end := last.AddDate(0, 0, 1)
		startInclusive, endInclusive := true, false
		dq := bleve.NewDateRangeInclusiveQuery(first.Time, end, &startInclusive, &endInclusive)
		dq.SetField(fieldReleaseDate)
		musts = append(musts, dq)
	}
	if f.Director != nil {
		tq := bleve.NewTermQuery(*f.Director)
		tq.SetField(fieldDirectorExact)
		musts = append(musts, tq)
	}
	switch {
	case len(musts) == 0:
		return bleve.NewMatchAllQuery(), []string{"-" + fieldCreatedAt, "_id"}
	case f.Search != nil:
		return bleve.NewConjunctionQuery(musts...), []string{"-_score", "_id"}
	default:
		return bleve.NewConjunctionQuery(musts...), []string{"_id"}
	}
}

// searchQuery requires every search term to match at least one searchable field.
func searchQuery(text string) blevequery.Query {
	terms := models.SearchTerms(text)
	if len(terms) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	perTerm := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		perTerm = append(perTerm, termQuery(term))
	}
	if len(perTerm) == 1 {
		return perTerm[0]
	}
	return bleve.NewConjunctionQuery(perTerm...)
}

func termQuery(term string) blevequery.Query {
	fields := []struct {
		name  string
		boost float64
	}{
		{fieldTitle, backend.TitleWeight},
		{fieldSynopsis, backend.SynopsisWeight},
		{fieldReview, backend.ReviewWeight},
		{fieldDirector, backend.DirectorWeight},
	}
	queries := make([]blevequery.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(term)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		queries = append(queries, mq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes the document. Bleve treats a missing id as a no-op.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	index, err := b.handle()
	if err != nil {
		return backend.Wrap(Name, "delete", backend.ErrBackendUnavailable, err)
	}
	if err := index.Delete(id); err != nil {
		return backend.Wrap(Name, "delete", backend.ErrBackendUnavailable, err)
	}
	return nil
}

// ListDistinct walks the stored exact-director values of every document.
func (b *BleveIndex) ListDistinct(ctx context.Context, field string) ([]string, error) {
	if field != backend.FieldDirector {
		return nil, backend.Wrap(Name, "list_distinct", backend.ErrConfiguration,
			fmt.Errorf("field %q is not listable", field))
	}
	index, err := b.handle()
	if err != nil {
		return nil, backend.Wrap(Name, "list_distinct", backend.ErrBackendUnavailable, err)
	}
	seen := make(map[string]struct{})
	for from := 0; ; from += distinctBatch {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), distinctBatch, from, false)
		req.Fields = []string{fieldDirectorExact}
		req.SortBy([]string{"_id"})
		res, err := index.SearchInContext(ctx, req)
		if err != nil {
			return nil, backend.Wrap(Name, "list_distinct", backend.ErrBackendUnavailable, err)
		}
		for _, hit := range res.Hits {
			if v, ok := hit.Fields[fieldDirectorExact].(string); ok && v != "" {
				seen[v] = struct{}{}
			}
		}
		if len(res.Hits) < distinctBatch {
			break
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Close closes the index. Later calls fail as unavailable.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	index, err := b.handle()
	if err != nil {
		return 0, backend.Wrap(Name, "doc_count", backend.ErrBackendUnavailable, err)
	}
	return index.DocCount()
}

func toDocument(m *models.Movie) (map[string]interface{}, error) {
	src, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal movie: %w", err)
	}
	doc := map[string]interface{}{
		fieldTitle:     m.Title,
		fieldCreatedAt: m.CreatedAt,
		fieldUpdatedAt: m.UpdatedAt,
		fieldSource:    string(src),
	}
	if m.Director != nil {
		doc[fieldDirector] = *m.Director
		doc[fieldDirectorExact] = *m.Director
	}
	if m.Synopsis != nil {
		doc[fieldSynopsis] = *m.Synopsis
	}
	if m.Review != nil {
		doc[fieldReview] = *m.Review
	}
	if m.ReleaseDate != nil {
		doc[fieldReleaseDate] = m.ReleaseDate.Time
	}
	if m.Rating != nil {
		doc[fieldRating] = *m.Rating
	}
	return doc, nil
}

func fromFields(fields map[string]interface{}) (*models.Movie, error) {
	src, ok := fields[fieldSource].(string)
	if !ok {
		return nil, fmt.Errorf("stored document has no %s field", fieldSource)
	}
	var m models.Movie
	if err := json.Unmarshal([]byte(src), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored movie: %w", err)
	}
	return &m, nil
}
