// Package backend defines the capability contract every search backend implements
// and the error taxonomy shared by adapters, the write coordinator and the read router.
package backend

import (
	"context"
	"time"

	"github.com/hyperjump/filmdex/internal/models"
)

// FieldDirector is the only field ListDistinct supports.
const FieldDirector = "director"

// Search field weights applied by every adapter to the free-text query.
const (
	TitleWeight    = 3.0
	SynopsisWeight = 2.0
	ReviewWeight   = 1.0
	DirectorWeight = 1.0
)

// Backend translates canonical operations into one search engine's native protocol.
type Backend interface {
	// Name identifies the backend in configuration, logs and metrics.
	Name() string
	// EnsureIndex creates the index and its schema if absent. Safe to call repeatedly.
	EnsureIndex(ctx context.Context) error
	// Insert writes m as a new document, overwriting any document with the same ID.
	Insert(ctx context.Context, m *models.Movie) error
	// Update merges the supplied fields of patch into the document id.
	Update(ctx context.Context, id string, patch *models.MoviePatch, updatedAt time.Time) error
	Get(ctx context.Context, id string) (*models.Movie, error)
	// Query returns one page of matches and the total match count.
	Query(ctx context.Context, f *models.Filter) (*QueryResult, error)
	// Delete removes the document. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// ListDistinct returns the distinct values of field in ascending order.
	ListDistinct(ctx context.Context, field string) ([]string, error)
	Close() error
}

// QueryResult is one page of matches.
type QueryResult struct {
	Movies     []*models.Movie
	TotalCount int
}
