// Package pagination derives page navigation from a page window and a total match count.
package pagination

import (
	"github.com/hyperjump/filmdex/internal/backend"
	"github.com/hyperjump/filmdex/internal/models"
)

// Meta is the navigation derived for one page.
type Meta struct {
	PageCount int
	NextPage  *int
	PrevPage  *int
}

// Normalize computes the page count and neighbors of page.
// A page past the last one has no previous page either.
func Normalize(page, limit, total int) Meta {
	var m Meta
	if limit < 1 {
		return m
	}
	m.PageCount = total / limit
	if total%limit != 0 {
		m.PageCount++
	}
	if page < m.PageCount {
		next := page + 1
		m.NextPage = &next
	}
	if page > 1 && page <= m.PageCount {
		prev := page - 1
		m.PrevPage = &prev
	}
	return m
}

// Paginate wraps a backend page in the paginated result for f.
func Paginate(f *models.Filter, res *backend.QueryResult) *models.PaginatedResult {
	f = f.WithDefaults()
	meta := Normalize(f.Page, f.Limit, res.TotalCount)
	data := res.Movies
	if data == nil {
		data = []*models.Movie{}
	}
	return &models.PaginatedResult{
		Page:       f.Page,
		Limit:      f.Limit,
		TotalCount: res.TotalCount,
		PageCount:  meta.PageCount,
		NextPage:   meta.NextPage,
		PrevPage:   meta.PrevPage,
		Data:       data,
	}
}
