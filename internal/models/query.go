package models

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

const (
	DefaultPage    = 1
	DefaultLimit   = 10
	MinReleaseYear = 1900
	MaxReleaseYear = 9999
	MinRatingStars = 1
	MaxRatingStars = 5
)

// Filter is the canonical read query. Nil fields are absent.
// Rating selects the star bucket (Rating-1, Rating].
type Filter struct {
	Page        int     `json:"page"`
	Limit       int     `json:"limit"`
	ReleaseYear *int    `json:"release_year,omitempty"`
	Rating      *int    `json:"rating,omitempty"`
	Director    *string `json:"director,omitempty"`
	Search      *string `json:"search,omitempty"`
}

// WithDefaults returns a copy of f with page and limit defaulted and blank
// director/search values dropped. A search with no usable term counts as blank.
func (f *Filter) WithDefaults() *Filter {
	out := &Filter{Page: DefaultPage, Limit: DefaultLimit}
	if f == nil {
		return out
	}
	*out = *f
	if out.Page < 1 {
		out.Page = DefaultPage
	}
	if out.Limit < 1 {
		out.Limit = DefaultLimit
	}
	if out.Director != nil && *out.Director == "" {
		out.Director = nil
	}
	if out.Search != nil && len(SearchTerms(*out.Search)) == 0 {
		out.Search = nil
	}
	return out
}

// Validate checks ranges. Call it before WithDefaults: a zero page or limit
// means the default, a negative one is rejected.
func (f *Filter) Validate() error {
	if f.Page < 0 {
		return fmt.Errorf("%w: page cannot be negative", ErrInvalid)
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: limit cannot be negative", ErrInvalid)
	}
	if f.ReleaseYear != nil && (*f.ReleaseYear < MinReleaseYear || *f.ReleaseYear > MaxReleaseYear) {
		return fmt.Errorf("%w: release_year must be between %d and %d", ErrInvalid, MinReleaseYear, MaxReleaseYear)
	}
	if f.Rating != nil && (*f.Rating < MinRatingStars || *f.Rating > MaxRatingStars) {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalid, MinRatingStars, MaxRatingStars)
	}
	return nil
}

// IsEmpty reports whether no filter of any kind is set. Page and limit do not count.
// Backends sort by recency exactly when this is true.
func (f *Filter) IsEmpty() bool {
	return f.ReleaseYear == nil && f.Rating == nil && f.Director == nil && f.Search == nil
}

// Offset is the 0-based index of the first record of the page.
// It saturates at math.MaxInt, which every backend treats as past the end.
func (f *Filter) Offset() int {
	if f.Page <= 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// SearchTerms splits text on whitespace and drops terms without a letter or digit,
// which no engine can match consistently.
func SearchTerms(text string) []string {
	fields := strings.Fields(text)
	terms := fields[:0]
	for _, field := range fields {
		if strings.IndexFunc(field, isWordRune) >= 0 {
			terms = append(terms, field)
		}
	}
	return terms
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RatingBounds returns the open-low, closed-high interval matched by the rating filter.
func (f *Filter) RatingBounds() (lowExclusive, highInclusive float64) {
	r := float64(*f.Rating)
	return r - 1, r
}

// YearBounds returns the first and last day of the release year filter.
func (f *Filter) YearBounds() (first, last Date) {
	y := *f.ReleaseYear
	return NewDate(y, 1, 1), NewDate(y, 12, 31)
}
