// Package models defines the canonical movie record, the read filter and paginated results
// shared by every backend and caller.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalid is returned by Validate for client input that breaks a field rule.
var ErrInvalid = errors.New("invalid movie")

const (
	// MaxTextLength is the maximum length (in characters) of synopsis and review.
	MaxTextLength = 1000
	MinRating     = 1.0
	MaxRating     = 5.0
	// RatingStep is the quantization of ratings.
	RatingStep = 0.25
)

// DateLayout is the wire and storage layout of a calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, always held at UTC midnight.
type Date struct {
	time.Time
}

// NewDate returns the date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: release_date %q is not a YYYY-MM-DD date", ErrInvalid, s)
	}
	return Date{t}, nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" and, for tolerance, a full RFC3339 timestamp.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: release_date must be a string", ErrInvalid)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Movie is the canonical persisted record.
type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PosterURL   *string   `json:"poster_url"`
	ReleaseDate *Date     `json:"release_date"`
	Director    *string   `json:"director"`
	Synopsis    *string   `json:"synopsis"`
	Rating      *float64  `json:"rating"`
	Review      *string   `json:"review"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of m.
func (m *Movie) Clone() *Movie {
	if m == nil {
		return nil
	}
	c := *m
	c.PosterURL = cloneString(m.PosterURL)
	c.Director = cloneString(m.Director)
	c.Synopsis = cloneString(m.Synopsis)
	c.Review = cloneString(m.Review)
	if m.ReleaseDate != nil {
		d := *m.ReleaseDate
		c.ReleaseDate = &d
	}
	if m.Rating != nil {
		r := *m.Rating
		c.Rating = &r
	}
	return &c
}

// MovieInput holds the client-supplied fields of a new movie.
type MovieInput struct {
	Title       string   `json:"title"`
	PosterURL   *string  `json:"poster_url,omitempty"`
	ReleaseDate *Date    `json:"release_date,omitempty"`
	Director    *string  `json:"director,omitempty"`
	Synopsis    *string  `json:"synopsis,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Review      *string  `json:"review,omitempty"`
}

// Validate checks the field rules of a create request.
func (in *MovieInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	return validateFields(in.PosterURL, in.Synopsis, in.Review, in.Rating)
}

// Movie builds the full record for id, stamping both timestamps with now.
func (in *MovieInput) Movie(id string, now time.Time) *Movie {
	m := &Movie{
		ID:        id,
		Title:     in.Title,
		PosterURL: cloneString(in.PosterURL),
		Director:  cloneString(in.Director),
		Synopsis:  cloneString(in.Synopsis),
		Review:    cloneString(in.Review),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ReleaseDate != nil {
		d := *in.ReleaseDate
		m.ReleaseDate = &d
	}
	if in.Rating != nil {
		r := *in.Rating
		m.Rating = &r
	}
	return m
}

// Optional is one field of a merge-patch. A field absent from the JSON object is not Set;
// an explicit null is Set and Null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a field set to v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a field set to null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Ptr returns a copy of the value, or nil when the field is absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// UnmarshalJSON is only called for keys present in the object, so it always marks the field Set.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	var zero T
	o.Set, o.Null, o.Value = true, false, zero
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// MarshalJSON encodes a null field as null. Absent fields are dropped by omitzero.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// MoviePatch is a merge-patch: absent fields are left untouched and null clears a field.
type MoviePatch struct {
	Title       Optional[string]  `json:"title,omitzero"`
	PosterURL   Optional[string]  `json:"poster_url,omitzero"`
	ReleaseDate Optional[Date]    `json:"release_date,omitzero"`
	Director    Optional[string]  `json:"director,omitzero"`
	Synopsis    Optional[string]  `json:"synopsis,omitzero"`
	Rating      Optional[float64] `json:"rating,omitzero"`
	Review      Optional[string]  `json:"review,omitzero"`
}

// Validate checks the field rules of the supplied fields. Title cannot be cleared.
func (p *MoviePatch) Validate() error {
	if p.Title.Set && (p.Title.Null || strings.TrimSpace(p.Title.Value) == "") {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}
	return validateFields(p.PosterURL.Ptr(), p.Synopsis.Ptr(), p.Review.Ptr(), p.Rating.Ptr())
}

// IsEmpty reports whether the patch supplies no field.
func (p *MoviePatch) IsEmpty() bool {
	return !p.Title.Set && !p.PosterURL.Set && !p.ReleaseDate.Set && !p.Director.Set &&
		!p.Synopsis.Set && !p.Rating.Set && !p.Review.Set
}

// Apply merges the supplied fields into m and sets UpdatedAt.
// ID and CreatedAt are never touched.
func (p *MoviePatch) Apply(m *Movie, updatedAt time.Time) {
	if p.Title.Set && !p.Title.Null {
		m.Title = p.Title.Value
	}
	if p.PosterURL.Set {
		m.PosterURL = p.PosterURL.Ptr()
	}
	if p.ReleaseDate.Set {
		m.ReleaseDate = p.ReleaseDate.Ptr()
	}
	if p.Director.Set {
		m.Director = p.Director.Ptr()
	}
	if p.Synopsis.Set {
		m.Synopsis = p.Synopsis.Ptr()
	}
	if p.Rating.Set {
		m.Rating = p.Rating.Ptr()
	}
	if p.Review.Set {
		m.Review = p.Review.Ptr()
	}
	m.UpdatedAt = updatedAt
}

// DecodeStrict decodes JSON into v, rejecting unknown fields.
func DecodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, ErrInvalid) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func validateFields(posterURL, synopsis, review *string, rating *float64) error {
	if posterURL != nil && *posterURL != "" && !IsValidURL(*posterURL) {
		return fmt.Errorf("%w: poster_url is not a valid URL", ErrInvalid)
	}
	if synopsis != nil && utf8.RuneCountInString(*synopsis) > MaxTextLength {
		return fmt.Errorf("%w: synopsis exceeds %d characters", ErrInvalid, MaxTextLength)
	}
	if review != nil && utf8.RuneCountInString(*review) > MaxTextLength {
		return fmt.Errorf("%w: review exceeds %d characters", ErrInvalid, MaxTextLength)
	}
	if rating != nil {
		r := *rating
		if r < MinRating || r > MaxRating {
			return fmt.Errorf("%w: rating must be between %.0f and %.0f", ErrInvalid, MinRating, MaxRating)
		}
		if steps := r / RatingStep; steps != math.Trunc(steps) {
			return fmt.Errorf("%w: rating must be a multiple of %.2f", ErrInvalid, RatingStep)
		}
	}
	return nil
}

// IsValidURL reports whether s is an absolute http(s) or ftp(s) URL with a host.
func IsValidURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp", "ftps":
	default:
		return false
	}
	host := u.Hostname()
	return host == "localhost" || strings.Contains(host, ".") || strings.Contains(host, ":")
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
