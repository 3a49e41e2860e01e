// Package cli provides output helpers for the filmdex command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/filmdex/internal/models"
	"github.com/hyperjump/filmdex/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const synopsisWidth = 200

const separator = "─────────────────────────────────────────────────────────"

// ParseOutputFormat returns the format named s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes one page of search results to w in the given format.
func WriteSearchResults(w io.Writer, result *models.PaginatedResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\nFound %d movies (page %d of %d)\n\n", result.TotalCount, result.Page, result.PageCount)
	for _, m := range result.Data {
		writeMovieText(w, m)
	}
	if result.NextPage != nil {
		fmt.Fprintf(w, "More results: --page %d\n", *result.NextPage)
	}
	return nil
}

// WriteMovie writes a single movie to w in the given format.
func WriteMovie(w io.Writer, m *models.Movie, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, m)
	}
	writeMovieText(w, m)
	return nil
}

// WriteDirectors writes the director list to w, one per line in text format.
func WriteDirectors(w io.Writer, directors []string, format OutputFormat) error {
	if format == OutputJSON {
		if directors == nil {
			directors = []string{}
		}
		return writeJSON(w, directors)
	}
	for _, d := range directors {
		fmt.Fprintln(w, d)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMovieText(w io.Writer, m *models.Movie) {
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "%s\n", Heading(m))
	fmt.Fprintf(w, "ID: %s\n", m.ID)
	if m.Director != nil && *m.Director != "" {
		fmt.Fprintf(w, "Director: %s\n", *m.Director)
	}
	if m.Rating != nil {
		fmt.Fprintf(w, "Rating: %s\n", Stars(*m.Rating))
	}
	if m.Synopsis != nil && *m.Synopsis != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.SingleLine(*m.Synopsis), synopsisWidth))
	}
	fmt.Fprintln(w)
}

// Heading returns the title followed by the release year when known.
func Heading(m *models.Movie) string {
	if m.ReleaseDate == nil {
		return m.Title
	}
	return fmt.Sprintf("%s (%d)", m.Title, m.ReleaseDate.Year())
}

// Stars renders a rating as filled and empty stars followed by the number.
func Stars(rating float64) string {
	full := int(rating)
	if full > models.MaxRatingStars {
		full = models.MaxRatingStars
	}
	if full < 0 {
		full = 0
	}
	return fmt.Sprintf("%s%s %.2f", strings.Repeat("★", full), strings.Repeat("☆", models.MaxRatingStars-full), rating)
}
