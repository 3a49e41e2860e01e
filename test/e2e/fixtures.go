package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FixtureLayouts are the subdirectories import fixtures are spread across, to cover recursive import.
var FixtureLayouts = []string{"", "classics", "classics/silent", "modern"}

// WriteImportFiles writes one import file per movie under dir, rotating through FixtureLayouts.
// Returns the written path for each movie title.
func WriteImportFiles(dir string, movies []E2EMovie) (map[string]string, error) {
	paths := make(map[string]string, len(movies))
	for i, m := range movies {
		sub := filepath.Join(dir, FixtureLayouts[i%len(FixtureLayouts)])
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, err
		}
		content, err := MarshalImportFile(m)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", m.Title, err)
		}
		path := filepath.Join(sub, fmt.Sprintf("%03d-%s.json", i+1, slug(m.Title)))
		if err := os.WriteFile(path, content, 0644); err != nil {
			return nil, err
		}
		paths[m.Title] = path
	}
	return paths, nil
}

// MarshalImportFile returns the JSON body of an import file for m.
func MarshalImportFile(m E2EMovie) ([]byte, error) {
	return json.MarshalIndent(m.Input(), "", "  ")
}

func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
