package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSizeOnDisk(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "movies.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := SizeOnDisk(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("database with WAL: got %d bytes, want 8", got)
	}

	index := filepath.Join(dir, "movies.bleve")
	if err := os.MkdirAll(filepath.Join(index, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "index_meta.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "store", "root.bolt"), []byte("1234"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = SizeOnDisk(index)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("index directory: got %d bytes, want 6", got)
	}

	for _, p := range []string{"", filepath.Join(dir, "missing")} {
		got, err = SizeOnDisk(p)
		if err != nil || got != 0 {
			t.Errorf("SizeOnDisk(%q) = %d, %v; want 0, nil", p, got, err)
		}
	}
}
