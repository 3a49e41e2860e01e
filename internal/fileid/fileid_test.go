package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestMovieID(t *testing.T) {
	id1 := MovieID("/imports/heat.json")
	id2 := MovieID("/imports/heat.json")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	parsed, err := uuid.Parse(id1)
	if err != nil {
		t.Fatalf("ID is not a UUID: %q", id1)
	}
	if parsed.Version() != 5 {
		t.Errorf("version = %d, want 5", parsed.Version())
	}
}

func TestMovieID_differentPaths(t *testing.T) {
	if MovieID("/imports/heat.json") == MovieID("/imports/ronin.json") {
		t.Error("different paths should give different IDs")
	}
}

func TestMovieID_normalized(t *testing.T) {
	id1 := MovieID("/imports/heat.json")
	id2 := MovieID("/imports/./heat.json")
	id3 := MovieID("/imports/sub/../heat.json")
	if id1 != id2 || id1 != id3 {
		t.Errorf("equivalent paths should match: %q %q %q", id1, id2, id3)
	}
}
