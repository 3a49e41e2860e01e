package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestMovieInput_Validate(t *testing.T) {
	long := strings.Repeat("a", MaxTextLength+1)
	tests := []struct {
		name    string
		input   MovieInput
		wantErr bool
	}{
		{"title only", MovieInput{Title: "Heat"}, false},
		{"missing title", MovieInput{}, true},
		{"blank title", MovieInput{Title: "   "}, true},
		{"valid url", MovieInput{Title: "x", PosterURL: strPtr("https://img.example.com/p.jpg")}, false},
		{"localhost url", MovieInput{Title: "x", PosterURL: strPtr("http://localhost:8080/p.jpg")}, false},
		{"relative url", MovieInput{Title: "x", PosterURL: strPtr("/p.jpg")}, true},
		{"bad scheme", MovieInput{Title: "x", PosterURL: strPtr("mailto:a@b.c")}, true},
		{"synopsis at limit", MovieInput{Title: "x", Synopsis: strPtr(long[:MaxTextLength])}, false},
		{"synopsis too long", MovieInput{Title: "x", Synopsis: strPtr(long)}, true},
		{"review too long", MovieInput{Title: "x", Review: strPtr(long)}, true},
		{"rating quarter", MovieInput{Title: "x", Rating: floatPtr(4.25)}, false},
		{"rating not quantized", MovieInput{Title: "x", Rating: floatPtr(4.1)}, true},
		{"rating below range", MovieInput{Title: "x", Rating: floatPtr(0.75)}, true},
		{"rating above range", MovieInput{Title: "x", Rating: floatPtr(5.25)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
		})
	}
}

func TestMoviePatch_Apply(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m := (&MovieInput{Title: "Alien", Director: strPtr("Scott"), Rating: floatPtr(4.5)}).Movie("id-1", created)

	later := created.Add(time.Hour)
	patch := &MoviePatch{Director: Some("Ridley Scott")}
	patch.Apply(m, later)

	if *m.Director != "Ridley Scott" {
		t.Errorf("director = %q", *m.Director)
	}
	if m.Title != "Alien" || *m.Rating != 4.5 {
		t.Errorf("unsupplied fields changed: %+v", m)
	}
	if !m.CreatedAt.Equal(created) {
		t.Error("CreatedAt must not change")
	}
	if !m.UpdatedAt.Equal(later) {
		t.Error("UpdatedAt should be refreshed")
	}
	if m.ID != "id-1" {
		t.Error("ID must not change")
	}
}

func TestMoviePatch_IsEmpty(t *testing.T) {
	if !(&MoviePatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (&MoviePatch{Review: Some("")}).IsEmpty() {
		t.Error("patch with review should not be empty")
	}
	if (&MoviePatch{Review: Null[string]()}).IsEmpty() {
		t.Error("patch clearing review should not be empty")
	}
	if err := (&MoviePatch{Title: Some("")}).Validate(); err == nil {
		t.Error("empty title in patch should be rejected")
	}
}

func TestMoviePatch_DecodeNull(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, p *MoviePatch)
	}{
		{
			name: "absent fields stay unset",
			body: `{"director":"Kubrick"}`,
			check: func(t *testing.T, p *MoviePatch) {
				if !p.Director.Set || p.Director.Null || p.Director.Value != "Kubrick" {
					t.Errorf("director = %+v", p.Director)
				}
				if p.Rating.Set || p.Title.Set || p.ReleaseDate.Set {
					t.Errorf("absent fields marked set: %+v", p)
				}
			},
		},
		{
			name: "null is set and null",
			body: `{"rating":null,"release_date":null,"poster_url":null}`,
			check: func(t *testing.T, p *MoviePatch) {
				for name, o := range map[string]bool{
					"rating":       p.Rating.Set && p.Rating.Null,
					"release_date": p.ReleaseDate.Set && p.ReleaseDate.Null,
					"poster_url":   p.PosterURL.Set && p.PosterURL.Null,
				} {
					if !o {
						t.Errorf("%s should be set to null", name)
					}
				}
				if p.IsEmpty() {
					t.Error("patch of nulls should not be empty")
				}
				if err := p.Validate(); err != nil {
					t.Errorf("clearing nullable fields should be valid: %v", err)
				}
			},
		},
		{
			name: "date value",
			body: `{"release_date":"1968-04-02"}`,
			check: func(t *testing.T, p *MoviePatch) {
				if d := p.ReleaseDate.Ptr(); d == nil || d.String() != "1968-04-02" {
					t.Errorf("release_date = %v", d)
				}
			},
		},
		{name: "bad date", body: `{"release_date":"02/04/1968"}`, wantErr: true},
		{name: "unknown field", body: `{"budget":10}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p MoviePatch
			err := DecodeStrict([]byte(tt.body), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeStrict error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
			if tt.check != nil {
				tt.check(t, &p)
			}
		})
	}

	var p MoviePatch
	if err := DecodeStrict([]byte(`{"title":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("null title: got %v, want ErrInvalid", err)
	}
}

func TestMoviePatch_ApplyNull(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m := (&MovieInput{
		Title:     "Alien",
		PosterURL: strPtr("https://img.example.com/alien.jpg"),
		Director:  strPtr("Scott"),
		Synopsis:  strPtr("In space."),
		Rating:    floatPtr(4.5),
	}).Movie("id-1", created)
	d := NewDate(1979, time.May, 25)
	m.ReleaseDate = &d

	patch := &MoviePatch{
		Title:       Null[string](),
		PosterURL:   Null[string](),
		ReleaseDate: Null[Date](),
		Rating:      Null[float64](),
		Review:      Some("Scary."),
	}
	patch.Apply(m, created.Add(time.Minute))
	if m.Title != "Alien" {
		t.Errorf("null title must not clear the title, got %q", m.Title)
	}
	if m.PosterURL != nil || m.ReleaseDate != nil || m.Rating != nil {
		t.Errorf("null fields not cleared: %+v", m)
	}
	if m.Director == nil || *m.Director != "Scott" || m.Synopsis == nil {
		t.Errorf("absent fields changed: %+v", m)
	}
	if m.Review == nil || *m.Review != "Scary." {
		t.Errorf("review = %v", m.Review)
	}
}

func TestMoviePatch_Marshal(t *testing.T) {
	out, err := json.Marshal(&MoviePatch{Director: Some("Varda"), Rating: Null[float64]()})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"director":"Varda","rating":null}` {
		t.Errorf("marshal = %s", out)
	}
}

func TestDate_JSON(t *testing.T) {
	var m MovieInput
	if err := json.Unmarshal([]byte(`{"title":"x","release_date":"1999-12-31"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.ReleaseDate == nil || m.ReleaseDate.String() != "1999-12-31" {
		t.Fatalf("release_date = %v", m.ReleaseDate)
	}
	out, err := json.Marshal(m.ReleaseDate)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"1999-12-31"` {
		t.Errorf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`{"title":"x","release_date":"31/12/1999"}`), &m); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestDecodeStrict(t *testing.T) {
	var in MovieInput
	if err := DecodeStrict([]byte(`{"title":"x","budget":3}`), &in); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown field: got %v, want ErrInvalid", err)
	}
	if err := DecodeStrict([]byte(`{"title":"x","rating":4.5}`), &in); err != nil {
		t.Errorf("valid body: %v", err)
	}
}

func TestMovie_Clone(t *testing.T) {
	d := NewDate(2000, 1, 2)
	m := &Movie{ID: "a", Title: "t", Director: strPtr("d"), ReleaseDate: &d, Rating: floatPtr(3)}
	c := m.Clone()
	*c.Director = "other"
	*c.Rating = 1
	if *m.Director != "d" || *m.Rating != 3 {
		t.Error("Clone must not share pointers")
	}
}
