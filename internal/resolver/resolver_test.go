package resolver

import (
	"testing"

	"github.com/splamy/myousync/internal/store"
)

func strPtr(s string) *string { return &s }

func TestBuildCandidatesWithArtistAndAlbum(t *testing.T) {
	q := store.ResolverQuery{Title: "Song", Artist: strPtr("A, B"), Album: strPtr("Album")}
	candidates := buildCandidates(q)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if !candidates[0].album.present || candidates[0].album.text != "Album" {
		t.Errorf("first candidate should carry album")
	}
	if candidates[1].album.present {
		t.Errorf("second candidate should drop album")
	}
	if len(candidates[0].artist) != 2 {
		t.Errorf("expected 2 split artists, got %d", len(candidates[0].artist))
	}
}

func TestBuildCandidatesWithDashTitle(t *testing.T) {
	q := store.ResolverQuery{Title: "Artist One - Track Title"}
	candidates := buildCandidates(q)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 dash-split candidates, got %d", len(candidates))
	}
	if candidates[0].title.text != "Track Title" {
		t.Errorf("first candidate title = %q", candidates[0].title.text)
	}
	if candidates[1].title.text != "Artist One" {
		t.Errorf("second candidate title = %q", candidates[1].title.text)
	}
}

func TestSplitArtistTermsStripsBracketsAndSeparators(t *testing.T) {
	terms := splitArtistTerms("Foo feat. Bar & Baz (remix)")
	if len(terms) != 3 {
		t.Fatalf("expected 3 terms, got %d: %+v", len(terms), terms)
	}
	if terms[0].text != "Foo" || terms[1].text != "Bar" || terms[2].text != "Baz remix" {
		t.Fatalf("unexpected split result: %+v", terms)
	}
}

func TestNightcoreShortCircuit(t *testing.T) {
	candidates := []candidate{
		{title: exact("Some Song"), artist: []qterm{exact("nightcore")}},
	}
	result, ok := nightcoreShortCircuit(candidates, "fallback title")
	if !ok {
		t.Fatalf("expected short circuit to trigger")
	}
	if result.Title != "Some Song" {
		t.Errorf("title = %q, want %q", result.Title, "Some Song")
	}
	if len(result.Artist) != 1 || result.Artist[0] != "Nightcore" {
		t.Errorf("artist = %v, want [Nightcore]", result.Artist)
	}
	if result.Album == nil || *result.Album != "Nightcore" {
		t.Errorf("album = %v, want Nightcore", result.Album)
	}
}

func TestNightcoreShortCircuitNoMatch(t *testing.T) {
	candidates := []candidate{
		{title: exact("Some Song"), artist: []qterm{exact("Real Artist")}},
	}
	_, ok := nightcoreShortCircuit(candidates, "fallback title")
	if ok {
		t.Fatalf("did not expect short circuit")
	}
}

func TestBuildLuceneQuery(t *testing.T) {
	c := candidate{title: exact("Song"), artist: []qterm{exact("Artist")}, album: exact("Album")}
	q := buildLuceneQuery(c)
	want := `recording:"Song" AND artist:"Artist" AND release:"Album"`
	if q != want {
		t.Errorf("query = %q, want %q", q, want)
	}
}

func TestParseBrainzResponseEmpty(t *testing.T) {
	_, err := parseBrainzResponse([]byte(`{"recordings":[]}`))
	if err != ErrEmptyResult {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestParseBrainzResponseFirstResult(t *testing.T) {
	body := []byte(`{"recordings":[
		{"id":"rec1","title":"Title1","artist-credit":[{"name":"A1"},{"name":"A2"}],"releases":[{"title":"Rel1"}]},
		{"id":"rec2","title":"Title2"}
	]}`)
	result, err := parseBrainzResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RecordingID == nil || *result.RecordingID != "rec1" {
		t.Errorf("recording id = %v, want rec1", result.RecordingID)
	}
	if len(result.Artist) != 2 || result.Artist[0] != "A1" {
		t.Errorf("artist = %v", result.Artist)
	}
	if result.Album == nil || *result.Album != "Rel1" {
		t.Errorf("album = %v, want Rel1", result.Album)
	}
}
