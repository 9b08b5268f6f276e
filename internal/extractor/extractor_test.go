package extractor

import (
	"encoding/json"
	"testing"

	"github.com/splamy/myousync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTryGetMetadataMiss(t *testing.T) {
	s := openTestStore(t)
	e := New(s, "yt-dlp", t.TempDir(), 0)

	_, ok, err := e.TryGetMetadata("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected cache miss")
	}
}

func TestTryGetMetadataHit(t *testing.T) {
	s := openTestStore(t)
	e := New(s, "yt-dlp", t.TempDir(), 0)

	raw, _ := json.Marshal(Metadata{ID: "abc", Title: "Some Title", Channel: "Some Channel"})
	if err := s.SetYtDlpCache("abc", string(raw)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	meta, ok, err := e.TryGetMetadata("abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if meta.Title != "Some Title" {
		t.Errorf("title = %q, want %q", meta.Title, "Some Title")
	}
}

func TestFindLocalFileNoMatch(t *testing.T) {
	s := openTestStore(t)
	e := New(s, "yt-dlp", t.TempDir(), 0)

	_, ok, err := e.FindLocalFile("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no match")
	}
}
