package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/splamy/myousync/internal/deviceauth"
	"github.com/splamy/myousync/internal/store"
)

// youtubeAuthKV mirrors the unexported KVP key deviceauth.Authenticator
// caches AuthData under, so tests can seed a valid token without driving
// the full device-code flow through a mock server.
const youtubeAuthKV = "youtube_auth"

func seedCachedAuth(t *testing.T, s *store.Store, data *deviceauth.AuthData) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal auth data: %v", err)
	}
	if err := s.SetKey(youtubeAuthKV, string(raw)); err != nil {
		t.Fatalf("seed cached auth: %v", err)
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAuth(t *testing.T, s *store.Store) *deviceauth.Authenticator {
	t.Helper()
	a := deviceauth.New(s, "id", "secret", nil)
	return a
}

func TestGetPlaylistQuickCacheSkipsNetwork(t *testing.T) {
	s := openTestStore(t)
	auth := seedAuth(t, s)

	pl := &store.Playlist{RemotePlaylistID: "pl1", Etag: "e1", TotalResults: 1, FetchTime: time.Now(),
		Items: []store.PlaylistItem{{RemoteVideoID: "v1", Title: "T", Artist: "A", Position: 0}}}
	if err := s.SetPlaylist(pl); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}

	p := New(s, auth)
	p.client = &http.Client{Transport: roundTripFail{t}}

	got, err := p.GetPlaylist(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].RemoteVideoID != "v1" {
		t.Errorf("unexpected playlist: %+v", got)
	}
}

type roundTripFail struct{ t *testing.T }

func (r roundTripFail) RoundTrip(req *http.Request) (*http.Response, error) {
	r.t.Fatalf("unexpected network request to %s", req.URL)
	return nil, nil
}

func TestGetPlaylistEtagShortcutAvoidsRewrite(t *testing.T) {
	s := openTestStore(t)

	auth := seedAuth(t, s)
	seedCachedAuth(t, s, &deviceauth.AuthData{AccessToken: "tok", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	stale := &store.Playlist{RemotePlaylistID: "pl1", Etag: "same-etag", TotalResults: 1, FetchTime: time.Now().Add(-time.Hour),
		Items: []store.PlaylistItem{{RemoteVideoID: "v1", Title: "Old Title", Artist: "A", Position: 0}}}
	if err := s.SetPlaylist(stale); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"etag":"same-etag","pageInfo":{"totalResults":1},"items":[]}`))
	}))
	defer srv.Close()

	p := New(s, auth)
	p.itemsURL = srv.URL

	got, err := p.GetPlaylist(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Title != "Old Title" {
		t.Errorf("expected cached items preserved via etag shortcut, got %+v", got.Items)
	}
}

func TestGetPlaylistFullRefetchOnEtagMismatch(t *testing.T) {
	s := openTestStore(t)
	auth := seedAuth(t, s)
	seedCachedAuth(t, s, &deviceauth.AuthData{AccessToken: "tok", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	stale := &store.Playlist{RemotePlaylistID: "pl1", Etag: "old-etag", TotalResults: 1, FetchTime: time.Now().Add(-time.Hour),
		Items: []store.PlaylistItem{{RemoteVideoID: "v1", Title: "Old Title", Artist: "A", Position: 0}}}
	if err := s.SetPlaylist(stale); err != nil {
		t.Fatalf("seed playlist: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"etag":"new-etag","pageInfo":{"totalResults":1},"items":[
			{"snippet":{"title":"New Title","channelTitle":"Channel","videoOwnerChannelTitle":"Real Artist - Topic","resourceId":{"videoId":"v2"}}}
		]}`))
	}))
	defer srv.Close()

	p := New(s, auth)
	p.itemsURL = srv.URL

	got, err := p.GetPlaylist(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].RemoteVideoID != "v2" || got.Items[0].Title != "New Title" {
		t.Errorf("unexpected refetched items: %+v", got.Items)
	}
	if got.Items[0].Artist != "Real Artist" {
		t.Errorf("expected Topic suffix stripped, got %q", got.Items[0].Artist)
	}
}
