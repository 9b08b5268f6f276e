package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestItemRoundTrip(t *testing.T) {
	s := openTestStore(t)

	item := NewItem("abc123")
	title := "Some Title"
	artist := "Some Artist"
	item.LastQuery = &ResolverQuery{Title: title, Artist: &artist}
	item.State = Fetched

	if err := s.SetItem(item); err != nil {
		t.Fatalf("set item: %v", err)
	}

	got, ok, err := s.GetItem("abc123")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !ok {
		t.Fatalf("expected item to exist")
	}
	if got.State != Fetched {
		t.Errorf("state = %v, want Fetched", got.State)
	}
	if got.LastQuery == nil || got.LastQuery.Title != title {
		t.Errorf("last query not round-tripped: %+v", got.LastQuery)
	}
}

func TestGetItemMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetItem("missing")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if ok {
		t.Fatalf("expected no item")
	}
}

func TestModifyItemAdvancesLastUpdate(t *testing.T) {
	s := openTestStore(t)

	item := NewItem("vid1")
	item.LastUpdate = time.Now().Add(-time.Hour)
	if err := s.SetItem(item); err != nil {
		t.Fatalf("set item: %v", err)
	}

	before := item.LastUpdate

	modified, ok, err := s.ModifyItem("vid1", func(i *Item) bool {
		i.State = Categorized
		return true
	})
	if err != nil {
		t.Fatalf("modify item: %v", err)
	}
	if !ok {
		t.Fatalf("expected item to exist")
	}
	if modified.State != Categorized {
		t.Errorf("state = %v, want Categorized", modified.State)
	}
	if !modified.LastUpdate.After(before) {
		t.Errorf("last_update not advanced")
	}

	reloaded, _, err := s.GetItem("vid1")
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.State != Categorized {
		t.Errorf("persisted state = %v, want Categorized", reloaded.State)
	}
}

func TestModifyItemNoPersistWhenFnReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	item := NewItem("novid")
	if err := s.SetItem(item); err != nil {
		t.Fatalf("set item: %v", err)
	}

	_, _, err := s.ModifyItem("novid", func(i *Item) bool {
		i.State = Disabled
		return false
	})
	if err != nil {
		t.Fatalf("modify item: %v", err)
	}

	reloaded, _, err := s.GetItem("novid")
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.State != NotFetched {
		t.Errorf("state changed despite fn returning false: %v", reloaded.State)
	}
}

func TestUnprocessedIDsFiltersTerminalStates(t *testing.T) {
	s := openTestStore(t)

	mustSet := func(id string, state ItemState) {
		item := NewItem(id)
		item.State = state
		if err := s.SetItem(item); err != nil {
			t.Fatalf("set item %s: %v", id, err)
		}
	}

	mustSet("new1", NotFetched)
	mustSet("new2", Fetched)
	mustSet("done1", Categorized)
	mustSet("done2", Disabled)
	mustSet("err1", FetchError)

	ids, err := s.UnprocessedIDs()
	if err != nil {
		t.Fatalf("unprocessed ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 unprocessed ids, got %d: %v", len(ids), ids)
	}
}

func TestPlaylistRoundTripReplacesItems(t *testing.T) {
	s := openTestStore(t)

	pl := &Playlist{
		RemotePlaylistID: "pl1",
		Etag:             "etag-v1",
		TotalResults:     2,
		FetchTime:        time.Now(),
		Items: []PlaylistItem{
			{RemoteVideoID: "v1", Title: "First", Artist: "A", Position: 0},
			{RemoteVideoID: "v2", Title: "Second", Artist: "B", Position: 1},
		},
	}
	if err := s.SetPlaylist(pl); err != nil {
		t.Fatalf("set playlist: %v", err)
	}

	got, ok, err := s.TryGetPlaylist("pl1")
	if err != nil {
		t.Fatalf("get playlist: %v", err)
	}
	if !ok {
		t.Fatalf("expected playlist to exist")
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}

	// Replace with a smaller item set and confirm the old row is gone.
	pl2 := &Playlist{
		RemotePlaylistID: "pl1",
		Etag:             "etag-v2",
		TotalResults:     1,
		FetchTime:        time.Now(),
		Items: []PlaylistItem{
			{RemoteVideoID: "v3", Title: "Only", Artist: "C", Position: 0},
		},
	}
	if err := s.SetPlaylist(pl2); err != nil {
		t.Fatalf("replace playlist: %v", err)
	}

	got2, _, err := s.TryGetPlaylist("pl1")
	if err != nil {
		t.Fatalf("get playlist after replace: %v", err)
	}
	if len(got2.Items) != 1 || got2.Items[0].RemoteVideoID != "v3" {
		t.Fatalf("expected replaced item set, got %+v", got2.Items)
	}
}

func TestPlaylistConfigCRUD(t *testing.T) {
	s := openTestStore(t)

	externalID := "jelly-1"
	if err := s.AddPlaylistConfig(PlaylistConfig{
		RemotePlaylistID:   "pl1",
		ExternalPlaylistID: &externalID,
		Enabled:            true,
	}); err != nil {
		t.Fatalf("add playlist config: %v", err)
	}

	configs, err := s.AllPlaylistConfigs()
	if err != nil {
		t.Fatalf("list playlist configs: %v", err)
	}
	if len(configs) != 1 || !configs[0].Enabled {
		t.Fatalf("unexpected configs: %+v", configs)
	}

	if err := s.DeletePlaylistConfig("pl1"); err != nil {
		t.Fatalf("delete playlist config: %v", err)
	}
	configs, err = s.AllPlaylistConfigs()
	if err != nil {
		t.Fatalf("list playlist configs after delete: %v", err)
	}
	if len(configs) != 0 {
		t.Fatalf("expected no configs after delete, got %+v", configs)
	}
}

func TestBrainzCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.TryGetBrainzCache("q1")
	if err != nil {
		t.Fatalf("get brainz cache: %v", err)
	}
	if ok {
		t.Fatalf("expected no cached entry")
	}

	if err := s.SetBrainzCache("q1", `{"ok":true}`); err != nil {
		t.Fatalf("set brainz cache: %v", err)
	}

	data, ok, err := s.TryGetBrainzCache("q1")
	if err != nil {
		t.Fatalf("get brainz cache: %v", err)
	}
	if !ok || data != `{"ok":true}` {
		t.Fatalf("unexpected cached data: %q", data)
	}
}

func TestKVPRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.GetKey("missing"); ok {
		t.Fatalf("expected missing key to report false")
	}

	if err := s.SetKey("hello", "world"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	v, ok := s.GetKey("hello")
	if !ok || v != "world" {
		t.Fatalf("unexpected value %q ok=%v", v, ok)
	}

	if err := s.SetKey("hello", "world2"); err != nil {
		t.Fatalf("update key: %v", err)
	}
	v, _ = s.GetKey("hello")
	if v != "world2" {
		t.Fatalf("expected updated value, got %q", v)
	}

	if err := s.DeleteKey("hello"); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, ok := s.GetKey("hello"); ok {
		t.Fatalf("expected key to be gone after delete")
	}
}

func TestUserCRUD(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddUser("alice", "hash1"); err != nil {
		t.Fatalf("add user: %v", err)
	}

	u, ok, err := s.GetUser("alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !ok || u.PasswordHash != "hash1" {
		t.Fatalf("unexpected user: %+v ok=%v", u, ok)
	}

	deleted, err := s.DeleteUser("alice")
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete to report true")
	}

	_, ok, err = s.GetUser("alice")
	if err != nil {
		t.Fatalf("get user after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected user to be gone")
	}
}

func TestSchemaVersionPersisted(t *testing.T) {
	s := openTestStore(t)

	v, ok := s.GetKey(schemaVersionKey)
	if !ok {
		t.Fatalf("expected schema version to be recorded")
	}
	if v != "1" {
		t.Errorf("schema version = %q, want %q", v, "1")
	}
}
