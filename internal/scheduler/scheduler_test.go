package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/splamy/myousync/internal/extractor"
	"github.com/splamy/myousync/internal/library"
	"github.com/splamy/myousync/internal/mirror"
	"github.com/splamy/myousync/internal/notify"
	"github.com/splamy/myousync/internal/resolver"
	"github.com/splamy/myousync/internal/store"
	"github.com/splamy/myousync/internal/tags"
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

func newTestScheduler(t *testing.T, s *store.Store, tempDir string) *Scheduler {
	t.Helper()
	musicDir := t.TempDir()

	lib := library.New(library.Paths{Music: musicDir, Temp: tempDir})
	ext := extractor.New(s, "no-such-binary-for-tests", tempDir, 0)
	res := resolver.New(s)
	mir := mirror.New(s, lib, nil)

	return New(Config{
		Store:     s,
		Extractor: ext,
		Resolver:  res,
		Library:   lib,
		Mirror:    mir,
		Bus:       notify.NewBus(),
	})
}

func TestTagOneNotFetchedMarksFetchErrorOnExtractorFailure(t *testing.T) {
	s := openTestStore(t)
	sc := newTestScheduler(t, s, t.TempDir())

	if err := s.SetItem(store.NewItem("v1")); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	err := sc.tagOne(context.Background(), "v1")
	if err == nil {
		t.Fatalf("expected an error from a nonexistent extractor binary")
	}

	item, ok, err := s.GetItem("v1")
	if err != nil || !ok {
		t.Fatalf("get item: ok=%v err=%v", ok, err)
	}
	if item.State != store.FetchError {
		t.Errorf("state = %v, want FetchError", item.State)
	}
	if item.LastError == nil || *item.LastError == "" {
		t.Errorf("expected LastError to be recorded")
	}
}

func TestTagOneFetchedWithOverrideResultReachesCategorized(t *testing.T) {
	s := openTestStore(t)
	tempDir := t.TempDir()
	sc := newTestScheduler(t, s, tempDir)

	item := store.NewItem("v1")
	item.State = store.Fetched
	album := "Some Album"
	recordingID := "mbid-123"
	item.OverrideResult = &store.ResolverResult{
		RecordingID: &recordingID,
		Title:       "Resolved Title",
		Artist:      []string{"Artist One", "Artist Two"},
		Album:       &album,
	}
	if err := s.SetItem(item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	rawMeta := `{"id":"v1","title":"Raw Title","channel":"Some Channel"}`
	if err := s.SetYtDlpCache("v1", rawMeta); err != nil {
		t.Fatalf("seed extractor cache: %v", err)
	}

	srcPath := filepath.Join(tempDir, "v1.mp3")
	if err := os.WriteFile(srcPath, []byte("not really audio, just test bytes"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	if err := sc.tagOne(context.Background(), "v1"); err != nil {
		t.Fatalf("tagOne: %v", err)
	}

	got, ok, err := s.GetItem("v1")
	if err != nil || !ok {
		t.Fatalf("get item: ok=%v err=%v", ok, err)
	}
	if got.State != store.Categorized {
		t.Errorf("state = %v, want Categorized", got.State)
	}
	if got.LastResult == nil || got.LastResult.Title != "Resolved Title" {
		t.Errorf("unexpected last result: %+v", got.LastResult)
	}

	if _, stillThere := os.Stat(srcPath); stillThere == nil {
		t.Errorf("expected source file to be moved out of the temp dir")
	}
}

func TestModifyItemDeleteRemovesFileAndDisables(t *testing.T) {
	s := openTestStore(t)
	musicDir := t.TempDir()
	tempDir := t.TempDir()

	lib := library.New(library.Paths{Music: musicDir, Temp: tempDir})
	sc := &Scheduler{
		store:   s,
		library: lib,
		bus:     notify.NewBus(),
	}

	item := store.NewItem("v1")
	item.State = store.Categorized
	if err := s.SetItem(item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	// FindLocalFile only trusts files whose youtube_id comment matches, so
	// the placed file carries one, as a tagged library file would.
	src := writeTempFile(t, tempDir, "v1.mp3")
	tag, err := tags.ReadFromPath(src)
	if err != nil {
		t.Fatalf("read tag: %v", err)
	}
	tag.SetComment("youtube_id", "v1")
	if err := tag.WriteToPath(src); err != nil {
		t.Fatalf("write tag: %v", err)
	}

	placed, err := lib.Place(src, library.Metadata{
		Title: "T", Artist: []string{"A"}, Album: "Al", RemoteVideoID: "v1",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := sc.ModifyItem("v1", true, func(i *store.Item) bool { return false }); err != nil {
		t.Fatalf("ModifyItem: %v", err)
	}

	if _, statErr := os.Stat(placed); statErr == nil {
		t.Errorf("expected placed file to be deleted")
	}

	got, ok, err := s.GetItem("v1")
	if err != nil || !ok {
		t.Fatalf("get item: ok=%v err=%v", ok, err)
	}
	if got.State != store.Disabled {
		t.Errorf("state = %v, want Disabled", got.State)
	}
}

func writeTempFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test audio bytes"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	trigger := notify.NewTrigger()

	done := make(chan error, 1)
	go func() {
		done <- runLoop(ctx, time.Hour, trigger, "test", func() {})
	}()

	trigger.Fire()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("expected ctx.Err() from a cancelled loop")
		}
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}
}
