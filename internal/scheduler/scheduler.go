// Package scheduler runs three cooperative reconciliation loops —
// playlist sync, tagger, mirror — each woken by a tick-or-trigger race,
// joined under one errgroup so the process exits when any of them
// returns. Grounded on denpa-radio's internal/playlist/scheduler.go for
// the tick-vs-trigger loop shape, and
// original_source/myousync/src/main.rs's trigger_loop/sync_playlist_item
// for the exact reconciliation steps.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/splamy/myousync/internal/extractor"
	"github.com/splamy/myousync/internal/library"
	"github.com/splamy/myousync/internal/mirror"
	"github.com/splamy/myousync/internal/notify"
	"github.com/splamy/myousync/internal/resolver"
	"github.com/splamy/myousync/internal/store"
	"github.com/splamy/myousync/internal/tags"
	"github.com/splamy/myousync/internal/youtube"
)

// Scheduler wires the persistent store to every domain package and drives
// the three reconciliation loops.
type Scheduler struct {
	store     *store.Store
	youtube   *youtube.Provider
	extractor *extractor.Extractor
	resolver  *resolver.Resolver
	library   *library.Library
	mirror    *mirror.Mirror
	bus       *notify.Bus

	playlistSyncTrigger *notify.Trigger
	taggerTrigger       *notify.Trigger

	playlistSyncRate time.Duration
	taggerRate       time.Duration
	mirrorRate       time.Duration
}

// Config collects everything a Scheduler needs beyond the shared store.
type Config struct {
	Store     *store.Store
	YouTube   *youtube.Provider
	Extractor *extractor.Extractor
	Resolver  *resolver.Resolver
	Library   *library.Library
	Mirror    *mirror.Mirror
	Bus       *notify.Bus

	PlaylistSyncRate time.Duration
	TaggerRate       time.Duration
	MirrorRate       time.Duration
}

// New constructs a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		store:               cfg.Store,
		youtube:             cfg.YouTube,
		extractor:           cfg.Extractor,
		resolver:            cfg.Resolver,
		library:             cfg.Library,
		mirror:              cfg.Mirror,
		bus:                 cfg.Bus,
		playlistSyncTrigger: notify.NewTrigger(),
		taggerTrigger:       notify.NewTrigger(),
		playlistSyncRate:    cfg.PlaylistSyncRate,
		taggerRate:          cfg.TaggerRate,
		mirrorRate:          cfg.MirrorRate,
	}
}

// TriggerPlaylistSync wakes the playlist-sync loop ahead of its next tick.
func (sc *Scheduler) TriggerPlaylistSync() { sc.playlistSyncTrigger.Fire() }

// TriggerTagger wakes the tagger loop ahead of its next tick.
func (sc *Scheduler) TriggerTagger() { sc.taggerTrigger.Fire() }

// Run starts all three loops and blocks until ctx is cancelled or any loop
// returns an error.
func (sc *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runLoop(ctx, sc.playlistSyncRate, sc.playlistSyncTrigger, "playlist sync", func() {
			sc.syncAllPlaylists(ctx)
		})
	})
	g.Go(func() error {
		return runLoop(ctx, sc.taggerRate, sc.taggerTrigger, "tagger", func() {
			sc.tagUnprocessed(ctx)
		})
	})
	g.Go(func() error {
		return runLoop(ctx, sc.mirrorRate, notify.NewTrigger(), "mirror", func() {
			sc.mirror.SyncAll(func(format string, args ...any) { slog.Warn(fmt.Sprintf(format, args...)) })
		})
	})

	return g.Wait()
}

// runLoop ticks every interval, or fires early on trigger, running body
// once per wake-up until ctx is cancelled.
func runLoop(ctx context.Context, interval time.Duration, trigger *notify.Trigger, name string, body func()) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("starting loop", "loop", name)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("stopping loop", "loop", name)
			return ctx.Err()
		case <-ticker.C:
		case <-trigger.C():
		}

		slog.Info("entering loop", "loop", name)
		body()
		slog.Debug("exiting loop", "loop", name)
	}
}

// syncAllPlaylists fetches every enabled configured playlist and registers
// any video id not already known, triggering the tagger for fresh work.
func (sc *Scheduler) syncAllPlaylists(ctx context.Context) {
	knownIDs, err := sc.store.AllIDs()
	if err != nil {
		slog.Error("list known item ids failed", "error", err)
		return
	}
	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}

	configs, err := sc.store.AllPlaylistConfigs()
	if err != nil {
		slog.Error("list playlist configs failed", "error", err)
		return
	}

	for _, pc := range configs {
		if !pc.Enabled {
			continue
		}
		playlistID := pc.RemotePlaylistID
		slog.Info("syncing playlist", "playlist", playlistID)

		playlist, err := sc.youtube.GetPlaylist(ctx, playlistID)
		if err != nil {
			slog.Error("playlist sync failed", "playlist", playlistID, "error", err)
			continue
		}

		foundNew := false
		for _, item := range playlist.Items {
			if _, ok := known[item.RemoteVideoID]; ok {
				continue
			}
			if err := sc.store.SetItem(store.NewItem(item.RemoteVideoID)); err != nil {
				slog.Error("register new item failed", "video_id", item.RemoteVideoID, "error", err)
				continue
			}
			known[item.RemoteVideoID] = struct{}{}
			foundNew = true
		}

		if foundNew {
			sc.TriggerTagger()
		}
	}
}

// tagUnprocessed walks every NotFetched/Fetched item in a sequential pass,
// driving each through the extract/resolve/tag/place state machine.
func (sc *Scheduler) tagUnprocessed(ctx context.Context) {
	ids, err := sc.store.UnprocessedIDs()
	if err != nil {
		slog.Error("list unprocessed ids failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := sc.tagOne(ctx, id); err != nil {
			slog.Error("tagging item failed", "video_id", id, "error", err)
		}
	}
}

func (sc *Scheduler) tagOne(ctx context.Context, videoID string) error {
	item, ok, err := sc.store.GetItem(videoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %q not found", videoID)
	}

	meta, err := sc.ensureFetched(ctx, item)
	if err != nil {
		return err
	}
	if meta == nil {
		// ensureFetched returns metadata whenever it returns no error; this
		// guard only keeps the steps below from running without it.
		return nil
	}

	result, err := sc.resolveMetadata(ctx, item, meta)
	if err != nil {
		sc.setError(videoID, store.ResolveError, err)
		return err
	}

	if err := sc.applyAndPlace(videoID, meta, result); err != nil {
		sc.setError(videoID, store.ResolveError, err)
		return err
	}

	_, _, err = sc.store.ModifyItem(videoID, func(i *store.Item) bool {
		i.State = store.Categorized
		i.LastError = nil
		i.LastResult = result
		return true
	})
	if err == nil {
		sc.publish(videoID)
	}
	return err
}

// ensureFetched drives the NotFetched → Fetched transition, or replays a
// previously fetched item's cached metadata. On success it returns the
// metadata, so the caller continues with the resolve/tag/place steps in
// the same pass; when the fetch fails, or a Fetched item has no cached
// metadata, it records FetchError and returns the error.
func (sc *Scheduler) ensureFetched(ctx context.Context, item *store.Item) (*extractor.Metadata, error) {
	switch item.State {
	case store.NotFetched:
		meta, err := sc.extractor.Acquire(ctx, item.RemoteVideoID)
		if err != nil {
			sc.setError(item.RemoteVideoID, store.FetchError, err)
			return nil, err
		}
		now := time.Now()
		_, _, err = sc.store.ModifyItem(item.RemoteVideoID, func(i *store.Item) bool {
			i.State = store.Fetched
			i.FetchTime = &now
			i.LastError = nil
			return true
		})
		if err != nil {
			return nil, err
		}
		sc.publish(item.RemoteVideoID)
		return meta, nil

	case store.Fetched:
		meta, ok, err := sc.extractor.TryGetMetadata(item.RemoteVideoID)
		if err != nil {
			return nil, err
		}
		if !ok {
			sc.setError(item.RemoteVideoID, store.FetchError, fmt.Errorf("no cached metadata found"))
			return nil, fmt.Errorf("no cached metadata for %q", item.RemoteVideoID)
		}
		return meta, nil

	default:
		return nil, fmt.Errorf("item %q in unexpected state %s for tagging", item.RemoteVideoID, item.State)
	}
}

// resolveMetadata honors an operator result override first, then an
// operator query override, falling back to the extracted metadata as the
// default query.
func (sc *Scheduler) resolveMetadata(ctx context.Context, item *store.Item, meta *extractor.Metadata) (*store.ResolverResult, error) {
	if item.OverrideResult != nil {
		return item.OverrideResult, nil
	}

	query := item.OverrideQuery
	if query == nil {
		title := meta.Title
		if meta.Track != nil {
			title = *meta.Track
		}
		query = &store.ResolverQuery{Title: title, Artist: meta.Artist, Album: meta.Album}

		if _, _, err := sc.store.ModifyItem(item.RemoteVideoID, func(i *store.Item) bool {
			i.LastQuery = query
			return true
		}); err != nil {
			return nil, err
		}
	}

	result, err := sc.resolver.Resolve(ctx, *query)
	if err != nil {
		return nil, err
	}

	if _, _, err := sc.store.ModifyItem(item.RemoteVideoID, func(i *store.Item) bool {
		i.LastResult = result
		return true
	}); err != nil {
		return nil, err
	}
	sc.publish(item.RemoteVideoID)

	return result, nil
}

// applyAndPlace writes the resolved tag fields onto the extracted local
// file (including the musicbrainz recording id, format-appropriately) and
// moves it into the library tree.
func (sc *Scheduler) applyAndPlace(videoID string, meta *extractor.Metadata, result *store.ResolverResult) error {
	path, ok, err := sc.extractor.FindLocalFile(videoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no local file found for %q", videoID)
	}

	tag, err := tags.ReadFromPath(path)
	if err != nil {
		return err
	}

	artist := strings.Join(result.Artist, "; ")

	tag.RemoveTitle()
	tag.SetTitle(result.Title)
	tag.RemoveArtist()
	tag.SetArtist(artist)

	album := ""
	if result.Album != nil {
		album = *result.Album
	}
	if err := tag.SetAlbumInfo(tags.AlbumInfo{Title: album, AlbumArtist: artist}); err != nil {
		return err
	}

	tag.SetComment("youtube_id", videoID)
	if result.RecordingID != nil {
		tag.RemoveComment("musicbrainz_trackid", nil)
		tag.AddComment("musicbrainz_trackid", *result.RecordingID)
	}

	if err := tag.WriteToPath(path); err != nil {
		return err
	}

	libMeta := library.Metadata{Title: result.Title, Artist: result.Artist, Album: album, RemoteVideoID: videoID}
	_, err = sc.library.Place(path, libMeta)
	return err
}

func (sc *Scheduler) setError(videoID string, state store.ItemState, cause error) {
	msg := cause.Error()
	_, _, err := sc.store.ModifyItem(videoID, func(i *store.Item) bool {
		i.State = state
		i.LastError = &msg
		return true
	})
	if err == nil {
		sc.publish(videoID)
	}
}

func (sc *Scheduler) publish(videoID string) {
	item, ok, err := sc.store.GetItem(videoID)
	if err != nil || !ok {
		return
	}
	update := notify.ItemUpdate{RemoteVideoID: item.RemoteVideoID, State: item.State.String()}
	if item.LastError != nil {
		update.LastError = *item.LastError
	}
	sc.bus.Publish(update)
}

// ModifyItem is the sole entry point through which operator commands
// (retry, query override, result override, delete) mutate an Item. It
// publishes a change notification after every call that finds the item,
// whether or not the functor reported a write, and additionally removes
// the on-disk file and transitions to Disabled when del is true.
func (sc *Scheduler) ModifyItem(videoID string, del bool, fn func(*store.Item) bool) error {
	_, ok, err := sc.store.ModifyItem(videoID, fn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %q not found", videoID)
	}

	if del {
		if path, found := sc.library.FindLocalFile(videoID, false); found {
			if err := sc.library.Delete(path); err != nil {
				return err
			}
		}
		if _, _, err := sc.store.ModifyItem(videoID, func(i *store.Item) bool {
			i.State = store.Disabled
			return true
		}); err != nil {
			return err
		}
	}

	sc.publish(videoID)
	return nil
}
