// Package store implements persistent, transactional key/row storage for
// items, playlists, overrides, cached provider responses, users, and
// process-wide key/value settings. It is grounded on
// original_source/myousync/src/dbdata/mod.rs, translated from rusqlite to
// database/sql over modernc.org/sqlite (see snapetech-plexTuner/internal/
// plex/dvr.go for the driver-import idiom this follows).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersionKey = "version"

// currentSchemaVersion is the schema version this binary expects. Bumping it
// requires adding a branch to migrate().
const currentSchemaVersion = 1

// Store guards a single sqlite connection behind a mutex: all access is
// serialized behind one connection. A connection pool would let the
// sqlite driver interleave writes in ways this package's transactional
// boundaries (playlist replace, migrations) don't tolerate.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if necessary) and migrates the sqlite database at path, or
// opens an in-memory database when path is ":memory:" (used by tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const schema = `
CREATE TABLE IF NOT EXISTS items (
	remote_video_id   TEXT PRIMARY KEY NOT NULL,
	state             INTEGER NOT NULL,
	fetch_time        INTEGER DEFAULT NULL,
	last_update       INTEGER NOT NULL,
	last_query        TEXT DEFAULT NULL,
	last_result       TEXT DEFAULT NULL,
	last_error        TEXT DEFAULT NULL,
	override_query    TEXT DEFAULT NULL,
	override_result   TEXT DEFAULT NULL,
	external_item_id  TEXT DEFAULT NULL
);
CREATE TABLE IF NOT EXISTS playlists (
	remote_playlist_id TEXT PRIMARY KEY NOT NULL,
	etag               TEXT NOT NULL,
	total_results      INTEGER NOT NULL,
	fetch_time         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS playlist_items (
	remote_playlist_id TEXT NOT NULL,
	remote_video_id    TEXT NOT NULL,
	title              TEXT NOT NULL,
	artist             TEXT NOT NULL,
	position           INTEGER NOT NULL,
	mirror_state       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (remote_playlist_id, remote_video_id)
);
CREATE TABLE IF NOT EXISTS playlist_config (
	remote_playlist_id   TEXT PRIMARY KEY NOT NULL,
	external_playlist_id TEXT DEFAULT NULL,
	enabled              INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS brainz_cache (
	query      TEXT PRIMARY KEY NOT NULL,
	fetch_time INTEGER NOT NULL,
	data       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ytdlp_cache (
	remote_video_id TEXT PRIMARY KEY NOT NULL,
	data            TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY NOT NULL,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS kvp (
	key         TEXT PRIMARY KEY NOT NULL,
	value       TEXT NOT NULL,
	last_update INTEGER NOT NULL
);`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// migrate advances the schema one step at a time under a single transaction
// per step, recording progress in the kvp table. Mirrors dbdata::migrate.
func (s *Store) migrate() error {
	cur := 0
	if v, ok := s.GetKey(schemaVersionKey); ok {
		fmt.Sscanf(v, "%d", &cur)
	}

	if cur >= currentSchemaVersion {
		return nil
	}

	slog.Info("upgrading database schema", "from", cur, "to", currentSchemaVersion)

	s.mu.Lock()
	defer s.mu.Unlock()

	// No steps defined yet beyond the baseline schema created above; this is
	// the hook future migrations attach to, one `if cur == N` branch per
	// step, each inside its own transaction.
	_ = cur

	return s.setKeyLocked(schemaVersionKey, fmt.Sprintf("%d", currentSchemaVersion))
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtrFromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func marshalOptional[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalOptional[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// GetItem returns the Item for remoteVideoID, or false if no row exists.
func (s *Store) GetItem(remoteVideoID string) (*Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getItemLocked(remoteVideoID)
}

func (s *Store) getItemLocked(remoteVideoID string) (*Item, bool, error) {
	row := s.db.QueryRow(`
		SELECT remote_video_id, state, fetch_time, last_update, last_query,
		       last_result, last_error, override_query, override_result, external_item_id
		FROM items WHERE remote_video_id = ?`, remoteVideoID)

	var (
		id                     string
		state                  int
		fetchTime, lastUpdate  sql.NullInt64
		lastQuery, lastResult  sql.NullString
		lastError              sql.NullString
		overrideQuery          sql.NullString
		overrideResult         sql.NullString
		externalItemID         sql.NullString
	)

	if err := row.Scan(&id, &state, &fetchTime, &lastUpdate, &lastQuery, &lastResult,
		&lastError, &overrideQuery, &overrideResult, &externalItemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get item %q: %w", remoteVideoID, err)
	}

	item := &Item{RemoteVideoID: id, State: ItemState(state)}
	item.FetchTime = timePtrFromUnix(fetchTime)
	if lastUpdate.Valid {
		item.LastUpdate = time.Unix(lastUpdate.Int64, 0)
	}
	var err error
	if item.LastQuery, err = unmarshalOptional[ResolverQuery](lastQuery); err != nil {
		return nil, false, err
	}
	if item.LastResult, err = unmarshalOptional[ResolverResult](lastResult); err != nil {
		return nil, false, err
	}
	if item.OverrideQuery, err = unmarshalOptional[ResolverQuery](overrideQuery); err != nil {
		return nil, false, err
	}
	if item.OverrideResult, err = unmarshalOptional[ResolverResult](overrideResult); err != nil {
		return nil, false, err
	}
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	if externalItemID.Valid {
		item.ExternalItemID = &externalItemID.String
	}

	return item, true, nil
}

// SetItem persists the full Item row (insert or replace).
func (s *Store) SetItem(item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setItemLocked(item)
}

func (s *Store) setItemLocked(item *Item) error {
	lastQuery, err := marshalOptional(item.LastQuery)
	if err != nil {
		return err
	}
	lastResult, err := marshalOptional(item.LastResult)
	if err != nil {
		return err
	}
	overrideQuery, err := marshalOptional(item.OverrideQuery)
	if err != nil {
		return err
	}
	overrideResult, err := marshalOptional(item.OverrideResult)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO items (remote_video_id, state, fetch_time, last_update, last_query,
		                    last_result, last_error, override_query, override_result, external_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_video_id) DO UPDATE SET
			state = excluded.state,
			fetch_time = excluded.fetch_time,
			last_update = excluded.last_update,
			last_query = excluded.last_query,
			last_result = excluded.last_result,
			last_error = excluded.last_error,
			override_query = excluded.override_query,
			override_result = excluded.override_result,
			external_item_id = excluded.external_item_id`,
		item.RemoteVideoID, int(item.State), unixPtr(item.FetchTime), item.LastUpdate.Unix(),
		lastQuery, lastResult, item.LastError, overrideQuery, overrideResult, item.ExternalItemID)
	if err != nil {
		return fmt.Errorf("set item %q: %w", item.RemoteVideoID, err)
	}
	return nil
}

// ModifyItem reads the item, applies fn, and persists the result if fn
// returns true. last_update is always advanced on a persisted write. Returns
// the (possibly modified) item, or false if no row existed for the id.
func (s *Store) ModifyItem(remoteVideoID string, fn func(*Item) bool) (*Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok, err := s.getItemLocked(remoteVideoID)
	if err != nil || !ok {
		return nil, ok, err
	}

	if !fn(item) {
		return item, true, nil
	}

	item.LastUpdate = time.Now()
	if err := s.setItemLocked(item); err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// AllItems returns every Item row.
func (s *Store) AllItems() ([]*Item, error) {
	ids, err := s.AllIDs()
	if err != nil {
		return nil, err
	}
	items := make([]*Item, 0, len(ids))
	for _, id := range ids {
		item, ok, err := s.GetItem(id)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// AllIDs returns every item's remote video id.
func (s *Store) AllIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT remote_video_id FROM items`)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnprocessedIDs returns ids of items in a non-terminal-for-fetching state:
// NotFetched or Fetched.
func (s *Store) UnprocessedIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT remote_video_id FROM items WHERE state IN (?, ?)`,
		int(NotFetched), int(Fetched))
	if err != nil {
		return nil, fmt.Errorf("list unprocessed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---------------------------------------------------------------------------
// Playlists
// ---------------------------------------------------------------------------

// TryGetPlaylist returns the stored snapshot of a playlist, if any.
func (s *Store) TryGetPlaylist(remotePlaylistID string) (*Playlist, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT remote_playlist_id, etag, total_results, fetch_time
		FROM playlists WHERE remote_playlist_id = ?`, remotePlaylistID)

	var pl Playlist
	var fetchTime int64
	if err := row.Scan(&pl.RemotePlaylistID, &pl.Etag, &pl.TotalResults, &fetchTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get playlist %q: %w", remotePlaylistID, err)
	}
	pl.FetchTime = time.Unix(fetchTime, 0)

	rows, err := s.db.Query(`SELECT remote_video_id, title, artist, position, mirror_state
		FROM playlist_items WHERE remote_playlist_id = ? ORDER BY position ASC`, remotePlaylistID)
	if err != nil {
		return nil, false, fmt.Errorf("get playlist items %q: %w", remotePlaylistID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it PlaylistItem
		var mirrorState int
		if err := rows.Scan(&it.RemoteVideoID, &it.Title, &it.Artist, &it.Position, &mirrorState); err != nil {
			return nil, false, err
		}
		it.MirrorState = MirrorState(mirrorState)
		pl.Items = append(pl.Items, it)
	}

	return &pl, true, rows.Err()
}

// SetPlaylist replaces the stored snapshot of a playlist atomically: the
// previous row set is deleted and the new one inserted inside a single
// transaction, so a reader never observes a partially-replaced playlist.
func (s *Store) SetPlaylist(pl *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin playlist replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM playlist_items WHERE remote_playlist_id = ?`, pl.RemotePlaylistID); err != nil {
		return fmt.Errorf("delete playlist items: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO playlists (remote_playlist_id, etag, total_results, fetch_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(remote_playlist_id) DO UPDATE SET etag = excluded.etag,
			total_results = excluded.total_results, fetch_time = excluded.fetch_time`,
		pl.RemotePlaylistID, pl.Etag, pl.TotalResults, pl.FetchTime.Unix()); err != nil {
		return fmt.Errorf("upsert playlist: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO playlist_items
		(remote_playlist_id, remote_video_id, title, artist, position, mirror_state)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range pl.Items {
		if _, err := stmt.Exec(pl.RemotePlaylistID, item.RemoteVideoID, item.Title, item.Artist,
			item.Position, int(item.MirrorState)); err != nil {
			return fmt.Errorf("insert playlist item: %w", err)
		}
	}

	return tx.Commit()
}

// UpdatePlaylistFetchTime bumps fetch_time without rewriting the item set;
// used by the etag/quick-cache shortcuts.
func (s *Store) UpdatePlaylistFetchTime(remotePlaylistID string, fetchTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE playlists SET fetch_time = ? WHERE remote_playlist_id = ?`,
		fetchTime.Unix(), remotePlaylistID)
	return err
}

// SetItemMirrorState updates mirror_state for a single playlist item.
func (s *Store) SetItemMirrorState(remotePlaylistID, remoteVideoID string, state MirrorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE playlist_items SET mirror_state = ?
		WHERE remote_playlist_id = ? AND remote_video_id = ?`, int(state), remotePlaylistID, remoteVideoID)
	return err
}

// ---------------------------------------------------------------------------
// Playlist configuration
// ---------------------------------------------------------------------------

// AllPlaylistConfigs lists every configured playlist (enabled or not).
func (s *Store) AllPlaylistConfigs() ([]PlaylistConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT remote_playlist_id, external_playlist_id, enabled FROM playlist_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []PlaylistConfig
	for rows.Next() {
		var c PlaylistConfig
		var externalID sql.NullString
		var enabled int
		if err := rows.Scan(&c.RemotePlaylistID, &externalID, &enabled); err != nil {
			return nil, err
		}
		if externalID.Valid {
			c.ExternalPlaylistID = &externalID.String
		}
		c.Enabled = enabled != 0
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// AddPlaylistConfig upserts a PlaylistConfig row.
func (s *Store) AddPlaylistConfig(c PlaylistConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO playlist_config (remote_playlist_id, external_playlist_id, enabled)
		VALUES (?, ?, ?)
		ON CONFLICT(remote_playlist_id) DO UPDATE SET
			external_playlist_id = excluded.external_playlist_id, enabled = excluded.enabled`,
		c.RemotePlaylistID, c.ExternalPlaylistID, boolToInt(c.Enabled))
	return err
}

// DeletePlaylistConfig removes a playlist from the configuration.
func (s *Store) DeletePlaylistConfig(remotePlaylistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM playlist_config WHERE remote_playlist_id = ?`, remotePlaylistID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Cached provider responses
// ---------------------------------------------------------------------------

// TryGetBrainzCache returns a previously cached resolver response body for
// the given query URL, if present.
func (s *Store) TryGetBrainzCache(query string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM brainz_cache WHERE query = ?`, query).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return data, true, nil
}

// SetBrainzCache upserts a cached resolver response body.
func (s *Store) SetBrainzCache(query, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO brainz_cache (query, fetch_time, data) VALUES (?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET fetch_time = excluded.fetch_time, data = excluded.data`,
		query, time.Now().Unix(), data)
	return err
}

// TryGetYtDlpCache returns the cached extractor JSON for a video id.
func (s *Store) TryGetYtDlpCache(remoteVideoID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM ytdlp_cache WHERE remote_video_id = ?`, remoteVideoID).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return data, true, nil
}

// SetYtDlpCache upserts the pruned extractor JSON for a video id.
func (s *Store) SetYtDlpCache(remoteVideoID, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO ytdlp_cache (remote_video_id, data) VALUES (?, ?)
		ON CONFLICT(remote_video_id) DO UPDATE SET data = excluded.data`, remoteVideoID, data)
	return err
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// GetUser looks up a user by name.
func (s *Store) GetUser(username string) (*User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u User
	err := s.db.QueryRow(`SELECT username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

// AddUser inserts a new user with an already-hashed password.
func (s *Store) AddUser(username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	return err
}

// DeleteUser removes a user and reports whether a row was removed.
func (s *Store) DeleteUser(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ---------------------------------------------------------------------------
// Key/value settings
// ---------------------------------------------------------------------------

// GetKey reads a process-wide setting.
func (s *Store) GetKey(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kvp WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetKey upserts a process-wide setting.
func (s *Store) SetKey(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setKeyLocked(key, value)
}

func (s *Store) setKeyLocked(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kvp (key, value, last_update) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, last_update = excluded.last_update`,
		key, value, time.Now().Unix())
	return err
}

// DeleteKey removes a process-wide setting.
func (s *Store) DeleteKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM kvp WHERE key = ?`, key)
	return err
}

// ---------------------------------------------------------------------------
// Mirror sync
// ---------------------------------------------------------------------------

// UnsyncedMirrorItems lists playlist items that are eligible to push to the
// media-server mirror: their owning playlist is configured, enabled, and
// paired with an external playlist id; their item is Categorized; and they
// are not already marked Synced. Grounds jellyfin.rs's get_jellyfin_unsynced.
func (s *Store) UnsyncedMirrorItems() ([]JellySyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT pi.remote_playlist_id, pi.remote_video_id, i.state, pi.mirror_state, i.external_item_id
		FROM playlist_items pi
		JOIN playlist_config pc ON pc.remote_playlist_id = pi.remote_playlist_id
		JOIN items i ON i.remote_video_id = pi.remote_video_id
		WHERE pc.enabled = 1
		  AND pc.external_playlist_id IS NOT NULL
		  AND pi.mirror_state != ?
		  AND i.state = ?
		ORDER BY pi.remote_playlist_id, pi.position ASC`,
		int(Synced), int(Categorized))
	if err != nil {
		return nil, fmt.Errorf("list unsynced mirror items: %w", err)
	}
	defer rows.Close()

	var out []JellySyncStatus
	for rows.Next() {
		var st JellySyncStatus
		var state, mirrorState int
		var externalID sql.NullString
		if err := rows.Scan(&st.PlaylistID, &st.RemoteVideoID, &state, &mirrorState, &externalID); err != nil {
			return nil, err
		}
		st.State = ItemState(state)
		st.MirrorState = MirrorState(mirrorState)
		if externalID.Valid {
			st.ExternalItemID = &externalID.String
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// MirrorPlaylistItemIDs returns the external item ids for a playlist's items,
// in stored position order, for pushing an ordered mirror-side playlist.
// Items lacking an external id (not yet categorized/mirrored) are skipped.
func (s *Store) MirrorPlaylistItemIDs(remotePlaylistID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT i.external_item_id
		FROM playlist_items pi
		JOIN items i ON i.remote_video_id = pi.remote_video_id
		WHERE pi.remote_playlist_id = ? AND i.external_item_id IS NOT NULL
		ORDER BY pi.position ASC`, remotePlaylistID)
	if err != nil {
		return nil, fmt.Errorf("list mirror playlist item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
