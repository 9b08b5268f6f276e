// Package mirror pushes categorized, mirror-eligible items to a
// Jellyfin-style media server: session auth with a stable device id,
// path-based matching against the server's own item listing (with an
// optional path-prefix rewrite), and ordered per-playlist pushes.
// Grounded on original_source/myousync/src/jellyfin.rs.
package mirror

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/splamy/myousync/config"
	"github.com/splamy/myousync/internal/library"
	"github.com/splamy/myousync/internal/store"
)

const (
	authKey     = "jelly_auth"
	deviceIDKey = "jelly_device"
	clientName  = "myousync"
	clientVer   = "1.0.0"
)

// authResponse is the subset of the media server's AuthenticateByName
// response this package persists and reuses.
type authResponse struct {
	AccessToken string `json:"AccessToken"`
}

// Mirror pushes mirror-eligible items to a single configured media server.
type Mirror struct {
	store   *store.Store
	library *library.Library
	cfg     *config.JellyfinConfig
	client  *http.Client
}

// New constructs a Mirror. cfg may be nil, in which case SyncAll is a
// no-op.
func New(s *store.Store, lib *library.Library, cfg *config.JellyfinConfig) *Mirror {
	return &Mirror{store: s, library: lib, cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// SyncAll logs in, determines which playlist items still need pushing,
// resolves any missing external item ids from a full server listing, and
// pushes each affected playlist's ordered id list. Failures are logged and
// skipped per-playlist, never aborting the whole batch.
func (m *Mirror) SyncAll(logf func(format string, args ...any)) {
	if m.cfg == nil {
		return
	}

	token, err := m.login()
	if err != nil {
		logf("mirror: login failed: %v", err)
		return
	}

	unsynced, err := m.store.UnsyncedMirrorItems()
	if err != nil {
		logf("mirror: list unsynced items failed: %v", err)
		return
	}
	if len(unsynced) == 0 {
		return
	}

	needsIDs := false
	for _, item := range unsynced {
		if item.ExternalItemID == nil {
			needsIDs = true
			break
		}
	}

	if needsIDs {
		pathToID, err := m.fetchItemListing(token)
		if err != nil {
			logf("mirror: fetch item listing failed: %v", err)
			return
		}
		if err := m.assignExternalIDs(pathToID); err != nil {
			logf("mirror: assign external ids failed: %v", err)
		}
	}

	playlists := make(map[string]struct{})
	for _, item := range unsynced {
		playlists[item.PlaylistID] = struct{}{}
	}

	for playlistID := range playlists {
		if err := m.pushPlaylist(token, playlistID); err != nil {
			logf("mirror: push playlist %q failed: %v", playlistID, err)
			continue
		}
	}
}

// login reuses a cached token if /Users/Me still accepts it, otherwise
// performs a fresh password auth and caches the result.
func (m *Mirror) login() (string, error) {
	if cached, ok := m.store.GetKey(authKey); ok {
		var auth authResponse
		if err := json.Unmarshal([]byte(cached), &auth); err == nil {
			if m.validateToken(auth.AccessToken) {
				return auth.AccessToken, nil
			}
		}
		m.store.DeleteKey(authKey)
	}

	req := map[string]string{"Username": m.cfg.User, "Pw": m.cfg.Password}
	body, _ := json.Marshal(req)

	httpReq, err := http.NewRequest(http.MethodPost, m.cfg.Server+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", m.authHeader(""))

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authenticate: unexpected status %d", resp.StatusCode)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}

	cached, _ := json.Marshal(auth)
	if err := m.store.SetKey(authKey, string(cached)); err != nil {
		return "", fmt.Errorf("cache auth response: %w", err)
	}

	return auth.AccessToken, nil
}

func (m *Mirror) validateToken(token string) bool {
	req, err := http.NewRequest(http.MethodGet, m.cfg.Server+"/Users/Me", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", m.authHeader(token))

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// authHeader builds the MediaBrowser auth header, carrying a persisted
// device id and the local hostname.
func (m *Mirror) authHeader(token string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "GenericMyousyncDevice"
	}

	deviceID, ok := m.store.GetKey(deviceIDKey)
	if !ok {
		deviceID = randomAlphanumeric(32)
		m.store.SetKey(deviceIDKey, deviceID)
	}

	params := []string{
		fmt.Sprintf(`Client="%s"`, clientName),
		fmt.Sprintf(`Device="%s"`, hostname),
		fmt.Sprintf(`Version="%s"`, clientVer),
		fmt.Sprintf(`DeviceId="%s"`, deviceID),
	}
	if token != "" {
		params = append(params, fmt.Sprintf(`Token="%s"`, token))
	}
	return "MediaBrowser " + strings.Join(params, ", ")
}

const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlphanumeric(n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumericAlphabet))))
		if err != nil {
			out[i] = alphanumericAlphabet[0]
			continue
		}
		out[i] = alphanumericAlphabet[idx.Int64()]
	}
	return string(out)
}

type mediaItem struct {
	Path string `json:"Path"`
	ID   string `json:"Id"`
}

type itemsResponse struct {
	Items []mediaItem `json:"Items"`
}

// fetchItemListing retrieves every audio item under the configured
// collection, recursively, and returns a map of (possibly rewritten) local
// path to external item id.
func (m *Mirror) fetchItemListing(token string) (map[string]string, error) {
	url := fmt.Sprintf("%s/Items?includeItemTypes=Audio&fields=Path&recursive=true&parentId=%s",
		m.cfg.Server, m.cfg.Collection)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", m.authHeader(token))

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer resp.Body.Close()

	var parsed itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode item listing: %w", err)
	}

	out := make(map[string]string, len(parsed.Items))
	for _, item := range parsed.Items {
		path := item.Path
		if m.cfg.RewritePath != nil {
			path = rewritePath(path, *m.cfg.RewritePath)
		}
		out[path] = item.ID
	}
	return out, nil
}

func rewritePath(path string, rw config.PathRewrite) string {
	if strings.HasPrefix(path, rw.From) {
		return rw.To + strings.TrimPrefix(path, rw.From)
	}
	return path
}

// assignExternalIDs looks up each categorized, not-yet-mirrored item's
// local file path via the library manager and matches it against
// pathToID, persisting any id found. Items with no on-disk file, or no
// match in the server listing, are left for the next pass.
func (m *Mirror) assignExternalIDs(pathToID map[string]string) error {
	items, err := m.store.AllItems()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ExternalItemID != nil || item.State != store.Categorized {
			continue
		}

		path, ok := m.library.FindLocalFile(item.RemoteVideoID, false)
		if !ok {
			continue
		}

		externalID, ok := pathToID[path]
		if !ok {
			continue
		}

		if _, _, err := m.store.ModifyItem(item.RemoteVideoID, func(i *store.Item) bool {
			if i.ExternalItemID != nil {
				return false
			}
			i.ExternalItemID = &externalID
			return true
		}); err != nil {
			return err
		}
	}
	return nil
}

// pushPlaylist sends the ordered external-item-id list for playlistID and
// marks its items Synced on success.
func (m *Mirror) pushPlaylist(token, playlistID string) error {
	configs, err := m.store.AllPlaylistConfigs()
	if err != nil {
		return err
	}
	var externalPlaylistID string
	for _, c := range configs {
		if c.RemotePlaylistID == playlistID && c.Enabled && c.ExternalPlaylistID != nil {
			externalPlaylistID = *c.ExternalPlaylistID
		}
	}
	if externalPlaylistID == "" {
		return nil
	}

	ids, err := m.store.MirrorPlaylistItemIDs(playlistID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	body, _ := json.Marshal(map[string]any{"Ids": ids})
	req, err := http.NewRequest(http.MethodPost, m.cfg.Server+"/Playlists/"+externalPlaylistID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", m.authHeader(token))

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("push playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push playlist: unexpected status %d", resp.StatusCode)
	}

	playlist, ok, err := m.store.TryGetPlaylist(playlistID)
	if err != nil || !ok {
		return err
	}
	for _, item := range playlist.Items {
		pushed, _, err := m.store.GetItem(item.RemoteVideoID)
		if err != nil {
			return err
		}
		if pushed == nil || pushed.ExternalItemID == nil {
			continue
		}
		if err := m.store.SetItemMirrorState(playlistID, item.RemoteVideoID, store.Synced); err != nil {
			return err
		}
	}
	return nil
}
