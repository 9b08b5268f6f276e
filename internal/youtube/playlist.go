// Package youtube fetches playlist snapshots from the playlist provider's
// public API: a short quick-cache window, then an etag/total-results
// shortcut against the stored snapshot, falling back to a full paginated
// refetch. Grounded on original_source/myousync/src/yt_api.rs's
// get_playlist.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splamy/myousync/internal/deviceauth"
	"github.com/splamy/myousync/internal/store"
)

// quickCacheWindow is how recently a stored playlist must have been
// fetched to be returned without contacting the provider at all.
const quickCacheWindow = time.Minute

const playlistItemsURL = "https://www.googleapis.com/youtube/v3/playlistItems"

const videoOwnerTopicSuffix = " - Topic"

// Provider fetches and caches playlist snapshots for one configured
// client credential.
type Provider struct {
	store *store.Store
	auth  *deviceauth.Authenticator

	client *http.Client

	itemsURL string // overridable for tests
}

// New constructs a Provider.
func New(s *store.Store, auth *deviceauth.Authenticator) *Provider {
	return &Provider{store: s, auth: auth, client: &http.Client{Timeout: 30 * time.Second}, itemsURL: playlistItemsURL}
}

// GetPlaylist returns the current snapshot of remotePlaylistID, reusing a
// recent cached copy, or an etag-matched cached copy, before falling back
// to a full paginated refetch.
func (p *Provider) GetPlaylist(ctx context.Context, remotePlaylistID string) (*store.Playlist, error) {
	cached, hasCached, err := p.store.TryGetPlaylist(remotePlaylistID)
	if err != nil {
		return nil, err
	}

	if hasCached && time.Since(cached.FetchTime) < quickCacheWindow {
		return cached, nil
	}

	auth, err := p.auth.GetAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube: auth: %w", err)
	}

	firstPage, err := p.fetchPage(ctx, auth.AccessToken, remotePlaylistID, "")
	if err != nil {
		return nil, err
	}

	if hasCached && cached.Etag == firstPage.Etag &&
		cached.TotalResults == firstPage.PageInfo.TotalResults &&
		len(cached.Items) == firstPage.PageInfo.TotalResults {
		if err := p.store.UpdatePlaylistFetchTime(remotePlaylistID, time.Now()); err != nil {
			return nil, err
		}
		cached.FetchTime = time.Now()
		return cached, nil
	}

	playlist := &store.Playlist{
		RemotePlaylistID: remotePlaylistID,
		Etag:             firstPage.Etag,
		TotalResults:     firstPage.PageInfo.TotalResults,
		FetchTime:        time.Now(),
		Items:            make([]store.PlaylistItem, 0, firstPage.PageInfo.TotalResults),
	}
	appendItems(playlist, firstPage)

	nextPage := firstPage.NextPageToken
	for nextPage != "" {
		page, err := p.fetchPage(ctx, auth.AccessToken, remotePlaylistID, nextPage)
		if err != nil {
			return nil, err
		}
		appendItems(playlist, page)
		nextPage = page.NextPageToken
	}

	if err := p.store.SetPlaylist(playlist); err != nil {
		return nil, fmt.Errorf("youtube: persist playlist: %w", err)
	}

	return playlist, nil
}

type resourceID struct {
	VideoID string `json:"videoId"`
}

type snippet struct {
	Title                  string     `json:"title"`
	ChannelTitle           string     `json:"channelTitle"`
	VideoOwnerChannelTitle *string    `json:"videoOwnerChannelTitle"`
	ResourceID             resourceID `json:"resourceId"`
}

type playlistItem struct {
	Snippet snippet `json:"snippet"`
}

type pageInfo struct {
	TotalResults int `json:"totalResults"`
}

type playlistItemsResponse struct {
	Etag          string         `json:"etag"`
	NextPageToken string         `json:"nextPageToken"`
	PageInfo      pageInfo       `json:"pageInfo"`
	Items         []playlistItem `json:"items"`
}

func (p *Provider) fetchPage(ctx context.Context, accessToken, remotePlaylistID, pageToken string) (*playlistItemsResponse, error) {
	params := url.Values{
		"part":       {"snippet"},
		"playlistId": {remotePlaylistID},
		"maxResults": {"50"},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.itemsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed playlistItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("youtube: decode playlist page: %w", err)
	}
	return &parsed, nil
}

// appendItems flattens one page's items onto playlist, resolving the
// displayed artist the same way the original does: prefer the video
// owner's channel title (stripping a trailing " - Topic" auto-generated
// suffix), falling back to the uploading channel's own title.
func appendItems(playlist *store.Playlist, page *playlistItemsResponse) {
	start := len(playlist.Items)
	for i, item := range page.Items {
		artist := item.Snippet.ChannelTitle
		if item.Snippet.VideoOwnerChannelTitle != nil {
			artist = strings.TrimSuffix(*item.Snippet.VideoOwnerChannelTitle, videoOwnerTopicSuffix)
		}

		playlist.Items = append(playlist.Items, store.PlaylistItem{
			RemoteVideoID: item.Snippet.ResourceID.VideoID,
			Title:         item.Snippet.Title,
			Artist:        artist,
			Position:      start + i,
			MirrorState:   store.NotSynced,
		})
	}
}
