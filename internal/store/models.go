package store

import "time"

// ItemState is the reconciliation state of an Item as it moves through
// extraction, resolution, and tagging. Zero value is NotFetched, the
// initial state.
type ItemState int

const (
	NotFetched ItemState = iota
	Fetched
	FetchError
	ResolveError
	Categorized
	Disabled
)

// String renders the state the way it shows up in logs and the notification
// bus payloads.
func (s ItemState) String() string {
	switch s {
	case NotFetched:
		return "NotFetched"
	case Fetched:
		return "Fetched"
	case FetchError:
		return "FetchError"
	case ResolveError:
		return "ResolveError"
	case Categorized:
		return "Categorized"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// MirrorState tracks whether a PlaylistItem's position has been pushed to
// the media-server mirror yet.
type MirrorState int

const (
	NotSynced MirrorState = iota
	Synced
)

// ResolverQuery is the input sent to the metadata resolver (C5). It lives
// here, alongside Item, because an Item persists its last (and optionally
// overriding) query verbatim — see DESIGN.md for why this type isn't owned
// by the resolver package itself.
type ResolverQuery struct {
	TrackID *string `json:"trackid,omitempty"`
	Title   string  `json:"title"`
	Artist  *string `json:"artist,omitempty"`
	Album   *string `json:"album,omitempty"`
}

// ResolverResult is the resolver's answer, persisted verbatim on the Item.
type ResolverResult struct {
	RecordingID *string  `json:"recording_id,omitempty"`
	Title       string   `json:"title"`
	Artist      []string `json:"artist"`
	Album       *string  `json:"album,omitempty"`
}

// Item is the unit of reconciliation work, keyed by the opaque remote video
// id assigned by the playlist provider.
type Item struct {
	RemoteVideoID string

	State ItemState

	FetchTime  *time.Time
	LastUpdate time.Time

	LastQuery  *ResolverQuery
	LastResult *ResolverResult
	LastError  *string

	OverrideQuery  *ResolverQuery
	OverrideResult *ResolverResult

	ExternalItemID *string
}

// NewItem returns a freshly-discovered Item in its initial state.
func NewItem(remoteVideoID string) *Item {
	return &Item{
		RemoteVideoID: remoteVideoID,
		State:         NotFetched,
		LastUpdate:    time.Now(),
	}
}

// IsTerminal reports whether state requires no further automatic processing
// absent an operator override.
func (i *Item) IsTerminal() bool {
	return i.State == Categorized || i.State == Disabled
}

// PlaylistItem is one ordered entry of a stored Playlist.
type PlaylistItem struct {
	RemoteVideoID string
	Title         string
	Artist        string
	Position      int
	MirrorState   MirrorState
}

// Playlist is the last-fetched snapshot of a remote playlist, keyed by the
// opaque remote playlist id.
type Playlist struct {
	RemotePlaylistID string
	Etag             string
	TotalResults     int
	FetchTime        time.Time
	Items            []PlaylistItem
}

// PlaylistConfig is operator configuration pairing a remote playlist with an
// optional mirror-side playlist, plus an enabled flag.
type PlaylistConfig struct {
	RemotePlaylistID   string
	ExternalPlaylistID *string
	Enabled            bool
}

// User is a local operator account.
type User struct {
	Username     string
	PasswordHash string
}

// JellySyncStatus mirrors original_source's JellySyncStatus: a join of a
// playlist item's mirror status against its owning Item's state, used by
// the mirror loop to decide what still needs pushing.
type JellySyncStatus struct {
	PlaylistID     string
	RemoteVideoID  string
	State          ItemState
	MirrorState    MirrorState
	ExternalItemID *string
}
