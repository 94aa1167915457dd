package models

import "strings"

// ItemKind tags an [Item] with the library type it represents.
type ItemKind int

const (
	KindOther ItemKind = iota
	KindTrack
	KindAlbum
	KindArtist
	KindPlaylist
	KindFolder
)

// String returns the lower-case kind name.
func (k ItemKind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindAlbum:
		return "album"
	case KindArtist:
		return "artist"
	case KindPlaylist:
		return "playlist"
	case KindFolder:
		return "folder"
	default:
		return "other"
	}
}

// MediaType returns the media server item type name for k, or "" for [KindOther].
func (k ItemKind) MediaType() string {
	switch k {
	case KindTrack:
		return "Audio"
	case KindAlbum:
		return "MusicAlbum"
	case KindArtist:
		return "MusicArtist"
	case KindPlaylist:
		return "Playlist"
	case KindFolder:
		return "Folder"
	default:
		return ""
	}
}

// IsContainer reports whether items of this kind hold tracks.
func (k ItemKind) IsContainer() bool {
	switch k {
	case KindAlbum, KindArtist, KindPlaylist, KindFolder:
		return true
	default:
		return false
	}
}

// ParseItemKind maps a media server item type name onto an [ItemKind].
func ParseItemKind(mediaType string) ItemKind {
	switch strings.ToLower(mediaType) {
	case "audio", "track":
		return KindTrack
	case "musicalbum", "album":
		return KindAlbum
	case "musicartist", "artist":
		return KindArtist
	case "playlist":
		return KindPlaylist
	case "folder", "collectionfolder", "playlistsfolder":
		return KindFolder
	default:
		return KindOther
	}
}

// Item is a library entry.
type Item struct {
	Key     string
	Name    string
	Kind    ItemKind
	Artists []string
	Album   string
}

// PrimaryArtist returns the first artist or "".
func (i Item) PrimaryArtist() string {
	if len(i.Artists) == 0 {
		return ""
	}
	return i.Artists[0]
}

// User is a media server account.
//
// A nil *User means "no user context": every item is visible.
type User struct {
	ID   string
	Name string
}

// UserID returns the id of u, tolerating nil.
func (u *User) UserID() string {
	if u == nil {
		return ""
	}
	return u.ID
}

// SearchQuery describes a bounded text search over the library.
type SearchQuery struct {
	Text  string
	Kinds []ItemKind
	User  *User
	Limit int
}

// SimilarQuery describes one similarity request.
//
// ItemID wins over Title/Artist when both are set.
type SimilarQuery struct {
	ItemID              string
	Title               string
	Artist              string
	N                   int
	EliminateDuplicates bool
}

// Candidate is an unresolved backend recommendation.
type Candidate struct {
	ExternalID string  `json:"item_id"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Distance   float64 `json:"distance,omitempty"`
}

// Strategy names how an item entered a mix: one of the resolver steps, the anchor, or fallback.
type Strategy int

const (
	StrategyNativeKey Strategy = iota + 1
	StrategyRawKey
	StrategyMetadata
	StrategyAnchor
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyNativeKey:
		return "native"
	case StrategyRawKey:
		return "raw"
	case StrategyMetadata:
		return "metadata"
	case StrategyAnchor:
		return "anchor"
	case StrategyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// ResolvedItem is a candidate mapped onto a library item.
type ResolvedItem struct {
	Item
	Strategy Strategy
}

// Playlist is a media server playlist owned by one user.
type Playlist struct {
	ID    string
	Name  string
	Owner string
}

// PlaylistEntry pairs a playlist-scoped entry handle with the item it references.
type PlaylistEntry struct {
	Handle  string
	ItemKey string
}
