// package models defines the data model for the musemix engine
package models

import (
	"context"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// SimilarityClient queries the external recommendation backend.
//
// Non-2xx responses are returned as errors carrying the status code and body.
type SimilarityClient interface {
	// QuerySimilar returns candidates ranked by similarity to the seed described by q.
	QuerySimilar(ctx context.Context, q SimilarQuery) ([]Candidate, error)
	// QueryFingerprint returns candidates matching a user's listening fingerprint.
	// n <= 0 lets the backend choose the count.
	QueryFingerprint(ctx context.Context, user string, n int) ([]Candidate, error)
}

// LibraryStore is the read side of the media library.
type LibraryStore interface {
	// GetByID returns the item with key or an error wrapping [shared.ErrItemNotFound].
	GetByID(ctx context.Context, key string) (*Item, error)
	// Search runs a text query over the library.
	Search(ctx context.Context, q SearchQuery) ([]Item, error)
	// ListChildren enumerates the playable tracks beneath a container visible to user.
	ListChildren(ctx context.Context, container Item, recursive bool, user *User) ([]Item, error)
	// IsVisible reports whether user may see the item.
	IsVisible(ctx context.Context, item Item, user *User) (bool, error)
	// Sample returns up to limit randomly chosen items of kind visible to user.
	Sample(ctx context.Context, kind ItemKind, user *User, limit int) ([]Item, error)
}

// PlaylistStore mutates owner playlists on the media server.
type PlaylistStore interface {
	ListPlaylists(ctx context.Context, owner string) ([]Playlist, error)
	CreatePlaylist(ctx context.Context, name, owner string, keys []string) (*Playlist, error)
	// ManageableItems returns the removable entries of a playlist, or an error wrapping
	// [shared.ErrPlaylistNotFound] when the playlist no longer exists.
	ManageableItems(ctx context.Context, playlistID string) ([]PlaylistEntry, error)
	RemoveItems(ctx context.Context, playlistID string, handles []string) error
	AddItems(ctx context.Context, playlistID string, keys []string, owner string) error
}

// UserDirectory lists the accounts a sweep iterates over.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]User, error)
}
