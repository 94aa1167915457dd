// Package services implements the HTTP collaborators consumed by the mix and tasks packages.
//
// # Similarity Backend
//
// [AudioMuseService] implements [models.SimilarityClient] against the AudioMuse AI backend:
//   - QuerySimilar : GET /api/similar_tracks by item id or by title and artist
//   - QueryFingerprint : GET /api/sonic_fingerprint/generate for one user
//   - Relay : raw pass-through used by the /AudioMuseAI proxy routes
//
// Candidate payloads are decoded by [DecodeCandidates], which accepts the field spellings the
// backend has used over time (item_id/Id, title/name/Name, artist/author/Artist/Artists).
//
// Every backend call runs through a [gobreaker.CircuitBreaker]. Consecutive transport failures
// and 5xx responses open it; while open, calls fail fast with [shared.ErrTransport].
// An optional bearer token is attached through an oauth2 static token source.
//
// # Media Server
//
// [JellyfinService] implements [models.LibraryStore], [models.PlaylistStore] and
// [models.UserDirectory] over the Jellyfin REST API, authenticating with the X-Emby-Token header.
//
// # Raw Requests
//
// [APIService] performs unauthenticated-by-default requests and returns status, headers and body
// without interpretation.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTransport] : network failure, timeout or open circuit breaker
//   - [shared.ErrAPIRequest] : non-2xx response, always as a [*StatusError] with code and body
//   - [shared.ErrItemNotFound] : unknown library key
//   - [shared.ErrPlaylistNotFound] : playlist vanished
package services
