// Package models defines domain entities and collaborator interfaces for the musemix engine.
//
// The package contains three categories of types:
//
// 1. Library values: lightweight structs describing media server data
//   - [Item] : a library entry tagged with its [ItemKind]
//   - [User] : a media server account, used as the visibility context and playlist owner
//   - [Playlist] and [PlaylistEntry] : owned playlists and their removable entries
//
// 2. Backend values: transient records produced by the similarity backend
//   - [Candidate] : an unresolved recommendation (foreign id, title, artist, distance)
//   - [ResolvedItem] : a candidate mapped onto a library [Item]
//
// 3. Persistent Entities: database-backed sweep history
//   - [SyncRun] : one fingerprint sweep with its per-owner [SyncOutcome] list
//
// Persistent entities implement the [Model] interface providing ID generation, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
//
// [SimilarityClient], [LibraryStore], [PlaylistStore] and [UserDirectory] describe the external
// collaborators consumed by the mix and tasks packages.
package models
