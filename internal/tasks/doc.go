// Package tasks keeps owner playlists in sync with freshly computed track lists.
//
// # Playlist sync
//
// [Manager.Sync] drives one owner's playlist through
//
//	ACQUIRE_OWNER_LOCK -> LOCATE_OR_CREATE -> [CLEARING <-> VERIFY] -> REPLACE -> DONE
//
// ending in SKIPPED when the owner is busy and FAILED when the playlist vanishes, never empties
// within the configured attempts, or a store call fails. Owner locks come from a [LockRegistry]
// passed in by the caller and are only ever try-acquired.
//
// # Sweeps
//
// [Sweeper] runs a sync per owner under a global skip-don't-queue lock: an in-process flag plus
// an optional lock file shared with other processes. [Sweeper.Run] builds each target from the
// user's sonic fingerprint; [Sweeper.SyncTargets] takes prepared targets. Runs are recorded via an
// optional [RunStore].
//
// # Progress Reporting
//
// Sweeps report [ProgressUpdate] values over a caller-supplied channel. Sends never block: a full
// channel drops the update.
package tasks
