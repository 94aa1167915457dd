package tasks

import (
	"fmt"

	"github.com/desertthunder/musemix/internal/models"
)

// ProgressUpdate represents a progress event during a sweep.
//
// Used to send real-time updates to the CLI or server layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data, e.g. a [models.SyncOutcome]
}

// Operation phase enumeration
type Phase int

const (
	FetchUsers Phase = iota
	FetchFingerprint
	SyncPlaylist
	OwnerFinished
	SweepFinished
)

func (p Phase) String() string {
	switch p {
	case FetchUsers:
		return "fetch_users"
	case FetchFingerprint:
		return "fetch_fingerprint"
	case SyncPlaylist:
		return "sync_playlist"
	case OwnerFinished:
		return "owner_finished"
	case SweepFinished:
		return "sweep_finished"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchUsersUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchUsers, Step: 0, Total: 1, Message: "Fetching users..."}
}

func fingerprintUpdate(step, total int, user string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFingerprint,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Generating sonic fingerprint for %s...", step, total, user),
	}
}

func syncPlaylistUpdate(step, total int, target models.SyncTarget) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Updating %s (%d tracks)...", step, total, target.Playlist, len(target.Items)),
	}
}

func ownerFinishedUpdate(step, total int, o models.SyncOutcome) ProgressUpdate {
	mark := "✓"
	switch o.State {
	case models.SyncSkipped:
		mark = "-"
	case models.SyncFailed:
		mark = "✗"
	}
	msg := fmt.Sprintf("[%d/%d] %s %s", step, total, mark, o.Playlist)
	if o.Err != nil {
		msg += ": " + o.Err.Error()
	}
	return ProgressUpdate{Phase: OwnerFinished, Step: step, Total: total, Message: msg, Data: o}
}

func sweepFinishedUpdate(run *models.SyncRun) ProgressUpdate {
	done, skipped, failed := run.Counts()
	total := len(run.Outcomes())
	return ProgressUpdate{
		Phase:   SweepFinished,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Sweep %s: %d updated, %d skipped, %d failed", run.Status(), done, skipped, failed),
		Data:    run,
	}
}
