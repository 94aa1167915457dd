package models

import (
	"fmt"
	"time"
)

// SyncState is the terminal state of one owner's playlist sync.
type SyncState string

const (
	SyncDone    SyncState = "done"
	SyncSkipped SyncState = "skipped"
	SyncFailed  SyncState = "failed"
)

// SyncTarget is the input of one playlist sync. It is built fresh for every invocation.
type SyncTarget struct {
	Owner    string
	Playlist string
	Items    []string
}

// SyncOutcome reports how one owner's sync ended.
type SyncOutcome struct {
	Owner      string
	Playlist   string
	PlaylistID string
	State      SyncState
	Created    bool
	Attempts   int
	Items      int
	Err        error
}

// ErrorMessage returns the failure text or "".
func (o SyncOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunFailed    = "failed"
)

// SyncRun is a persisted record of one fingerprint sweep.
type SyncRun struct {
	id           string
	sequence     int
	trigger      string
	status       string
	errorMessage string
	startedAt    time.Time
	completedAt  *time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
	outcomes     []SyncOutcome
}

// NewSyncRun creates a running sweep record started now.
func NewSyncRun(sequence int, trigger string) *SyncRun {
	now := time.Now()
	return &SyncRun{
		sequence:  sequence,
		trigger:   trigger,
		status:    RunRunning,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *SyncRun) ID() string { return r.id }
func (r *SyncRun) Sequence() int { return r.sequence }
func (r *SyncRun) Trigger() string { return r.trigger }
func (r *SyncRun) Status() string { return r.status }
func (r *SyncRun) ErrorMessage() string { return r.errorMessage }
func (r *SyncRun) StartedAt() time.Time { return r.startedAt }
func (r *SyncRun) CompletedAt() *time.Time { return r.completedAt }
func (r *SyncRun) CreatedAt() time.Time { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.updatedAt }
func (r *SyncRun) DeletedAt() *time.Time { return r.deletedAt }
func (r *SyncRun) Outcomes() []SyncOutcome { return r.outcomes }
func (r *SyncRun) SetID(id string) { r.id = id }
func (r *SyncRun) SetSequence(seq int) { r.sequence = seq }
func (r *SyncRun) SetStatus(status string) { r.status = status }
func (r *SyncRun) SetErrorMessage(m string) { r.errorMessage = m }
func (r *SyncRun) SetStartedAt(t time.Time) { r.startedAt = t }
func (r *SyncRun) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *SyncRun) SetUpdatedAt(t time.Time) { r.updatedAt = t }

func (r *SyncRun) SetCompletedAt(t *time.Time) { r.completedAt = t }
func (r *SyncRun) SetDeletedAt(t *time.Time) { r.deletedAt = t }

// AddOutcome appends an owner outcome in processing order.
func (r *SyncRun) AddOutcome(o SyncOutcome) {
	r.outcomes = append(r.outcomes, o)
}

// SetOutcomes replaces the outcome list.
func (r *SyncRun) SetOutcomes(outcomes []SyncOutcome) {
	r.outcomes = outcomes
}

// Counts tallies outcomes by state.
func (r *SyncRun) Counts() (done, skipped, failed int) {
	for _, o := range r.outcomes {
		switch o.State {
		case SyncDone:
			done++
		case SyncSkipped:
			skipped++
		case SyncFailed:
			failed++
		}
	}
	return done, skipped, failed
}

// Finish marks the run completed with status, stamping completion time.
func (r *SyncRun) Finish(status string, err error) {
	now := time.Now()
	r.status = status
	r.completedAt = &now
	r.updatedAt = now
	if err != nil {
		r.errorMessage = err.Error()
	}
}

// Validate checks required fields.
func (r *SyncRun) Validate() error {
	if r.id == "" {
		return fmt.Errorf("sync run id is required")
	}
	if r.trigger == "" {
		return fmt.Errorf("sync run trigger is required")
	}
	switch r.status {
	case RunRunning, RunCompleted, RunCancelled, RunFailed:
	default:
		return fmt.Errorf("invalid sync run status: %q", r.status)
	}
	for i, o := range r.outcomes {
		if o.Owner == "" {
			return fmt.Errorf("outcome %d has no owner", i)
		}
	}
	return nil
}
