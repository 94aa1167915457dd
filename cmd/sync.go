package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a recorded sync run.
type runView struct {
	ID          string        `json:"id"`
	Sequence    int           `json:"sequence"`
	Trigger     string        `json:"trigger"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Outcomes    []outcomeView `json:"outcomes"`
}

type outcomeView struct {
	Owner      string `json:"owner"`
	Playlist   string `json:"playlist"`
	PlaylistID string `json:"playlist_id,omitempty"`
	State      string `json:"state"`
	Created    bool   `json:"created"`
	Attempts   int    `json:"attempts"`
	Items      int    `json:"items"`
	Error      string `json:"error,omitempty"`
}

func newRunView(run *models.SyncRun) runView {
	v := runView{
		ID:          run.ID(),
		Sequence:    run.Sequence(),
		Trigger:     run.Trigger(),
		Status:      run.Status(),
		Error:       run.ErrorMessage(),
		StartedAt:   run.StartedAt(),
		CompletedAt: run.CompletedAt(),
		Outcomes:    []outcomeView{},
	}
	for _, o := range run.Outcomes() {
		v.Outcomes = append(v.Outcomes, outcomeView{
			Owner:      o.Owner,
			Playlist:   o.Playlist,
			PlaylistID: o.PlaylistID,
			State:      string(o.State),
			Created:    o.Created,
			Attempts:   o.Attempts,
			Items:      o.Items,
			Error:      o.ErrorMessage(),
		})
	}
	return v
}

// SyncFingerprint runs one fingerprint sweep over every media server user.
//
// Progress is printed as the sweep advances. The run is recorded in the database unless
// --no-history is set or the database cannot be opened.
func (r *Runner) SyncFingerprint(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	var sweeper *tasks.Sweeper
	if cmd.Bool("no-history") {
		sweeper = r.sweeper(nil)
	} else {
		history, closeDB, err := r.openHistory()
		if err != nil {
			r.logger.Warn("sync history unavailable, run will not be recorded", "err", err)
			sweeper = r.sweeper(nil)
		} else {
			defer closeDB()
			sweeper = r.sweeper(history)
		}
	}

	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if useJSON {
				r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
				continue
			}
			r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
		}
	}()

	run, err := sweeper.Run(ctx, "cli", progress)
	close(progress)
	<-done

	if run == nil {
		return fmt.Errorf("fingerprint sweep did not run: %w", err)
	}
	if useJSON {
		return r.writeJSON(newRunView(run), true)
	}

	r.printRun(run)
	return err
}

// SyncHistory lists recorded sweeps.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	history, closeDB, err := r.openHistory()
	if err != nil {
		return fmt.Errorf("failed to open sync history: %w", err)
	}
	defer closeDB()

	runs, err := history.List(map[string]any{
		"limit":   cmd.Int("limit"),
		"status":  cmd.String("status"),
		"trigger": cmd.String("trigger"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, newRunView(run))
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded\n")
	}
	for _, run := range runs {
		r.printRun(run)
	}
	return nil
}

func (r *Runner) printRun(run *models.SyncRun) {
	done, skipped, failed := run.Counts()
	r.writePlainHeader(fmt.Sprintf("Sync run #%d (%s) %s", run.Sequence(), run.Trigger(), run.Status()))
	r.writePlain("Started: %s\n", run.StartedAt().Format(time.RFC3339))
	if completed := run.CompletedAt(); completed != nil {
		r.writePlain("Finished: %s (%s)\n", completed.Format(time.RFC3339), completed.Sub(run.StartedAt()).Round(time.Millisecond))
	}
	if msg := run.ErrorMessage(); msg != "" {
		r.writePlain("Error: %s\n", msg)
	}
	r.writePlain("Owners: %d done, %d skipped, %d failed\n", done, skipped, failed)

	for _, o := range run.Outcomes() {
		line := fmt.Sprintf("  %-8s %s (%d tracks)", o.State, o.Playlist, o.Items)
		if msg := o.ErrorMessage(); msg != "" {
			line += ": " + msg
		}
		r.writePlain("%s\n", line)
	}
	r.writePlain("\n")
}
