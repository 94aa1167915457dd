package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
)

var ErrSyncRunNotFound = errors.New("sync run not found")

// SyncRunRepository implements models.Repository[*models.SyncRun] for sweep history.
//
// Outcomes are stored in sync_outcomes and rewritten as a whole on every update.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

const syncRunColumns = `
	id, sequence, trigger, status, error_message, started_at,
	completed_at, created_at, updated_at, deleted_at
`

// Create inserts a new sweep run with a generated ID and sequence
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	done, skipped, failed := run.Counts()
	_, err = tx.Exec(`
		INSERT INTO sync_runs (
			id, sequence, trigger, status, owners_total, owners_done,
			owners_skipped, owners_failed, error_message, started_at,
			completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID(),
		sequence,
		run.Trigger(),
		run.Status(),
		len(run.Outcomes()),
		done,
		skipped,
		failed,
		nullString(run.ErrorMessage()),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	if err := insertOutcomes(tx, run); err != nil {
		return err
	}

	return tx.Commit()
}

// Get retrieves a sweep run and its outcomes by ID, excluding soft-deleted runs
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	query := "SELECT" + syncRunColumns + "FROM sync_runs WHERE id = ? AND deleted_at IS NULL"

	run, err := scanSyncRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSyncRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	if err := r.loadOutcomes(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Update rewrites the run row and replaces its outcomes
func (r *SyncRunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	done, skipped, failed := run.Counts()
	result, err := tx.Exec(`
		UPDATE sync_runs
		SET status = ?, owners_total = ?, owners_done = ?, owners_skipped = ?,
			owners_failed = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		run.Status(),
		len(run.Outcomes()),
		done,
		skipped,
		failed,
		nullString(run.ErrorMessage()),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSyncRunNotFound, run.ID())
	}

	if _, err := tx.Exec("DELETE FROM sync_outcomes WHERE run_id = ?", run.ID()); err != nil {
		return fmt.Errorf("failed to clear outcomes: %w", err)
	}
	if err := insertOutcomes(tx, run); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete soft-deletes a sweep run by ID
func (r *SyncRunRepository) Delete(id string) error {
	result, err := r.db.Exec("UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSyncRunNotFound, id)
	}

	return nil
}

// List retrieves runs newest first. Supported criteria: "status" and "trigger" (string), "limit" (int).
func (r *SyncRunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := "SELECT" + syncRunColumns + "FROM sync_runs WHERE deleted_at IS NULL"
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if trigger, ok := criteria["trigger"].(string); ok && trigger != "" {
		query += " AND trigger = ?"
		args = append(args, trigger)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	// Outcomes are loaded after the cursor closes; a single-connection pool would block otherwise.
	rows.Close()

	for _, run := range runs {
		if err := r.loadOutcomes(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Latest returns the most recent run, or nil when there is none.
func (r *SyncRunRepository) Latest() (*models.SyncRun, error) {
	runs, err := r.List(map[string]any{"limit": 1})
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

func (r *SyncRunRepository) loadOutcomes(run *models.SyncRun) error {
	rows, err := r.db.Query(`
		SELECT owner, playlist_name, playlist_id, state, created, attempts, items, error_message
		FROM sync_outcomes
		WHERE run_id = ?
		ORDER BY position
	`, run.ID())
	if err != nil {
		return fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.SyncOutcome
	for rows.Next() {
		var (
			o            models.SyncOutcome
			playlistID   sql.NullString
			state        string
			errorMessage sql.NullString
		)
		if err := rows.Scan(&o.Owner, &o.Playlist, &playlistID, &state, &o.Created, &o.Attempts, &o.Items, &errorMessage); err != nil {
			return fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.State = models.SyncState(state)
		o.PlaylistID = playlistID.String
		if errorMessage.Valid {
			o.Err = errors.New(errorMessage.String)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	run.SetOutcomes(outcomes)
	return nil
}

func insertOutcomes(tx *sql.Tx, run *models.SyncRun) error {
	now := time.Now()
	for i, o := range run.Outcomes() {
		_, err := tx.Exec(`
			INSERT INTO sync_outcomes (
				id, run_id, position, owner, playlist_name, playlist_id,
				state, created, attempts, items, error_message, created_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			shared.GenerateID(),
			run.ID(),
			i,
			o.Owner,
			o.Playlist,
			nullString(o.PlaylistID),
			string(o.State),
			o.Created,
			o.Attempts,
			o.Items,
			nullString(o.ErrorMessage()),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.Owner, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSyncRun scans one sync_runs row into a [models.SyncRun]
func scanSyncRun(row scanner) (*models.SyncRun, error) {
	var (
		id           string
		sequence     int
		trigger      string
		status       string
		errorMessage sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &trigger, &status, &errorMessage, &startedAt,
		&completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	run := models.NewSyncRun(sequence, trigger)
	run.SetID(id)
	run.SetStatus(status)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if errorMessage.Valid {
		run.SetErrorMessage(errorMessage.String)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
