package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/metrics"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
)

// ManagerConfig bounds the clear-with-verify loop.
type ManagerConfig struct {
	ClearAttempts int
	RetryDelay    time.Duration
}

// ManagerConfigFrom reads the loop bounds from the sync configuration.
func ManagerConfigFrom(c shared.SyncConfig) ManagerConfig {
	return ManagerConfig{ClearAttempts: c.ClearAttempts, RetryDelay: c.RetryDelay}
}

// Manager replaces the contents of owner playlists.
//
// Every [Manager.Sync] call takes the owner's lock from the registry without waiting, so two
// overlapping syncs for one owner never interleave mutations.
type Manager struct {
	store  models.PlaylistStore
	locks  *LockRegistry
	cfg    ManagerConfig
	logger *log.Logger
}

// NewManager creates a sync manager. A nil registry gets a private one.
func NewManager(store models.PlaylistStore, locks *LockRegistry, cfg ManagerConfig, logger *log.Logger) *Manager {
	if locks == nil {
		locks = NewLockRegistry()
	}
	if cfg.ClearAttempts <= 0 {
		cfg.ClearAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Manager{store: store, locks: locks, cfg: cfg, logger: shared.WithLogger(logger, "component", "sync")}
}

// Locks returns the registry the manager locks owners with.
func (m *Manager) Locks() *LockRegistry { return m.locks }

// Sync makes the owner's playlist named target.Playlist hold exactly target.Items in order.
//
// A busy owner is SKIPPED. A missing playlist is created with the items. An existing one is
// cleared, verified empty and refilled; a playlist that vanishes or never empties is FAILED
// without any add.
func (m *Manager) Sync(ctx context.Context, target models.SyncTarget) models.SyncOutcome {
	outcome := m.sync(ctx, target)
	metrics.SyncOutcomes.WithLabelValues(string(outcome.State)).Inc()
	return outcome
}

func (m *Manager) sync(ctx context.Context, target models.SyncTarget) models.SyncOutcome {
	outcome := models.SyncOutcome{Owner: target.Owner, Playlist: target.Playlist}
	fail := func(err error) models.SyncOutcome {
		outcome.State = models.SyncFailed
		outcome.Err = err
		return outcome
	}

	if target.Owner == "" || target.Playlist == "" {
		return fail(fmt.Errorf("%w: owner and playlist name are required", shared.ErrMissingArgument))
	}

	logger := m.logger.With("owner", target.Owner, "playlist", target.Playlist)

	release, ok := m.locks.TryLock(target.Owner)
	if !ok {
		logger.Warn("playlist update already in progress for owner, skipping")
		outcome.State = models.SyncSkipped
		outcome.Err = shared.ErrOwnerBusy
		return outcome
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	existing, err := m.locate(ctx, target)
	if err != nil {
		return fail(fmt.Errorf("failed to list playlists: %w", err))
	}

	if existing == nil {
		logger.Info("creating playlist", "items", len(target.Items))
		pl, err := m.store.CreatePlaylist(ctx, target.Playlist, target.Owner, target.Items)
		if err != nil {
			return fail(fmt.Errorf("failed to create playlist: %w", err))
		}
		outcome.PlaylistID = pl.ID
		outcome.Created = true
		outcome.Items = len(target.Items)
		outcome.State = models.SyncDone
		return outcome
	}

	outcome.PlaylistID = existing.ID
	attempts, err := m.clear(ctx, logger, target.Owner, existing.ID)
	outcome.Attempts = attempts
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if len(target.Items) > 0 {
		logger.Info("adding items to playlist", "items", len(target.Items))
		if err := m.store.AddItems(ctx, existing.ID, target.Items, target.Owner); err != nil {
			return fail(fmt.Errorf("failed to add items: %w", err))
		}
	}

	outcome.Items = len(target.Items)
	outcome.State = models.SyncDone
	logger.Info("playlist updated", "items", outcome.Items, "attempts", attempts)
	return outcome
}

// locate finds the owner's playlist by case-insensitive exact name. A nil playlist means none exists.
func (m *Manager) locate(ctx context.Context, target models.SyncTarget) (*models.Playlist, error) {
	playlists, err := m.store.ListPlaylists(ctx, target.Owner)
	if err != nil {
		return nil, err
	}
	for _, pl := range playlists {
		if strings.EqualFold(pl.Name, target.Playlist) {
			return &pl, nil
		}
	}
	return nil, nil
}

// clear empties the playlist, re-reading it after every removal. It returns the attempts used.
func (m *Manager) clear(ctx context.Context, logger *log.Logger, owner, playlistID string) (int, error) {
	for attempt := 1; attempt <= m.cfg.ClearAttempts; attempt++ {
		entries, err := m.entries(ctx, playlistID)
		if err != nil {
			return attempt, err
		}
		if len(entries) == 0 {
			logger.Debug("playlist is empty", "attempt", attempt)
			return attempt, nil
		}

		handles := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Handle != "" {
				handles = append(handles, e.Handle)
			}
		}
		logger.Info("removing items from playlist", "items", len(handles), "attempt", attempt)
		if err := m.store.RemoveItems(ctx, playlistID, handles); err != nil {
			if errors.Is(err, shared.ErrPlaylistNotFound) {
				return attempt, fmt.Errorf("%w: %s", shared.ErrPlaylistVanished, playlistID)
			}
			return attempt, fmt.Errorf("failed to remove items: %w", err)
		}

		// The playlist reference may be stale after a removal, so it is looked up again by id.
		if err := m.verifyExists(ctx, owner, playlistID); err != nil {
			return attempt, err
		}
		remaining, err := m.entries(ctx, playlistID)
		if err != nil {
			return attempt, err
		}
		if len(remaining) == 0 {
			return attempt, nil
		}

		if attempt == m.cfg.ClearAttempts {
			logger.Error("failed to clear playlist", "attempts", attempt, "remaining", len(remaining))
			return attempt, fmt.Errorf("%w: %d items remain after %d attempts", shared.ErrClearNotConverged, len(remaining), attempt)
		}
		logger.Warn("playlist still has items, retrying", "remaining", len(remaining), "delay", m.cfg.RetryDelay)
		if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
			return attempt, err
		}
	}
	return m.cfg.ClearAttempts, nil
}

func (m *Manager) entries(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	entries, err := m.store.ManageableItems(ctx, playlistID)
	if errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistVanished, playlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist items: %w", err)
	}
	return entries, nil
}

func (m *Manager) verifyExists(ctx context.Context, owner, playlistID string) error {
	playlists, err := m.store.ListPlaylists(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to re-read playlists: %w", err)
	}
	for _, pl := range playlists {
		if pl.ID == playlistID {
			return nil
		}
	}
	m.logger.Error("playlist disappeared during update", "owner", owner, "playlist_id", playlistID)
	return fmt.Errorf("%w: %s", shared.ErrPlaylistVanished, playlistID)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
