package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/metrics"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// RunStore persists sweep history.
type RunStore interface {
	Create(run *models.SyncRun) error
	Update(run *models.SyncRun) error
}

// SweepConfig holds the fingerprint sweep settings.
type SweepConfig struct {
	PlaylistSuffix   string
	FingerprintLimit int
	Shuffle          bool
	// LockPath names a file lock shared with other processes. Empty keeps exclusivity in-process.
	LockPath string
}

// SweepConfigFrom reads the sweep settings from the sync configuration.
func SweepConfigFrom(c shared.SyncConfig) SweepConfig {
	return SweepConfig{
		PlaylistSuffix:   c.PlaylistSuffix,
		FingerprintLimit: c.FingerprintLimit,
		Shuffle:          c.Shuffle,
		LockPath:         c.LockPath,
	}
}

// Sweeper runs playlist syncs over many owners, one sweep at a time.
type Sweeper struct {
	users      models.UserDirectory
	similarity models.SimilarityClient
	manager    *Manager
	history    RunStore
	cfg        SweepConfig
	logger     *log.Logger

	running  atomic.Bool
	fileLock *flock.Flock

	randMu sync.Mutex
	rand   *rand.Rand
}

// SweepOption configures a [Sweeper].
type SweepOption func(*Sweeper)

// WithHistory records every sweep in store.
func WithHistory(store RunStore) SweepOption {
	return func(s *Sweeper) { s.history = store }
}

// WithSweepRand sets the random source used to shuffle fingerprint tracks.
func WithSweepRand(r *rand.Rand) SweepOption {
	return func(s *Sweeper) { s.rand = r }
}

// WithSweepLogger sets the logger.
func WithSweepLogger(l *log.Logger) SweepOption {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper creates a sweeper that writes through manager.
func NewSweeper(users models.UserDirectory, similarity models.SimilarityClient, manager *Manager, cfg SweepConfig, opts ...SweepOption) *Sweeper {
	if cfg.PlaylistSuffix == "" {
		cfg.PlaylistSuffix = "-fingerprint"
	}
	s := &Sweeper{
		users:      users,
		similarity: similarity,
		manager:    manager,
		cfg:        cfg,
		logger:     shared.DiscardLogger(),
		rand:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = shared.WithLogger(s.logger, "component", "sweep")
	if cfg.LockPath != "" {
		s.fileLock = flock.New(cfg.LockPath)
	}
	return s
}

// Running reports whether a sweep holds the in-process lock.
func (s *Sweeper) Running() bool { return s.running.Load() }

// PlaylistName returns the fingerprint playlist name for a user.
func (s *Sweeper) PlaylistName(user models.User) string {
	return user.Name + s.cfg.PlaylistSuffix
}

// Run refreshes every user's fingerprint playlist.
//
// A sweep already running here or in another process holding the lock file yields
// [shared.ErrSweepInProgress] and no mutations. Per-owner failures are reported in the run's
// outcomes. Cancellation before the first owner aborts the sweep; later cancellation fails the
// current and remaining owners and the run ends cancelled.
func (s *Sweeper) Run(ctx context.Context, trigger string, progress chan<- ProgressUpdate) (*models.SyncRun, error) {
	return s.exclusive(ctx, trigger, progress, func(run *models.SyncRun) error {
		sendProgress(progress, fetchUsersUpdate())
		users, err := s.users.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		if len(users) == 0 {
			s.logger.Info("no users found to process")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		for i, user := range users {
			outcome := s.fingerprintOwner(ctx, progress, i+1, len(users), user)
			run.AddOutcome(outcome)
			sendProgress(progress, ownerFinishedUpdate(i+1, len(users), outcome))
		}
		return nil
	})
}

// SyncTargets applies each target in order under the same exclusivity and cancellation rules as
// [Sweeper.Run].
func (s *Sweeper) SyncTargets(ctx context.Context, trigger string, targets []models.SyncTarget, progress chan<- ProgressUpdate) (*models.SyncRun, error) {
	return s.exclusive(ctx, trigger, progress, func(run *models.SyncRun) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, target := range targets {
			sendProgress(progress, syncPlaylistUpdate(i+1, len(targets), target))
			outcome := s.manager.Sync(ctx, target)
			run.AddOutcome(outcome)
			sendProgress(progress, ownerFinishedUpdate(i+1, len(targets), outcome))
		}
		return nil
	})
}

// exclusive runs body while holding the global sweep lock and records the run.
func (s *Sweeper) exclusive(ctx context.Context, trigger string, progress chan<- ProgressUpdate, body func(run *models.SyncRun) error) (*models.SyncRun, error) {
	release, err := s.acquire()
	if err != nil {
		if errors.Is(err, shared.ErrSweepInProgress) {
			s.logger.Info("sweep already running, skipping", "trigger", trigger)
			metrics.SweepRuns.WithLabelValues("contended").Inc()
		}
		return nil, err
	}
	defer release()

	metrics.SweepInProgress.Set(1)
	defer metrics.SweepInProgress.Set(0)

	run := models.NewSyncRun(0, trigger)
	if s.history != nil {
		if err := s.history.Create(run); err != nil {
			s.logger.Warn("failed to record sweep start", "err", err)
		}
	}
	if run.ID() == "" {
		run.SetID(uuid.NewString())
	}

	s.logger.Info("starting sweep", "run", run.ID(), "trigger", trigger)
	bodyErr := body(run)

	switch {
	case ctx.Err() != nil:
		run.Finish(models.RunCancelled, ctx.Err())
	case bodyErr != nil:
		run.Finish(models.RunFailed, bodyErr)
	default:
		run.Finish(models.RunCompleted, nil)
	}
	metrics.SweepRuns.WithLabelValues(run.Status()).Inc()

	if s.history != nil && run.Sequence() > 0 {
		if err := s.history.Update(run); err != nil {
			s.logger.Warn("failed to record sweep result", "run", run.ID(), "err", err)
		}
	}

	done, skipped, failed := run.Counts()
	s.logger.Info("sweep finished", "run", run.ID(), "status", run.Status(), "done", done, "skipped", skipped, "failed", failed)
	sendProgress(progress, sweepFinishedUpdate(run))

	if bodyErr != nil && len(run.Outcomes()) == 0 {
		return run, bodyErr
	}
	return run, nil
}

// acquire takes the in-process flag and, when configured, the lock file. Neither waits.
func (s *Sweeper) acquire() (func(), error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, shared.ErrSweepInProgress
	}
	if s.fileLock == nil {
		return func() { s.running.Store(false) }, nil
	}

	locked, err := s.fileLock.TryLock()
	if err != nil {
		s.running.Store(false)
		return nil, fmt.Errorf("failed to acquire sweep lock %s: %w", s.cfg.LockPath, err)
	}
	if !locked {
		s.running.Store(false)
		return nil, fmt.Errorf("%w: lock %s held by another process", shared.ErrSweepInProgress, s.cfg.LockPath)
	}
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("failed to release sweep lock", "path", s.cfg.LockPath, "err", err)
		}
		s.running.Store(false)
	}, nil
}

// fingerprintOwner fetches one user's fingerprint and syncs it into their playlist.
func (s *Sweeper) fingerprintOwner(ctx context.Context, progress chan<- ProgressUpdate, step, total int, user models.User) models.SyncOutcome {
	name := s.PlaylistName(user)
	outcome := models.SyncOutcome{Owner: user.ID, Playlist: name}
	logger := s.logger.With("user", user.Name)

	sendProgress(progress, fingerprintUpdate(step, total, user.Name))
	candidates, err := s.similarity.QueryFingerprint(ctx, user.Name, s.cfg.FingerprintLimit)
	if err != nil {
		logger.Error("failed to generate sonic fingerprint", "err", err)
		outcome.State = models.SyncFailed
		outcome.Err = err
		metrics.SyncOutcomes.WithLabelValues(string(outcome.State)).Inc()
		return outcome
	}

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if key, ok := shared.CanonicalKey(c.ExternalID); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		logger.Info("sonic fingerprint returned no usable tracks")
		outcome.State = models.SyncSkipped
		metrics.SyncOutcomes.WithLabelValues(string(outcome.State)).Inc()
		return outcome
	}
	if s.cfg.Shuffle {
		s.randMu.Lock()
		s.rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		s.randMu.Unlock()
	}

	target := models.SyncTarget{Owner: user.ID, Playlist: name, Items: keys}
	sendProgress(progress, syncPlaylistUpdate(step, total, target))
	return s.manager.Sync(ctx, target)
}
