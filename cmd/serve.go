package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/musemix/internal/server"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/desertthunder/musemix/internal/tasks"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// backendTask is a backend job that serve can start on a schedule.
type backendTask struct {
	name string
	path string
}

var (
	analysisTask   = backendTask{name: "analysis", path: "/api/analysis/start"}
	clusteringTask = backendTask{name: "clustering", path: "/api/clustering/start"}
)

// Serve runs the HTTP service until ctx is cancelled.
//
// When the sweep interval is positive a fingerprint sweep also runs on that schedule; scheduled
// sweeps that find one already running are skipped. Backend analysis and clustering are started
// on their own intervals when configured.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	interval := r.config.Sync.Interval
	if cmd.IsSet("interval") {
		interval = cmd.Duration("interval")
	}

	history, closeDB, err := r.openHistory()
	if err != nil {
		r.logger.Warn("sync history unavailable, runs will not be recorded", "err", err)
	} else {
		defer closeDB()
	}
	sweeper := r.sweeper(history)

	srv := server.New(r.aggregator(), r.backend, r.config.Mix.DefaultLimit,
		server.WithSweeps(ctx, sweeper),
		server.WithLogger(r.logger),
		server.WithVersion(version),
	)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if interval > 0 {
		go r.scheduleSweeps(ctx, sweeper, interval)
	}
	if d := r.config.Backend.AnalysisInterval; d > 0 {
		go r.scheduleBackendTask(ctx, analysisTask, d)
	}
	if d := r.config.Backend.ClusteringInterval; d > 0 {
		go r.scheduleBackendTask(ctx, clusteringTask, d)
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", addr, "sweep_interval", interval)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (r *Runner) scheduleSweeps(ctx context.Context, sweeper *tasks.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := sweeper.Run(ctx, "schedule", nil)
			switch {
			case errors.Is(err, shared.ErrSweepInProgress):
				r.logger.Info("scheduled sweep skipped, one is already running")
			case run == nil:
				r.logger.Error("scheduled sweep failed", "err", err)
			default:
				done, skipped, failed := run.Counts()
				r.logger.Info("scheduled sweep finished", "status", run.Status(), "done", done, "skipped", skipped, "failed", failed)
			}
		}
	}
}

// startBackendTask posts an empty request body to the task's start endpoint.
func (r *Runner) startBackendTask(ctx context.Context, task backendTask) error {
	resp, err := r.backend.Relay(ctx, http.MethodPost, task.path, nil, []byte("{}"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return resp.Err()
}

func (r *Runner) scheduleBackendTask(ctx context.Context, task backendTask, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.startBackendTask(ctx, task); err != nil {
				r.logger.Error("scheduled backend task failed", "task", task.name, "err", err)
				continue
			}
			r.logger.Info("scheduled backend task started", "task", task.name)
		}
	}
}
