package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/musemix/internal/services"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// BackendHealth checks that the backend answers GET /.
func (r *Runner) BackendHealth(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.backend.Relay(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: backend answered %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	return r.writePlain("✓ Backend healthy (%s)\n", r.config.Backend.URL)
}

// BackendGet makes a direct GET request to the backend.
func (r *Runner) BackendGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}

	query := url.Values{}
	for _, kv := range cmd.StringSlice("query") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: query %q is not key=value", shared.ErrInvalidFlag, kv)
		}
		query.Add(key, value)
	}

	r.logger.Info("GET request", "path", path)
	resp, err := r.backend.Relay(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// BackendPost makes a direct POST request to the backend.
func (r *Runner) BackendPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path is required", shared.ErrMissingArgument)
	}
	return r.postJSON(ctx, path, cmd.String("data"))
}

// BackendAnalysis starts an analysis task.
func (r *Runner) BackendAnalysis(ctx context.Context, cmd *cli.Command) error {
	return r.postJSON(ctx, analysisTask.path, cmd.String("data"))
}

// BackendClustering starts a clustering task.
func (r *Runner) BackendClustering(ctx context.Context, cmd *cli.Command) error {
	return r.postJSON(ctx, clusteringTask.path, cmd.String("data"))
}

func (r *Runner) postJSON(ctx context.Context, path, data string) error {
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
	}

	r.logger.Info("POST request", "path", path)
	resp, err := r.backend.Relay(ctx, http.MethodPost, path, nil, []byte(data))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writeResponse(resp, true)
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if err := resp.Err(); err != nil {
		return err
	}
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	if _, err := r.output.Write(resp.Body); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return r.writePlain("\n")
}
