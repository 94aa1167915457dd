package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/musemix/internal/formatter"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/urfave/cli/v3"
)

// Mix builds an instant mix for --item and writes it to stdout or --output.
//
// With --save-as the mix is also stored as a playlist owned by --user. An interrupted mix still
// writes the tracks gathered so far.
func (r *Runner) Mix(ctx context.Context, cmd *cli.Command) error {
	item := cmd.String("item")
	userID := cmd.String("user")
	saveAs := cmd.String("save-as")

	if item == "" {
		return fmt.Errorf("%w: --item is required", shared.ErrMissingArgument)
	}
	if saveAs != "" && userID == "" {
		return fmt.Errorf("%w: --save-as needs --user to own the playlist", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit <= 0 {
		limit = r.config.Mix.DefaultLimit
	}

	var user *models.User
	if userID != "" {
		user = &models.User{ID: userID}
	}

	result, err := r.aggregator().Aggregate(ctx, item, user, limit)
	if err != nil {
		if result == nil {
			return fmt.Errorf("failed to build mix: %w", err)
		}
		r.logger.Warn("mix interrupted, writing partial result", "items", len(result.Items), "err", err)
	}
	if result.Aborted {
		r.logger.Warn("similarity backend unreachable, mix was completed from the library")
	}

	export := formatter.NewMixExport(result)
	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteExport(export, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("mix written", "path", path, "tracks", len(export.Tracks))
	} else {
		data, err := formatter.Render(export, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	if saveAs == "" || ctx.Err() != nil {
		return ctx.Err()
	}

	outcome := r.manager().Sync(ctx, models.SyncTarget{Owner: userID, Playlist: saveAs, Items: result.Keys()})
	switch outcome.State {
	case models.SyncFailed:
		return fmt.Errorf("failed to save playlist %q: %w", saveAs, outcome.Err)
	case models.SyncSkipped:
		r.logger.Warn("playlist not saved", "playlist", saveAs, "reason", outcome.ErrorMessage())
	default:
		r.logger.Info("playlist saved", "playlist", saveAs, "id", outcome.PlaylistID, "created", outcome.Created, "items", outcome.Items)
	}
	return nil
}
