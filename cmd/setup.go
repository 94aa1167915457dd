package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/musemix/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if r.configPath == "" {
		return fmt.Errorf("%w: --config must name a file", shared.ErrMissingArgument)
	}
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Configuration written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set backend.url, media_server.url and media_server.api_key\n")
	r.writePlain("2. Run 'musemix setup database' to create the sync history database\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := shared.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, version)
	return nil
}
