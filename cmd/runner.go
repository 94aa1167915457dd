package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/mix"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/repositories"
	"github.com/desertthunder/musemix/internal/services"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/desertthunder/musemix/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// Backend is the similarity backend as the commands use it.
type Backend interface {
	models.SimilarityClient
	Relay(ctx context.Context, method, path string, query url.Values, body []byte) (*services.APIResponse, error)
}

// MediaServer is the library, playlist and user side of the media server.
type MediaServer interface {
	models.LibraryStore
	models.PlaylistStore
	models.UserDirectory
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	backend    Backend
	media      MediaServer
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	locks      *tasks.LockRegistry
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Backend and Media are built from the loaded config when left nil.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Backend    Backend
	Media      MediaServer
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		backend:    opts.Backend,
		media:      opts.Media,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		locks:      tasks.NewLockRegistry(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, mixCommand, syncCommand, backendCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration named by --config and connects the remote services.
//
// A missing config file keeps the embedded defaults; an unreadable or invalid one is an error.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if err := r.loadConfig(); err != nil {
		return ctx, err
	}

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Log.Level
	}
	if level != "" && !shared.SetLogLevelString(r.logger, level) {
		r.logger.Warn("unknown log level, keeping default", "level", level)
	}

	r.connect()
	return ctx, nil
}

func (r *Runner) loadConfig() error {
	if r.configPath == "" {
		return nil
	}
	if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return err
	}
	r.config = config
	return nil
}

func (r *Runner) connect() {
	if r.backend == nil {
		r.backend = services.NewAudioMuseService(r.config.Backend, r.logger)
	}
	if r.media == nil {
		r.media = services.NewJellyfinService(r.config.MediaServer, r.httpClient, r.logger)
	}
}

func (r *Runner) aggregator() *mix.Aggregator {
	return mix.NewAggregator(r.backend, r.media, mix.ConfigFrom(r.config.Mix, r.config.Backend), mix.WithLogger(r.logger))
}

func (r *Runner) manager() *tasks.Manager {
	return tasks.NewManager(r.media, r.locks, tasks.ManagerConfigFrom(r.config.Sync), r.logger)
}

// sweeper builds a sweeper that records runs in history when it is non-nil.
func (r *Runner) sweeper(history *repositories.SyncRunRepository) *tasks.Sweeper {
	opts := []tasks.SweepOption{tasks.WithSweepLogger(r.logger)}
	if history != nil {
		opts = append(opts, tasks.WithHistory(history))
	}
	return tasks.NewSweeper(r.media, r.backend, r.manager(), tasks.SweepConfigFrom(r.config.Sync), opts...)
}

// openHistory opens the configured database, applies pending migrations and returns the sync
// run repository with a function that closes the database.
func (r *Runner) openHistory() (*repositories.SyncRunRepository, func(), error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repositories.NewSyncRunRepository(db), func() { db.Close() }, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
