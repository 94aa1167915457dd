package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/mix"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/services"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/desertthunder/musemix/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Mixer builds instant mixes.
type Mixer interface {
	Aggregate(ctx context.Context, rootKey string, user *models.User, limit int) (*mix.Result, error)
}

// Relayer forwards raw requests to the similarity backend.
type Relayer interface {
	Relay(ctx context.Context, method, path string, query url.Values, body []byte) (*services.APIResponse, error)
}

// SweepRunner starts fingerprint sweeps.
type SweepRunner interface {
	Run(ctx context.Context, trigger string, progress chan<- tasks.ProgressUpdate) (*models.SyncRun, error)
}

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	mixer        Mixer
	relay        Relayer
	sweeps       SweepRunner
	defaultLimit int
	version      string
	logger       *log.Logger

	// sweepCtx outlives the triggering request; sweeps started over HTTP run in the background.
	sweepCtx context.Context
}

// Option configures a [Server].
type Option func(*Server)

// WithSweeps enables the sweep trigger endpoint.
func WithSweeps(ctx context.Context, s SweepRunner) Option {
	return func(srv *Server) {
		srv.sweeps = s
		srv.sweepCtx = ctx
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithVersion sets the version reported by the info endpoint.
func WithVersion(v string) Option {
	return func(srv *Server) { srv.version = v }
}

// New creates a server. defaultLimit applies when an instant mix request has no limit.
func New(mixer Mixer, relay Relayer, defaultLimit int, opts ...Option) *Server {
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	s := &Server{
		mixer:        mixer,
		relay:        relay,
		defaultLimit: defaultLimit,
		version:      "dev",
		logger:       shared.DiscardLogger(),
		sweepCtx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = shared.WithLogger(s.logger, "component", "server")
	return s
}
