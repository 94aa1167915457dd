package mix

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/metrics"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"golang.org/x/time/rate"
)

// Config holds the aggregation policy.
type Config struct {
	SeedCap     int // maximum seeds taken from a container
	MinViable   int // below this many items the mix is topped up from the library
	SearchLimit int // hits considered by the resolver's metadata search

	// FillToLimit tops up every short mix, not only those below MinViable.
	FillToLimit bool
	// AbortOnTransportFailure abandons the remaining seeds after the first transport failure.
	// Non-2xx answers only ever skip their own seed.
	AbortOnTransportFailure bool
	EliminateDuplicates     bool

	// RequestsPerSecond throttles similarity calls within one run. Zero disables throttling.
	RequestsPerSecond float64
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{SeedCap: 20, MinViable: 5, SearchLimit: 5, AbortOnTransportFailure: true}
}

// ConfigFrom builds a [Config] from the application configuration.
func ConfigFrom(m shared.MixConfig, b shared.BackendConfig) Config {
	return Config{
		SeedCap:                 m.SeedCap,
		MinViable:               m.MinViable,
		SearchLimit:             m.SearchLimit,
		FillToLimit:             m.FillToLimit,
		AbortOnTransportFailure: m.AbortOnTransportFailure,
		RequestsPerSecond:       b.RequestsPerSecond,
	}
}

// Result is the outcome of one aggregation.
type Result struct {
	Root         models.Item
	Items        []models.ResolvedItem
	Seeds        []models.Item
	Anchor       *models.Item
	FromBackend  int
	FromFallback int
	// Aborted is set when a transport failure ended the seed loop early.
	Aborted bool
}

// Keys returns the ordered keys of the mix.
func (r *Result) Keys() []string {
	keys := make([]string, len(r.Items))
	for i, it := range r.Items {
		keys[i] = it.Key
	}
	return keys
}

// Aggregator builds instant mixes. It is safe for concurrent use; every call owns its accumulator.
type Aggregator struct {
	similarity models.SimilarityClient
	library    models.LibraryStore
	resolver   *Resolver
	cfg        Config
	logger     *log.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures an [Aggregator].
type Option func(*Aggregator)

// WithRand sets the random source used for seed shuffling and anchor selection.
func WithRand(r *rand.Rand) Option {
	return func(a *Aggregator) { a.rand = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator over the given collaborators.
func NewAggregator(similarity models.SimilarityClient, library models.LibraryStore, cfg Config, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.SeedCap <= 0 {
		cfg.SeedCap = def.SeedCap
	}
	if cfg.MinViable < 0 {
		cfg.MinViable = def.MinViable
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}

	a := &Aggregator{
		similarity: similarity,
		library:    library,
		cfg:        cfg,
		logger:     shared.DiscardLogger(),
		rand:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = shared.WithLogger(a.logger, "component", "mix")
	a.resolver = NewResolver(library, models.KindTrack, cfg.SearchLimit, a.logger)
	return a
}

// Config returns the active policy.
func (a *Aggregator) Config() Config { return a.cfg }

func (a *Aggregator) shuffle(n int, swap func(i, j int)) {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	a.rand.Shuffle(n, swap)
}

func (a *Aggregator) intN(n int) int {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return a.rand.IntN(n)
}

// Aggregate builds a mix of at most limit unique items for the root item rootKey as seen by user.
//
// A missing or unreadable root returns an error wrapping [shared.ErrItemNotFound]. Per-seed and per-candidate
// failures are absorbed. On cancellation the partial, still valid, result is returned together with
// the context error.
func (a *Aggregator) Aggregate(ctx context.Context, rootKey string, user *models.User, limit int) (*Result, error) {
	started := time.Now()
	defer func() { metrics.MixDuration.Observe(time.Since(started).Seconds()) }()

	if key, ok := shared.CanonicalKey(rootKey); ok {
		rootKey = key
	}
	root, err := a.library.GetByID(ctx, rootKey)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.MixRuns.WithLabelValues("unknown", "not_found").Inc()
		if errors.Is(err, shared.ErrItemNotFound) {
			a.logger.Error("root item not found", "root", rootKey)
			return nil, err
		}
		a.logger.Error("failed to load root item", "root", rootKey, "err", err)
		return nil, fmt.Errorf("%w: failed to load root item %s: %w", shared.ErrItemNotFound, rootKey, err)
	}

	result := &Result{Root: *root}
	acc := NewAccumulator(limit)
	logger := a.logger.With("root", root.Key, "kind", root.Kind, "user", user.UserID())
	logger.Info("creating instant mix", "name", root.Name, "limit", limit)

	if err := a.run(ctx, logger, result, acc, user); err != nil {
		result.Items = acc.Items()
		metrics.MixRuns.WithLabelValues(root.Kind.String(), "cancelled").Inc()
		return result, err
	}

	result.Items = acc.Items()
	outcome := "ok"
	if result.Aborted {
		outcome = "aborted"
	}
	metrics.MixRuns.WithLabelValues(root.Kind.String(), outcome).Inc()
	metrics.MixItems.WithLabelValues("backend").Add(float64(result.FromBackend))
	metrics.MixItems.WithLabelValues("fallback").Add(float64(result.FromFallback))
	logger.Info("instant mix ready", "items", len(result.Items), "backend", result.FromBackend, "fallback", result.FromFallback)
	return result, nil
}

func (a *Aggregator) run(ctx context.Context, logger *log.Logger, result *Result, acc *Accumulator, user *models.User) error {
	if acc.Limit() == 0 {
		return nil
	}

	set, err := a.deriveSeeds(ctx, result.Root, user)
	if err != nil {
		return err
	}
	result.Seeds = set.seeds
	result.Anchor = set.anchor

	if set.anchor != nil && acc.Add(models.ResolvedItem{Item: *set.anchor, Strategy: models.StrategyAnchor}) {
		metrics.MixItems.WithLabelValues("anchor").Inc()
	}

	if err := a.querySeeds(ctx, logger, result, acc, set.seeds, user); err != nil {
		return err
	}
	return a.fallback(ctx, logger, result, acc, user)
}

// querySeeds runs the fetch-resolve-accumulate loop over seeds in order.
func (a *Aggregator) querySeeds(ctx context.Context, logger *log.Logger, result *Result, acc *Accumulator, seeds []models.Item, user *models.User) error {
	remaining := acc.Remaining()
	if remaining <= 0 || len(seeds) == 0 {
		return nil
	}

	perSeed := (remaining + len(seeds) - 1) / len(seeds)
	if len(seeds) > 1 {
		perSeed *= 2
	}
	if perSeed <= 0 {
		return nil
	}
	logger.Info("requesting similar tracks", "per_seed", perSeed, "seeds", len(seeds))

	var limiter *rate.Limiter
	if a.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.RequestsPerSecond), 1)
	}

	for _, seed := range seeds {
		if acc.Full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		seedKey := seed.Key
		if key, ok := shared.CanonicalKey(seedKey); ok {
			seedKey = key
		}

		candidates, err := a.similarity.QuerySimilar(ctx, models.SimilarQuery{
			ItemID:              seedKey,
			N:                   perSeed,
			EliminateDuplicates: a.cfg.EliminateDuplicates,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, shared.ErrTransport) && a.cfg.AbortOnTransportFailure {
				logger.Warn("backend call failed, abandoning remaining seeds", "seed", seedKey, "err", err)
				result.Aborted = true
				return nil
			}
			logger.Warn("backend call failed for seed", "seed", seedKey, "err", err)
			continue
		}

		added := 0
		for _, c := range candidates {
			if acc.Full() {
				break
			}
			item, found, err := a.resolver.Resolve(ctx, c, user)
			if err != nil {
				return err
			}
			if found && acc.Add(item) {
				added++
			}
		}
		result.FromBackend += added
		logger.Debug("seed results", "seed", seedKey, "candidates", len(candidates), "added", added)
	}
	return nil
}

// fallback tops up the mix from a random library sample when it is below MinViable, or below the
// limit when FillToLimit is set.
func (a *Aggregator) fallback(ctx context.Context, logger *log.Logger, result *Result, acc *Accumulator, user *models.User) error {
	short := acc.Len() < a.cfg.MinViable || (a.cfg.FillToLimit && !acc.Full())
	if !short || acc.Full() {
		return nil
	}

	needed := acc.Remaining()
	logger.Info("mix is short, filling from library", "have", acc.Len(), "needed", needed)

	// Oversample by the current size so keys already in the mix cannot starve the fill.
	sample, err := a.library.Sample(ctx, models.KindTrack, user, needed+acc.Len())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("library sample failed", "err", err)
		return nil
	}

	for _, it := range sample {
		if acc.Full() {
			break
		}
		if it.Kind != models.KindTrack {
			continue
		}
		if acc.Add(models.ResolvedItem{Item: it, Strategy: models.StrategyFallback}) {
			result.FromFallback++
		}
	}
	return nil
}
