package mix

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/metrics"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
)

// Resolver maps backend candidates onto library items.
//
// Strategies run in order and the first match wins:
//  1. native key: the id parses as a GUID and its canonical form exists
//  2. raw key: the id exists as given
//  3. metadata: a bounded title search, preferring a hit whose artists contain the candidate artist
//
// A miss is reported as found=false with a nil error. Store failures are logged and count as a miss
// for that step; only context cancellation is returned as an error.
type Resolver struct {
	library     models.LibraryStore
	kind        models.ItemKind
	searchLimit int
	logger      *log.Logger
}

// NewResolver creates a resolver that searches for items of kind.
func NewResolver(library models.LibraryStore, kind models.ItemKind, searchLimit int, logger *log.Logger) *Resolver {
	if searchLimit <= 0 {
		searchLimit = 5
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Resolver{library: library, kind: kind, searchLimit: searchLimit, logger: logger}
}

// Resolve returns the library item for c as seen by user. A nil user sees everything.
func (r *Resolver) Resolve(ctx context.Context, c models.Candidate, user *models.User) (models.ResolvedItem, bool, error) {
	res, found, err := r.resolve(ctx, c, user)
	if err != nil {
		return models.ResolvedItem{}, false, err
	}
	if found {
		metrics.ResolverMatches.WithLabelValues(res.Strategy.String()).Inc()
	} else {
		metrics.ResolverMatches.WithLabelValues("miss").Inc()
	}
	return res, found, nil
}

func (r *Resolver) resolve(ctx context.Context, c models.Candidate, user *models.User) (models.ResolvedItem, bool, error) {
	native, isNative := shared.CanonicalKey(c.ExternalID)
	if isNative {
		item, err := r.lookup(ctx, native, user)
		if err != nil || item != nil {
			return resolved(item, models.StrategyNativeKey), item != nil, err
		}
	}

	if c.ExternalID != "" && (!isNative || native != c.ExternalID) {
		item, err := r.lookup(ctx, c.ExternalID, user)
		if err != nil || item != nil {
			return resolved(item, models.StrategyRawKey), item != nil, err
		}
	}

	if c.Title == "" {
		return models.ResolvedItem{}, false, nil
	}

	hits, err := r.library.Search(ctx, models.SearchQuery{
		Text:  c.Title,
		Kinds: []models.ItemKind{r.kind},
		User:  user,
		Limit: r.searchLimit,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ResolvedItem{}, false, ctxErr
		}
		r.logger.Warn("metadata search failed", "title", c.Title, "err", err)
		return models.ResolvedItem{}, false, nil
	}
	if len(hits) == 0 {
		return models.ResolvedItem{}, false, nil
	}

	best := hits[0]
	if c.Artist != "" {
		for _, hit := range hits {
			if artistMatches(hit, c.Artist) {
				best = hit
				break
			}
		}
	}
	return models.ResolvedItem{Item: best, Strategy: models.StrategyMetadata}, true, nil
}

// lookup fetches key and applies the visibility filter. A nil item with a nil error is a miss.
func (r *Resolver) lookup(ctx context.Context, key string, user *models.User) (*models.Item, error) {
	item, err := r.library.GetByID(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, shared.ErrItemNotFound) {
			r.logger.Warn("library lookup failed", "key", key, "err", err)
		}
		return nil, nil
	}

	if user == nil {
		return item, nil
	}
	visible, err := r.library.IsVisible(ctx, *item, user)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("visibility check failed", "key", key, "user", user.ID, "err", err)
		return nil, nil
	}
	if !visible {
		return nil, nil
	}
	return item, nil
}

func resolved(item *models.Item, s models.Strategy) models.ResolvedItem {
	if item == nil {
		return models.ResolvedItem{}
	}
	return models.ResolvedItem{Item: *item, Strategy: s}
}

func artistMatches(item models.Item, artist string) bool {
	for _, a := range item.Artists {
		if shared.ContainsFold(a, artist) {
			return true
		}
	}
	return false
}
