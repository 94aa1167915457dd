package mix

import (
	"context"

	"github.com/desertthunder/musemix/internal/models"
)

// seedSet is the outcome of seed derivation.
//
// seeds keep their shuffled order for the whole run. anchor is nil when there is nothing to seed from.
type seedSet struct {
	seeds  []models.Item
	anchor *models.Item
}

type seedDeriver func(a *Aggregator, ctx context.Context, root models.Item, user *models.User) (seedSet, error)

// seedDerivers holds one derivation per root kind. Kinds without an entry produce no seeds.
var seedDerivers = map[models.ItemKind]seedDeriver{
	models.KindTrack:    trackSeeds,
	models.KindAlbum:    containerSeeds,
	models.KindArtist:   containerSeeds,
	models.KindPlaylist: containerSeeds,
	models.KindFolder:   containerSeeds,
}

func (a *Aggregator) deriveSeeds(ctx context.Context, root models.Item, user *models.User) (seedSet, error) {
	derive, ok := seedDerivers[root.Kind]
	if !ok {
		a.logger.Warn("unsupported root kind, using library fallback only", "root", root.Key, "kind", root.Kind)
		return seedSet{}, nil
	}
	return derive(a, ctx, root, user)
}

// trackSeeds seeds a track mix with the track itself, which is also the anchor.
func trackSeeds(_ *Aggregator, _ context.Context, root models.Item, _ *models.User) (seedSet, error) {
	anchor := root
	return seedSet{seeds: []models.Item{root}, anchor: &anchor}, nil
}

// containerSeeds shuffles the container's playable tracks, keeps at most SeedCap of them and picks a
// random anchor among the kept ones.
func containerSeeds(a *Aggregator, ctx context.Context, root models.Item, user *models.User) (seedSet, error) {
	children, err := a.library.ListChildren(ctx, root, true, user)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return seedSet{}, ctxErr
		}
		a.logger.Warn("failed to enumerate container tracks", "root", root.Key, "err", err)
		return seedSet{}, nil
	}

	tracks := make([]models.Item, 0, len(children))
	for _, c := range children {
		if c.Kind == models.KindTrack {
			tracks = append(tracks, c)
		}
	}
	if len(tracks) == 0 {
		a.logger.Info("container has no playable tracks", "root", root.Key, "kind", root.Kind)
		return seedSet{}, nil
	}

	a.shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
	if len(tracks) > a.cfg.SeedCap {
		tracks = tracks[:a.cfg.SeedCap]
	}

	anchor := tracks[a.intN(len(tracks))]
	return seedSet{seeds: tracks, anchor: &anchor}, nil
}
