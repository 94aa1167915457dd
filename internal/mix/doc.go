// Package mix builds instant mixes from a root library item.
//
// [Aggregator.Aggregate] derives seeds from the root, asks the similarity backend for neighbours of
// each seed, maps every candidate back onto the library with a [Resolver] and collects the results in
// an [Accumulator] that never holds duplicate keys or more than the requested number of items.
// When the backend yields too little, the mix is topped up from a random library sample.
//
// Seed derivation is dispatched once on the root's [models.ItemKind]: a track seeds itself while
// albums, artists, playlists and folders seed from a shuffled, capped set of their tracks. One of
// those tracks is placed in the mix as its anchor before any backend call.
//
// Randomness comes from an injectable [rand.Rand] so tests can fix seed and fallback order.
package mix
