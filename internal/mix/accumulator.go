package mix

import (
	"slices"

	"github.com/desertthunder/musemix/internal/models"
)

// Accumulator collects mix items in insertion order.
//
// Keys are unique and the size never exceeds the limit. It is confined to one aggregation run.
type Accumulator struct {
	items []models.ResolvedItem
	seen  map[string]struct{}
	limit int
}

// NewAccumulator creates an accumulator holding at most limit items.
func NewAccumulator(limit int) *Accumulator {
	if limit < 0 {
		limit = 0
	}
	return &Accumulator{
		items: make([]models.ResolvedItem, 0, min(limit, 256)),
		seen:  make(map[string]struct{}, min(limit, 256)),
		limit: limit,
	}
}

// Add appends item unless its key is present or the accumulator is full.
func (a *Accumulator) Add(item models.ResolvedItem) bool {
	if a.Full() || item.Key == "" {
		return false
	}
	if _, dup := a.seen[item.Key]; dup {
		return false
	}
	a.seen[item.Key] = struct{}{}
	a.items = append(a.items, item)
	return true
}

// Contains reports whether key is already in the mix.
func (a *Accumulator) Contains(key string) bool {
	_, ok := a.seen[key]
	return ok
}

func (a *Accumulator) Len() int { return len(a.items) }
func (a *Accumulator) Limit() int { return a.limit }
func (a *Accumulator) Full() bool { return len(a.items) >= a.limit }
func (a *Accumulator) Remaining() int { return a.limit - len(a.items) }

// Items returns a copy of the ordered items.
func (a *Accumulator) Items() []models.ResolvedItem {
	return slices.Clone(a.items)
}

// Keys returns the ordered item keys.
func (a *Accumulator) Keys() []string {
	keys := make([]string, len(a.items))
	for i, it := range a.items {
		keys[i] = it.Key
	}
	return keys
}
