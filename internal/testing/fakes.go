package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
)

// Hook runs before every fake call with the operation name. A non-nil error is returned
// from the call without touching state. Hooks may block to hold a call in flight.
type Hook func(ctx context.Context, op string) error

// Library is an in-memory [models.LibraryStore].
//
// Sample returns visible items in insertion order so tests can predict fallback contents.
type Library struct {
	mu       sync.Mutex
	items    map[string]models.Item
	order    []string
	children map[string][]string
	hidden   map[string]map[string]bool

	BeforeCall Hook
	Calls      []string
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		items:    make(map[string]models.Item),
		children: make(map[string][]string),
		hidden:   make(map[string]map[string]bool),
	}
}

// Add stores items, keeping insertion order for Sample.
func (l *Library) Add(items ...models.Item) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		if _, ok := l.items[it.Key]; !ok {
			l.order = append(l.order, it.Key)
		}
		l.items[it.Key] = it
	}
	return l
}

// AddTracks adds tracks named after their keys.
func (l *Library) AddTracks(keys ...string) *Library {
	for _, k := range keys {
		l.Add(models.Item{Key: k, Name: "Track " + k, Kind: models.KindTrack})
	}
	return l
}

// SetChildren registers the tracks beneath a container.
func (l *Library) SetChildren(container string, keys ...string) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.children[container] = keys
	return l
}

// Hide makes key invisible to userID.
func (l *Library) Hide(userID string, keys ...string) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hidden[userID] == nil {
		l.hidden[userID] = make(map[string]bool)
	}
	for _, k := range keys {
		l.hidden[userID][k] = true
	}
	return l
}

func (l *Library) enter(ctx context.Context, op string) error {
	l.mu.Lock()
	l.Calls = append(l.Calls, op)
	hook := l.BeforeCall
	l.mu.Unlock()
	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

// CallCount returns how many times op ran.
func (l *Library) CallCount(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (l *Library) visible(key string, user *models.User) bool {
	return user == nil || !l.hidden[user.ID][key]
}

func (l *Library) GetByID(ctx context.Context, key string) (*models.Item, error) {
	if err := l.enter(ctx, "GetByID"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, key)
	}
	return &it, nil
}

func (l *Library) Search(ctx context.Context, q models.SearchQuery) ([]models.Item, error) {
	if err := l.enter(ctx, "Search"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Item
	for _, key := range l.order {
		it := l.items[key]
		if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, it.Kind) {
			continue
		}
		if !shared.ContainsFold(it.Name, q.Text) || !l.visible(key, q.User) {
			continue
		}
		out = append(out, it)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (l *Library) ListChildren(ctx context.Context, container models.Item, recursive bool, user *models.User) ([]models.Item, error) {
	if err := l.enter(ctx, "ListChildren"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Item
	for _, key := range l.children[container.Key] {
		if it, ok := l.items[key]; ok && l.visible(key, user) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (l *Library) IsVisible(ctx context.Context, item models.Item, user *models.User) (bool, error) {
	if err := l.enter(ctx, "IsVisible"); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible(item.Key, user), nil
}

func (l *Library) Sample(ctx context.Context, kind models.ItemKind, user *models.User, limit int) ([]models.Item, error) {
	if err := l.enter(ctx, "Sample"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Item
	for _, key := range l.order {
		if len(out) >= limit {
			break
		}
		it := l.items[key]
		if it.Kind == kind && l.visible(key, user) {
			out = append(out, it)
		}
	}
	return out, nil
}

// SimilarityResult scripts one backend answer.
type SimilarityResult struct {
	Candidates []models.Candidate
	Err        error
}

// Similarity is a scripted [models.SimilarityClient].
//
// Seeds without a script answer with an empty list.
type Similarity struct {
	mu           sync.Mutex
	Similar      map[string]SimilarityResult
	Fingerprints map[string]SimilarityResult
	Queries      []models.SimilarQuery
	Users        []string
	BeforeCall   Hook
}

// NewSimilarity creates a client with no scripted answers.
func NewSimilarity() *Similarity {
	return &Similarity{
		Similar:      make(map[string]SimilarityResult),
		Fingerprints: make(map[string]SimilarityResult),
	}
}

func (s *Similarity) QuerySimilar(ctx context.Context, q models.SimilarQuery) ([]models.Candidate, error) {
	s.mu.Lock()
	s.Queries = append(s.Queries, q)
	hook := s.BeforeCall
	res := s.Similar[q.ItemID]
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, "QuerySimilar"); err != nil {
			return nil, err
		}
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if q.N > 0 && len(res.Candidates) > q.N {
		return slices.Clone(res.Candidates[:q.N]), nil
	}
	return slices.Clone(res.Candidates), nil
}

func (s *Similarity) QueryFingerprint(ctx context.Context, user string, n int) ([]models.Candidate, error) {
	s.mu.Lock()
	s.Users = append(s.Users, user)
	hook := s.BeforeCall
	res := s.Fingerprints[user]
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, "QueryFingerprint"); err != nil {
			return nil, err
		}
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return slices.Clone(res.Candidates), nil
}

// QueryCount returns how many similarity queries were issued.
func (s *Similarity) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queries)
}

// Mutation records one playlist write.
type Mutation struct {
	Op         string
	PlaylistID string
	Values     []string
	Owner      string
}

type storedPlaylist struct {
	models.Playlist
	entries []models.PlaylistEntry
}

// Playlists is an in-memory [models.PlaylistStore].
//
// StickyRemovals makes the next N RemoveItems calls report success without removing anything.
// VanishOnRemove deletes the playlist during the first RemoveItems call.
type Playlists struct {
	mu        sync.Mutex
	playlists map[string]*storedPlaylist
	order     []string
	nextID    int
	nextEntry int

	StickyRemovals int
	VanishOnRemove bool
	BeforeCall     Hook
	Mutations      []Mutation
}

// NewPlaylists creates an empty store.
func NewPlaylists() *Playlists {
	return &Playlists{playlists: make(map[string]*storedPlaylist)}
}

// Seed creates a playlist directly, without recording a mutation, and returns its id.
func (p *Playlists) Seed(name, owner string, keys ...string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.create(name, owner, keys).ID
}

// Contents returns the item keys of playlist id in order.
func (p *Playlists) Contents(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.playlists[id]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(pl.entries))
	for _, e := range pl.entries {
		keys = append(keys, e.ItemKey)
	}
	return keys
}

// Find returns the id of the owner's playlist named name, ignoring case.
func (p *Playlists) Find(owner, name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order {
		pl := p.playlists[id]
		if pl != nil && pl.Owner == owner && strings.EqualFold(pl.Name, name) {
			return id, true
		}
	}
	return "", false
}

// Count returns how many mutations of op were recorded.
func (p *Playlists) Count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.Mutations {
		if m.Op == op {
			n++
		}
	}
	return n
}

// MutationCount returns the total number of recorded writes.
func (p *Playlists) MutationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Mutations)
}

func (p *Playlists) enter(ctx context.Context, op string) error {
	p.mu.Lock()
	hook := p.BeforeCall
	p.mu.Unlock()
	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

func (p *Playlists) create(name, owner string, keys []string) *storedPlaylist {
	p.nextID++
	pl := &storedPlaylist{Playlist: models.Playlist{ID: fmt.Sprintf("pl-%d", p.nextID), Name: name, Owner: owner}}
	p.appendEntries(pl, keys)
	p.playlists[pl.ID] = pl
	p.order = append(p.order, pl.ID)
	return pl
}

func (p *Playlists) appendEntries(pl *storedPlaylist, keys []string) {
	for _, k := range keys {
		p.nextEntry++
		pl.entries = append(pl.entries, models.PlaylistEntry{Handle: fmt.Sprintf("entry-%d", p.nextEntry), ItemKey: k})
	}
}

func (p *Playlists) ListPlaylists(ctx context.Context, owner string) ([]models.Playlist, error) {
	if err := p.enter(ctx, "ListPlaylists"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Playlist
	for _, id := range p.order {
		if pl, ok := p.playlists[id]; ok && pl.Owner == owner {
			out = append(out, pl.Playlist)
		}
	}
	return out, nil
}

func (p *Playlists) CreatePlaylist(ctx context.Context, name, owner string, keys []string) (*models.Playlist, error) {
	if err := p.enter(ctx, "CreatePlaylist"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pl := p.create(name, owner, keys)
	p.Mutations = append(p.Mutations, Mutation{Op: "CreatePlaylist", PlaylistID: pl.ID, Values: slices.Clone(keys), Owner: owner})
	out := pl.Playlist
	return &out, nil
}

func (p *Playlists) ManageableItems(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	if err := p.enter(ctx, "ManageableItems"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return slices.Clone(pl.entries), nil
}

func (p *Playlists) RemoveItems(ctx context.Context, playlistID string, handles []string) error {
	if err := p.enter(ctx, "RemoveItems"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Mutations = append(p.Mutations, Mutation{Op: "RemoveItems", PlaylistID: playlistID, Values: slices.Clone(handles)})

	pl, ok := p.playlists[playlistID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if p.VanishOnRemove {
		delete(p.playlists, playlistID)
		return nil
	}
	if p.StickyRemovals > 0 {
		p.StickyRemovals--
		return nil
	}
	pl.entries = slices.DeleteFunc(pl.entries, func(e models.PlaylistEntry) bool {
		return slices.Contains(handles, e.Handle)
	})
	return nil
}

func (p *Playlists) AddItems(ctx context.Context, playlistID string, keys []string, owner string) error {
	if err := p.enter(ctx, "AddItems"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Mutations = append(p.Mutations, Mutation{Op: "AddItems", PlaylistID: playlistID, Values: slices.Clone(keys), Owner: owner})

	pl, ok := p.playlists[playlistID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	p.appendEntries(pl, keys)
	return nil
}

// Directory is a fixed [models.UserDirectory].
type Directory struct {
	Users []models.User
	Err   error
}

func (d *Directory) ListUsers(ctx context.Context) ([]models.User, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return slices.Clone(d.Users), nil
}
