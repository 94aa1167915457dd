// Jellyfin media server implementation of [models.LibraryStore], [models.PlaylistStore] and [models.UserDirectory]
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
)

const itemFields = "Artists,AlbumArtist,Album"

// JellyfinItem is the subset of a BaseItemDto read by the engine.
type JellyfinItem struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	Type           string   `json:"Type"`
	Album          string   `json:"Album,omitempty"`
	AlbumArtist    string   `json:"AlbumArtist,omitempty"`
	Artists        []string `json:"Artists,omitempty"`
	PlaylistItemID string   `json:"PlaylistItemId,omitempty"`
}

// JellyfinItemsResponse is the QueryResult envelope returned by item listings.
type JellyfinItemsResponse struct {
	Items            []JellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

// JellyfinUser is a media server account.
type JellyfinUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type createPlaylistRequest struct {
	Name      string   `json:"Name"`
	Ids       []string `json:"Ids"`
	UserID    string   `json:"UserId"`
	MediaType string   `json:"MediaType"`
}

type createPlaylistResponse struct {
	ID string `json:"Id"`
}

// JellyfinService reads the library and mutates playlists over the Jellyfin REST API.
type JellyfinService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewJellyfinService creates a media server client. A nil client gets one with cfg.Timeout.
func NewJellyfinService(cfg shared.MediaServerConfig, client *http.Client, logger *log.Logger) *JellyfinService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &JellyfinService{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     shared.WithLogger(logger, "component", "jellyfin"),
	}
}

// toItem converts a wire item to a library [models.Item].
func (j JellyfinItem) toItem() models.Item {
	artists := j.Artists
	if len(artists) == 0 && j.AlbumArtist != "" {
		artists = []string{j.AlbumArtist}
	}
	return models.Item{
		Key:     j.ID,
		Name:    j.Name,
		Kind:    models.ParseItemKind(j.Type),
		Artists: artists,
		Album:   j.Album,
	}
}

func toItems(in []JellyfinItem) []models.Item {
	items := make([]models.Item, 0, len(in))
	for _, it := range in {
		items = append(items, it.toItem())
	}
	return items
}

// GetByID fetches one item by key.
func (s *JellyfinService) GetByID(ctx context.Context, key string) (*models.Item, error) {
	query := url.Values{}
	query.Set("ids", key)
	query.Set("fields", itemFields)

	var resp JellyfinItemsResponse
	if err := s.do(ctx, http.MethodGet, "/Items", query, nil, &resp); err != nil {
		if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, key)
		}
		return nil, err
	}

	for _, it := range resp.Items {
		if strings.EqualFold(it.ID, key) || len(resp.Items) == 1 {
			item := it.toItem()
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, key)
}

// Search runs a searchTerm query bounded by q.Limit.
func (s *JellyfinService) Search(ctx context.Context, q models.SearchQuery) ([]models.Item, error) {
	query := url.Values{}
	query.Set("searchTerm", q.Text)
	query.Set("recursive", "true")
	query.Set("fields", itemFields)
	if types := mediaTypes(q.Kinds); types != "" {
		query.Set("includeItemTypes", types)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.User != nil {
		query.Set("userId", q.User.ID)
	}

	var resp JellyfinItemsResponse
	if err := s.do(ctx, http.MethodGet, "/Items", query, nil, &resp); err != nil {
		return nil, err
	}
	return toItems(resp.Items), nil
}

// ListChildren returns the audio tracks of container. Artists are matched by artistIds, every other
// container by parentId.
func (s *JellyfinService) ListChildren(ctx context.Context, container models.Item, recursive bool, user *models.User) ([]models.Item, error) {
	query := url.Values{}
	query.Set("includeItemTypes", models.KindTrack.MediaType())
	query.Set("recursive", strconv.FormatBool(recursive))
	query.Set("fields", itemFields)
	if container.Kind == models.KindArtist {
		query.Set("artistIds", container.Key)
	} else {
		query.Set("parentId", container.Key)
	}
	if user != nil {
		query.Set("userId", user.ID)
	}

	var resp JellyfinItemsResponse
	if err := s.do(ctx, http.MethodGet, "/Items", query, nil, &resp); err != nil {
		return nil, err
	}
	return toItems(resp.Items), nil
}

// IsVisible checks the item through the user-scoped endpoint, which 404s for hidden items.
func (s *JellyfinService) IsVisible(ctx context.Context, item models.Item, user *models.User) (bool, error) {
	if user == nil {
		return true, nil
	}

	path := fmt.Sprintf("/Users/%s/Items/%s", url.PathEscape(user.ID), url.PathEscape(item.Key))
	err := s.do(ctx, http.MethodGet, path, nil, nil, nil)
	switch {
	case err == nil:
		return true, nil
	case IsStatus(err, http.StatusNotFound), IsStatus(err, http.StatusForbidden):
		return false, nil
	default:
		return false, err
	}
}

// Sample returns up to limit random items of kind.
func (s *JellyfinService) Sample(ctx context.Context, kind models.ItemKind, user *models.User, limit int) ([]models.Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("recursive", "true")
	query.Set("sortBy", "Random")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("fields", itemFields)
	if mt := kind.MediaType(); mt != "" {
		query.Set("includeItemTypes", mt)
	}
	if user != nil {
		query.Set("userId", user.ID)
	}

	var resp JellyfinItemsResponse
	if err := s.do(ctx, http.MethodGet, "/Items", query, nil, &resp); err != nil {
		return nil, err
	}
	return toItems(resp.Items), nil
}

// ListPlaylists returns the playlists visible to owner.
func (s *JellyfinService) ListPlaylists(ctx context.Context, owner string) ([]models.Playlist, error) {
	query := url.Values{}
	query.Set("userId", owner)
	query.Set("includeItemTypes", models.KindPlaylist.MediaType())
	query.Set("recursive", "true")

	var resp JellyfinItemsResponse
	if err := s.do(ctx, http.MethodGet, "/Items", query, nil, &resp); err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(resp.Items))
	for _, it := range resp.Items {
		playlists = append(playlists, models.Playlist{ID: it.ID, Name: it.Name, Owner: owner})
	}
	return playlists, nil
}

// CreatePlaylist creates an audio playlist for owner seeded with keys.
func (s *JellyfinService) CreatePlaylist(ctx context.Context, name, owner string, keys []string) (*models.Playlist, error) {
	body := createPlaylistRequest{Name: name, Ids: keys, UserID: owner, MediaType: "Audio"}
	if body.Ids == nil {
		body.Ids = []string{}
	}

	var resp createPlaylistResponse
	if err := s.do(ctx, http.MethodPost, "/Playlists", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: playlist created without id", shared.ErrAPIRequest)
	}
	return &models.Playlist{ID: resp.ID, Name: name, Owner: owner}, nil
}

// ManageableItems lists the playlist's entries with their entry handles.
func (s *JellyfinService) ManageableItems(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	var resp JellyfinItemsResponse
	path := fmt.Sprintf("/Playlists/%s/Items", url.PathEscape(playlistID))
	if err := s.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, playlistErr(err, playlistID)
	}

	entries := make([]models.PlaylistEntry, 0, len(resp.Items))
	for _, it := range resp.Items {
		handle := it.PlaylistItemID
		if handle == "" {
			handle = it.ID
		}
		entries = append(entries, models.PlaylistEntry{Handle: handle, ItemKey: it.ID})
	}
	return entries, nil
}

// RemoveItems deletes entries by handle in one call.
func (s *JellyfinService) RemoveItems(ctx context.Context, playlistID string, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	query := url.Values{}
	query.Set("entryIds", strings.Join(handles, ","))

	path := fmt.Sprintf("/Playlists/%s/Items", url.PathEscape(playlistID))
	if err := s.do(ctx, http.MethodDelete, path, query, nil, nil); err != nil {
		return playlistErr(err, playlistID)
	}
	return nil
}

// AddItems appends keys to the playlist in order, on behalf of owner.
func (s *JellyfinService) AddItems(ctx context.Context, playlistID string, keys []string, owner string) error {
	if len(keys) == 0 {
		return nil
	}
	query := url.Values{}
	query.Set("ids", strings.Join(keys, ","))
	if owner != "" {
		query.Set("userId", owner)
	}

	path := fmt.Sprintf("/Playlists/%s/Items", url.PathEscape(playlistID))
	if err := s.do(ctx, http.MethodPost, path, query, nil, nil); err != nil {
		return playlistErr(err, playlistID)
	}
	return nil
}

// ListUsers returns every account on the server.
func (s *JellyfinService) ListUsers(ctx context.Context) ([]models.User, error) {
	var resp []JellyfinUser
	if err := s.do(ctx, http.MethodGet, "/Users", nil, nil, &resp); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(resp))
	for _, u := range resp {
		users = append(users, models.User{ID: u.ID, Name: u.Name})
	}
	return users, nil
}

// do sends one authenticated request. A non-nil in is JSON encoded; a non-nil out receives the
// decoded body of a 2xx response.
func (s *JellyfinService) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	fullURL := s.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-Emby-Token", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", shared.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", shared.ErrTransport, err)
	}

	if !isSuccess(resp.StatusCode) {
		s.logger.Debug("media server request failed", "method", method, "path", path, "status", resp.StatusCode)
		return newStatusError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
	}
	return nil
}

// playlistErr maps a 404 on a playlist path onto [shared.ErrPlaylistNotFound].
func playlistErr(err error, playlistID string) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		se.kind = shared.ErrPlaylistNotFound
		return fmt.Errorf("playlist %s: %w", playlistID, se)
	}
	return err
}

func mediaTypes(kinds []models.ItemKind) string {
	var names []string
	for _, k := range kinds {
		if mt := k.MediaType(); mt != "" {
			names = append(names, mt)
		}
	}
	return strings.Join(names, ",")
}
