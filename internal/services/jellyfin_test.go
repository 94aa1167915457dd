package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
)

func newTestJellyfin(t *testing.T, handler http.HandlerFunc) *JellyfinService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "key" {
			t.Errorf("missing api key header on %s", r.URL.Path)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := shared.MediaServerConfig{URL: server.URL + "/", APIKey: "key"}
	return NewJellyfinService(cfg, server.Client(), nil)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestJellyfinLibrary(t *testing.T) {
	t.Run("GetByID", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/Items" || r.URL.Query().Get("ids") != "abc" {
				t.Errorf("unexpected request %s", r.URL)
			}
			writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{
				{ID: "abc", Name: "Song", Type: "Audio", AlbumArtist: "Band", Album: "LP"},
			}})
		})

		item, err := svc.GetByID(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item.Kind != models.KindTrack || item.PrimaryArtist() != "Band" || item.Album != "LP" {
			t.Errorf("unexpected item %+v", item)
		}
	})

	t.Run("GetByID Not Found", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, JellyfinItemsResponse{})
		})
		if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, shared.ErrItemNotFound) {
			t.Errorf("expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("searchTerm") != "one more time" || q.Get("includeItemTypes") != "Audio" ||
				q.Get("limit") != "5" || q.Get("userId") != "u1" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{{ID: "1", Type: "Audio"}, {ID: "2", Type: "Audio"}}})
		})

		items, err := svc.Search(context.Background(), models.SearchQuery{
			Text:  "one more time",
			Kinds: []models.ItemKind{models.KindTrack},
			User:  &models.User{ID: "u1"},
			Limit: 5,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(items) != 2 || items[0].Key != "1" {
			t.Errorf("unexpected items %+v", items)
		}
	})

	t.Run("ListChildren", func(t *testing.T) {
		tests := []struct {
			kind  models.ItemKind
			param string
		}{
			{models.KindAlbum, "parentId"},
			{models.KindPlaylist, "parentId"},
			{models.KindArtist, "artistIds"},
		}
		for _, tt := range tests {
			t.Run(tt.kind.String(), func(t *testing.T) {
				svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
					q := r.URL.Query()
					if q.Get(tt.param) != "container" || q.Get("recursive") != "true" {
						t.Errorf("unexpected query %s", r.URL.RawQuery)
					}
					writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{{ID: "t1", Type: "Audio"}}})
				})

				items, err := svc.ListChildren(context.Background(), models.Item{Key: "container", Kind: tt.kind}, true, nil)
				if err != nil || len(items) != 1 {
					t.Errorf("expected 1 child, got %v %v", items, err)
				}
			})
		}
	})

	t.Run("IsVisible", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Users/u1/Items/visible":
				writeJSON(t, w, JellyfinItem{ID: "visible"})
			case "/Users/u1/Items/hidden":
				w.WriteHeader(http.StatusNotFound)
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
		})
		user := &models.User{ID: "u1"}

		if ok, err := svc.IsVisible(context.Background(), models.Item{Key: "visible"}, user); !ok || err != nil {
			t.Errorf("expected visible, got %v %v", ok, err)
		}
		if ok, err := svc.IsVisible(context.Background(), models.Item{Key: "hidden"}, user); ok || err != nil {
			t.Errorf("expected hidden, got %v %v", ok, err)
		}
		if _, err := svc.IsVisible(context.Background(), models.Item{Key: "boom"}, user); err == nil {
			t.Error("expected error on 500")
		}
		if ok, _ := svc.IsVisible(context.Background(), models.Item{Key: "boom"}, nil); !ok {
			t.Error("items are visible without a user context")
		}
	})

	t.Run("Sample", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("sortBy") != "Random" || q.Get("limit") != "3" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}})
		})

		items, err := svc.Sample(context.Background(), models.KindTrack, nil, 3)
		if err != nil || len(items) != 3 {
			t.Errorf("expected 3 samples, got %v %v", items, err)
		}
	})
}

func TestJellyfinPlaylists(t *testing.T) {
	t.Run("ListPlaylists", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("includeItemTypes") != "Playlist" || r.URL.Query().Get("userId") != "owner" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{{ID: "p1", Name: "alice-fingerprint"}}})
		})

		playlists, err := svc.ListPlaylists(context.Background(), "owner")
		if err != nil || len(playlists) != 1 || playlists[0].Owner != "owner" {
			t.Errorf("unexpected playlists %+v %v", playlists, err)
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/Playlists" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL)
			}
			var body createPlaylistRequest
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, &body); err != nil {
				t.Errorf("bad body: %v", err)
				return
			}
			if body.Name != "mix" || body.UserID != "owner" || len(body.Ids) != 2 || body.MediaType != "Audio" {
				t.Errorf("unexpected body %+v", body)
			}
			writeJSON(t, w, createPlaylistResponse{ID: "new"})
		})

		pl, err := svc.CreatePlaylist(context.Background(), "mix", "owner", []string{"a", "b"})
		if err != nil || pl.ID != "new" {
			t.Errorf("unexpected result %+v %v", pl, err)
		}
	})

	t.Run("ManageableItems", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/Playlists/gone/Items" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(t, w, JellyfinItemsResponse{Items: []JellyfinItem{
				{ID: "a", PlaylistItemID: "e1"},
				{ID: "b"},
			}})
		})

		entries, err := svc.ManageableItems(context.Background(), "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []models.PlaylistEntry{{Handle: "e1", ItemKey: "a"}, {Handle: "b", ItemKey: "b"}}
		for i := range want {
			if entries[i] != want[i] {
				t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
			}
		}

		_, err = svc.ManageableItems(context.Background(), "gone")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("RemoveItems And AddItems", func(t *testing.T) {
		var seen []string
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
			w.WriteHeader(http.StatusNoContent)
		})

		if err := svc.RemoveItems(context.Background(), "p1", []string{"e1", "e2"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := svc.AddItems(context.Background(), "p1", []string{"x", "y"}, "owner"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := svc.RemoveItems(context.Background(), "p1", nil); err != nil {
			t.Fatalf("empty removal should be a no-op: %v", err)
		}

		want := []string{
			"DELETE /Playlists/p1/Items?entryIds=e1%2Ce2",
			"POST /Playlists/p1/Items?ids=x%2Cy&userId=owner",
		}
		if len(seen) != len(want) {
			t.Fatalf("expected %d requests, got %v", len(want), seen)
		}
		for i := range want {
			if seen[i] != want[i] {
				t.Errorf("request %d = %s, want %s", i, seen[i], want[i])
			}
		}
	})

	t.Run("ListUsers", func(t *testing.T) {
		svc := newTestJellyfin(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, []JellyfinUser{{ID: "u1", Name: "alice"}, {ID: "u2", Name: "bob"}})
		})

		users, err := svc.ListUsers(context.Background())
		if err != nil || len(users) != 2 || users[1].Name != "bob" {
			t.Errorf("unexpected users %+v %v", users, err)
		}
	})
}
