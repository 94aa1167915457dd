package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	tu "github.com/desertthunder/musemix/internal/testing"
	"github.com/sony/gobreaker/v2"
)

func newTestAudioMuse(t *testing.T, handler http.HandlerFunc) *AudioMuseService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := shared.DefaultConfig().Backend
	cfg.URL = server.URL
	return NewAudioMuseServiceWithClient(cfg, server.Client(), nil)
}

func TestAudioMuseService(t *testing.T) {
	t.Run("QuerySimilar", func(t *testing.T) {
		t.Run("By Item ID", func(t *testing.T) {
			svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/similar_tracks" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("item_id") != "seed" || q.Get("n") != "8" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				if q.Get("eliminate_duplicates") != "true" {
					t.Errorf("expected eliminate_duplicates=true, got %q", q.Get("eliminate_duplicates"))
				}
				w.Write([]byte(`[{"item_id":"a","title":"One","author":"X","distance":0.1},{"item_id":"b"}]`))
			})

			got, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 8, EliminateDuplicates: true})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 candidates, got %d", len(got))
			}
			if got[0].Artist != "X" || got[0].Distance != 0.1 {
				t.Errorf("unexpected first candidate %+v", got[0])
			}
		})

		t.Run("By Title And Artist", func(t *testing.T) {
			svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Has("item_id") || q.Get("title") != "Song" || q.Get("artist") != "Band" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.Write([]byte(`[]`))
			})

			if _, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{Title: "Song", Artist: "Band", N: 1}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Missing Seed", func(t *testing.T) {
			svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected")
			})
			_, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{Title: "Song", N: 1})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("Non-2xx Carries Status And Body", func(t *testing.T) {
			svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"unknown item"}`))
			})

			_, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 1})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if se.StatusCode != http.StatusNotFound || se.Body != `{"error":"unknown item"}` {
				t.Errorf("unexpected status error %+v", se)
			}
			if errors.Is(err, shared.ErrTransport) {
				t.Error("status errors must not be transport failures")
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			cfg := shared.DefaultConfig().Backend
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("dial tcp: refused"))}
			svc := NewAudioMuseServiceWithClient(cfg, client, nil)

			_, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 1})
			if !errors.Is(err, shared.ErrTransport) {
				t.Errorf("expected ErrTransport, got %v", err)
			}
		})
	})

	t.Run("QueryFingerprint", func(t *testing.T) {
		svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/sonic_fingerprint/generate" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("jellyfin_user_identifier") != "alice" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			if r.URL.Query().Has("n") {
				t.Error("n should be omitted when zero")
			}
			w.Write([]byte(`[{"item_id":"0f8fad5bd9cb469fa16570867728950e","title":"T","author":"A","distance":0.4}]`))
		})

		got, err := svc.QueryFingerprint(context.Background(), "alice", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 1 || got[0].Title != "T" {
			t.Errorf("unexpected candidates %+v", got)
		}

		if _, err := svc.QueryFingerprint(context.Background(), "", 0); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Bearer Token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
				t.Errorf("expected bearer token, got %q", got)
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		cfg := shared.DefaultConfig().Backend
		cfg.URL = server.URL
		cfg.Token = "s3cret"
		svc := NewAudioMuseService(cfg, nil)

		resp, err := svc.Health(context.Background())
		if err != nil || !resp.OK() {
			t.Fatalf("expected healthy response, got %v %v", resp, err)
		}
	})

	t.Run("Circuit Breaker Opens", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := shared.DefaultConfig().Backend
		cfg.URL = server.URL
		cfg.FailureThreshold = 2
		cfg.BreakerTimeout = time.Minute
		svc := NewAudioMuseServiceWithClient(cfg, server.Client(), nil)

		for range 2 {
			_, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 1})
			if !IsStatus(err, http.StatusServiceUnavailable) {
				t.Fatalf("expected 503 status error, got %v", err)
			}
		}

		if svc.BreakerState() != gobreaker.StateOpen {
			t.Fatalf("expected open breaker, got %v", svc.BreakerState())
		}

		_, err := svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 1})
		if !errors.Is(err, shared.ErrTransport) || !errors.Is(err, gobreaker.ErrOpenState) {
			t.Errorf("expected open-state transport failure, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected open breaker to short circuit, backend saw %d calls", calls.Load())
		}
	})

	t.Run("Client Errors Do Not Trip Breaker", func(t *testing.T) {
		svc := newTestAudioMuse(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		for range 10 {
			svc.QuerySimilar(context.Background(), models.SimilarQuery{ItemID: "seed", N: 1})
		}
		if svc.BreakerState() != gobreaker.StateClosed {
			t.Errorf("expected closed breaker, got %v", svc.BreakerState())
		}
	})
}

func TestDecodeCandidates(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []models.Candidate
	}{
		{
			name: "item_id with author",
			body: `[{"item_id":"a","title":"T","author":"A"}]`,
			want: []models.Candidate{{ExternalID: "a", Title: "T", Artist: "A"}},
		},
		{
			name: "Id with Name and Artists strings",
			body: `[{"Id":"b","Name":"T2","Artists":["", "B"]}]`,
			want: []models.Candidate{{ExternalID: "b", Title: "T2", Artist: "B"}},
		},
		{
			name: "Artists objects",
			body: `[{"Id":"c","name":"T3","Artists":[{"Name":"C"}]}]`,
			want: []models.Candidate{{ExternalID: "c", Title: "T3", Artist: "C"}},
		},
		{
			name: "numeric id",
			body: `[{"item_id":12345,"artist":"D"}]`,
			want: []models.Candidate{{ExternalID: "12345", Artist: "D"}},
		},
		{
			name: "records without id dropped",
			body: `[{"title":"orphan"},{"item_id":""},{"item_id":"e"}]`,
			want: []models.Candidate{{ExternalID: "e"}},
		},
		{
			name: "wrapped items",
			body: `{"Items":[{"Id":"f"}],"TotalRecordCount":1}`,
			want: []models.Candidate{{ExternalID: "f"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCandidates([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d candidates, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("candidate %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{`not json`, `{"status":"ok"}`} {
			if _, err := DecodeCandidates([]byte(body)); !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("%s: expected ErrAPIRequest, got %v", body, err)
			}
		}
	})
}

func TestRelayEndpoint(t *testing.T) {
	tests := map[string]string{
		"/":                      "health",
		"/api/playlists":         "playlists",
		"/api/status/123":        "status",
		"/api/cancel_all/clus":   "cancel_all",
		"/chat/api/chatPlaylist": "chat_api_chatPlaylist",
		"/api/clap/search":       "clap_search",
	}
	for path, want := range tests {
		if got := relayEndpoint(path); got != want {
			t.Errorf("relayEndpoint(%q) = %q, want %q", path, got, want)
		}
	}
}
