package server

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/musemix/internal/mix"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/services"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/desertthunder/musemix/internal/tasks"
	tu "github.com/desertthunder/musemix/internal/testing"
	"github.com/goccy/go-json"
)

type relayCall struct {
	method string
	path   string
	query  url.Values
	body   []byte
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []relayCall
	resp  *services.APIResponse
	err   error
}

func (f *fakeRelay) Relay(ctx context.Context, method, path string, query url.Values, body []byte) (*services.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, relayCall{method, path, query, body})
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &services.APIResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
}

func (f *fakeRelay) last() relayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type blockingSweeps struct {
	started chan struct{}
	release chan struct{}
	running bool
}

func (b *blockingSweeps) Running() bool { return b.running }

func (b *blockingSweeps) Run(ctx context.Context, trigger string, progress chan<- tasks.ProgressUpdate) (*models.SyncRun, error) {
	close(b.started)
	<-b.release
	return models.NewSyncRun(1, trigger), nil
}

func newMixer(lib *tu.Library, sim *tu.Similarity) *mix.Aggregator {
	cfg := mix.DefaultConfig()
	cfg.MinViable = 0
	return mix.NewAggregator(sim, lib, cfg, mix.WithRand(rand.New(rand.NewPCG(3, 4))))
}

func testLibrary() (*tu.Library, *tu.Similarity) {
	lib := tu.NewLibrary().
		Add(models.Item{Key: "root", Name: "Root", Kind: models.KindTrack}).
		Add(models.Item{Key: "c1", Name: "One", Kind: models.KindTrack, Album: "LP", Artists: []string{"Band", "Guest"}}).
		Add(models.Item{Key: "c2", Name: "Two", Kind: models.KindTrack})
	sim := tu.NewSimilarity()
	sim.Similar["root"] = tu.SimilarityResult{Candidates: []models.Candidate{{ExternalID: "c1"}, {ExternalID: "c2"}}}
	return lib, sim
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestInstantMix(t *testing.T) {
	t.Run("Returns Item Envelope", func(t *testing.T) {
		lib, sim := testLibrary()
		srv := New(newMixer(lib, sim), &fakeRelay{}, 10)

		req := httptest.NewRequest(http.MethodGet, "/Items/root/InstantMix?UserId=u1&Limit=5", nil)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[InstantMixResponse](t, rec)
		if resp.TotalRecordCount != 3 || len(resp.Items) != 3 {
			t.Fatalf("expected anchor plus 2 similar items, got %+v", resp)
		}
		if resp.Items[0].ID != "root" {
			t.Errorf("expected the root track to anchor the mix, got %s", resp.Items[0].ID)
		}
		second := resp.Items[1]
		if second.ID != "c1" || second.Type != "Audio" {
			t.Errorf("unexpected second item %+v", second)
		}
		if second.AlbumArtist != "Band" || second.Album != "LP" {
			t.Errorf("expected album metadata to be mapped, got %+v", second)
		}
		if sim.Queries[0].N == 0 {
			t.Error("expected a bounded similarity request")
		}
	})

	t.Run("Unknown Root Is Empty", func(t *testing.T) {
		lib, sim := testLibrary()
		srv := New(newMixer(lib, sim), &fakeRelay{}, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Items/missing/InstantMix", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != `{"Items":[],"TotalRecordCount":0}` {
			t.Errorf("unexpected body %s", body)
		}
	})

	t.Run("Invalid Limit", func(t *testing.T) {
		lib, sim := testLibrary()
		srv := New(newMixer(lib, sim), &fakeRelay{}, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Items/root/InstantMix?limit=abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Library Failure Is Empty", func(t *testing.T) {
		lib, sim := testLibrary()
		lib.BeforeCall = func(ctx context.Context, op string) error {
			if op == "GetByID" {
				return errors.New("database locked")
			}
			return nil
		}
		srv := New(newMixer(lib, sim), &fakeRelay{}, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Items/root/InstantMix", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != `{"Items":[],"TotalRecordCount":0}` {
			t.Errorf("expected empty envelope, got %s", body)
		}
	})

	t.Run("Deadline Keeps Partial Mix", func(t *testing.T) {
		lib, sim := testLibrary()
		sim.BeforeCall = func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}
		srv := New(newMixer(lib, sim), &fakeRelay{}, 10)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/Items/root/InstantMix", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[InstantMixResponse](t, rec)
		if resp.TotalRecordCount != 1 || resp.Items[0].ID != "root" {
			t.Errorf("expected partial mix holding the anchor, got %+v", resp)
		}
	})
}

func TestRelay(t *testing.T) {
	t.Run("Forwards Query On GET", func(t *testing.T) {
		relay := &fakeRelay{resp: &services.APIResponse{
			StatusCode: http.StatusTeapot,
			Headers:    http.Header{"Content-Type": []string{"text/plain"}},
			Body:       []byte("short and stout"),
		}}
		srv := New(nil, relay, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/AudioMuseAI/similar_tracks?item_id=x&n=3", nil))

		if rec.Code != http.StatusTeapot {
			t.Errorf("expected backend status to pass through, got %d", rec.Code)
		}
		if rec.Body.String() != "short and stout" || rec.Header().Get("Content-Type") != "text/plain" {
			t.Errorf("expected backend body and content type, got %q %q", rec.Body.String(), rec.Header().Get("Content-Type"))
		}
		call := relay.last()
		if call.path != "/api/similar_tracks" || call.query.Get("n") != "3" {
			t.Errorf("unexpected relay call %+v", call)
		}
	})

	t.Run("Forwards Body On POST", func(t *testing.T) {
		relay := &fakeRelay{}
		srv := New(nil, relay, 10)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/AudioMuseAI/chat/playlist?ignored=1", strings.NewReader(`{"userInput":"jazz"}`))
		srv.Routes().ServeHTTP(rec, req)

		call := relay.last()
		if call.path != "/chat/api/chatPlaylist" || string(call.body) != `{"userInput":"jazz"}` {
			t.Errorf("unexpected relay call %+v", call)
		}
		if call.query != nil {
			t.Errorf("expected POST query to be dropped, got %v", call.query)
		}
	})

	t.Run("Fills Path Parameters", func(t *testing.T) {
		relay := &fakeRelay{}
		srv := New(nil, relay, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/AudioMuseAI/cancel_all/main_analysis", nil))

		if got := relay.last().path; got != "/api/cancel_all/main_analysis" {
			t.Errorf("expected filled backend path, got %s", got)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		srv := New(nil, &fakeRelay{err: shared.ErrTransport}, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/AudioMuseAI/playlists", nil))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("Health", func(t *testing.T) {
		relay := &fakeRelay{resp: &services.APIResponse{StatusCode: http.StatusServiceUnavailable, Body: []byte("down")}}
		srv := New(nil, relay, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/AudioMuseAI/health", nil))

		if rec.Code != http.StatusServiceUnavailable || rec.Body.Len() != 0 {
			t.Errorf("expected bare 503, got %d %q", rec.Code, rec.Body.String())
		}
		if relay.last().path != "/" {
			t.Errorf("expected backend root probe, got %s", relay.last().path)
		}
	})

	t.Run("Info", func(t *testing.T) {
		srv := New(nil, &fakeRelay{}, 10, WithVersion("1.2.3"))

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/AudioMuseAI/info", nil))

		resp := decode[struct {
			Version            string
			AvailableEndpoints []string
		}](t, rec)
		if resp.Version != "1.2.3" {
			t.Errorf("expected version 1.2.3, got %s", resp.Version)
		}
		if len(resp.AvailableEndpoints) != len(relayRoutes)+2 {
			t.Errorf("expected %d endpoints, got %d", len(relayRoutes)+2, len(resp.AvailableEndpoints))
		}
	})
}

func TestTriggerSweep(t *testing.T) {
	t.Run("Not Configured", func(t *testing.T) {
		srv := New(nil, &fakeRelay{}, 10)

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/AudioMuseAI/fingerprint/sweep", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("Wait Returns Outcomes", func(t *testing.T) {
		sim := tu.NewSimilarity()
		sim.Fingerprints["alice"] = tu.SimilarityResult{Candidates: []models.Candidate{{ExternalID: "11111111-1111-1111-1111-111111111111"}}}
		playlists := tu.NewPlaylists()
		manager := tasks.NewManager(playlists, nil, tasks.ManagerConfig{}, nil)
		users := &tu.Directory{Users: []models.User{{ID: "u1", Name: "alice"}}}
		sweeper := tasks.NewSweeper(users, sim, manager, tasks.SweepConfig{})
		srv := New(nil, &fakeRelay{}, 10, WithSweeps(context.Background(), sweeper))

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/AudioMuseAI/fingerprint/sweep?wait=true", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[SweepResponse](t, rec)
		if resp.Status != models.RunCompleted || len(resp.Outcomes) != 1 {
			t.Fatalf("unexpected sweep response %+v", resp)
		}
		if o := resp.Outcomes[0]; o.State != string(models.SyncDone) || o.Playlist != "alice-fingerprint" || o.Items != 1 {
			t.Errorf("unexpected outcome %+v", o)
		}
	})

	t.Run("Background And Conflict", func(t *testing.T) {
		sweeps := &blockingSweeps{started: make(chan struct{}), release: make(chan struct{})}
		srv := New(nil, &fakeRelay{}, 10, WithSweeps(context.Background(), sweeps))
		handler := srv.Routes()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/AudioMuseAI/fingerprint/sweep", nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}

		select {
		case <-sweeps.started:
		case <-time.After(time.Second):
			t.Fatal("background sweep never started")
		}

		sweeps.running = true
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/AudioMuseAI/fingerprint/sweep", nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409 while a sweep runs, got %d", rec.Code)
		}
		close(sweeps.release)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	srv := New(nil, &fakeRelay{}, 10)
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/AudioMuseAI/info", nil))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `route="/AudioMuseAI/info"`) {
		t.Errorf("expected request metrics labelled by route pattern")
	}
}
