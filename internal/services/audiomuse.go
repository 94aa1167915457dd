// AudioMuse AI similarity backend implementation of [models.SimilarityClient]
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musemix/internal/metrics"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const (
	similarTracksPath = "/api/similar_tracks"
	fingerprintPath   = "/api/sonic_fingerprint/generate"
	breakerName       = "audiomuse"
)

// AudioMuseService talks to the AudioMuse AI backend.
//
// Typed calls and raw relays share one circuit breaker: transport failures and 5xx responses
// count against it, and an open breaker surfaces as [shared.ErrTransport].
type AudioMuseService struct {
	api     *APIService
	breaker *gobreaker.CircuitBreaker[*APIResponse]
	logger  *log.Logger
}

// NewAudioMuseService builds a client from cfg. When cfg.Token is set, every request carries it
// as a bearer token.
func NewAudioMuseService(cfg shared.BackendConfig, logger *log.Logger) *AudioMuseService {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		client = bearerClient(client, cfg.Token)
	}
	return NewAudioMuseServiceWithClient(cfg, client, logger)
}

// NewAudioMuseServiceWithClient builds a client over an existing [http.Client].
func NewAudioMuseServiceWithClient(cfg shared.BackendConfig, client *http.Client, logger *log.Logger) *AudioMuseService {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	logger = shared.WithLogger(logger, "component", "audiomuse")

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*APIResponse](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &AudioMuseService{
		api:     NewAPIService(cfg.URL, client),
		breaker: breaker,
		logger:  logger,
	}
}

// bearerClient wraps base with a static oauth2 token source.
func bearerClient(base *http.Client, token string) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	client.Timeout = base.Timeout
	return client
}

// BreakerState returns the current circuit breaker state.
func (s *AudioMuseService) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// execute runs one request through the breaker. 5xx responses are both returned and reported
// to the breaker as failures.
func (s *AudioMuseService) execute(ctx context.Context, endpoint, method, path string, query url.Values, body []byte) (*APIResponse, error) {
	started := time.Now()
	resp, err := s.breaker.Execute(func() (*APIResponse, error) {
		resp, err := s.api.Do(ctx, method, path, query, body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, resp.Err()
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ObserveBackendRequest(endpoint, "rejected", started)
		return nil, fmt.Errorf("%w: %w", shared.ErrTransport, err)
	case resp != nil && !resp.OK():
		metrics.ObserveBackendRequest(endpoint, "status", started)
		return resp, nil
	case err != nil:
		metrics.ObserveBackendRequest(endpoint, "transport", started)
		return nil, err
	}

	metrics.ObserveBackendRequest(endpoint, "success", started)
	return resp, nil
}

// QuerySimilar calls GET /api/similar_tracks.
//
// The seed is addressed by ItemID when set, otherwise by the Title and Artist pair.
func (s *AudioMuseService) QuerySimilar(ctx context.Context, q models.SimilarQuery) ([]models.Candidate, error) {
	query := url.Values{}
	query.Set("n", strconv.Itoa(q.N))
	switch {
	case q.ItemID != "":
		query.Set("item_id", q.ItemID)
	case q.Title != "" && q.Artist != "":
		query.Set("title", q.Title)
		query.Set("artist", q.Artist)
	default:
		return nil, fmt.Errorf("%w: similarity query needs an item id or a title and artist", shared.ErrInvalidInput)
	}
	if q.EliminateDuplicates {
		query.Set("eliminate_duplicates", "true")
	}

	resp, err := s.execute(ctx, "similar_tracks", http.MethodGet, similarTracksPath, query, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	candidates, err := DecodeCandidates(resp.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("similar tracks", "seed", q.ItemID, "requested", q.N, "received", len(candidates))
	return candidates, nil
}

// QueryFingerprint calls GET /api/sonic_fingerprint/generate for user.
func (s *AudioMuseService) QueryFingerprint(ctx context.Context, user string, n int) ([]models.Candidate, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: fingerprint query needs a user", shared.ErrMissingArgument)
	}

	query := url.Values{}
	query.Set("jellyfin_user_identifier", user)
	if n > 0 {
		query.Set("n", strconv.Itoa(n))
	}

	resp, err := s.execute(ctx, "sonic_fingerprint", http.MethodGet, fingerprintPath, query, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	return DecodeCandidates(resp.Body)
}

// Relay forwards a request to the backend and returns the response without interpreting the status.
func (s *AudioMuseService) Relay(ctx context.Context, method, path string, query url.Values, body []byte) (*APIResponse, error) {
	return s.execute(ctx, relayEndpoint(path), method, path, query, body)
}

// Health calls GET / on the backend.
func (s *AudioMuseService) Health(ctx context.Context) (*APIResponse, error) {
	return s.Relay(ctx, http.MethodGet, "/", nil, nil)
}

// CreatePlaylist asks the backend to create a named playlist from track ids.
func (s *AudioMuseService) CreatePlaylist(ctx context.Context, name string, trackIDs []string) (*APIResponse, error) {
	payload, err := json.Marshal(map[string]any{"playlist_name": name, "track_ids": trackIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode playlist: %w", err)
	}
	return s.Relay(ctx, http.MethodPost, "/api/create_playlist", nil, payload)
}

// relayEndpoint turns a backend path into a low-cardinality metric label.
func relayEndpoint(path string) string {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/api"), "/")
	if trimmed == "" {
		return "health"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "status", "cancel", "cancel_all":
		return parts[0]
	}
	return strings.Join(parts, "_")
}

// DecodeCandidates parses a backend candidate list.
//
// The payload is either a JSON array or an object holding one under "items"/"Items". Each record
// takes its identifier from "item_id" or "Id" (string or number), its title from "title", "name"
// or "Name", and its artist from "artist", "author", "Artist" or the first "Artists" entry.
// Records without an identifier are dropped.
func DecodeCandidates(body []byte) ([]models.Candidate, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		var wrapped map[string]json.RawMessage
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: failed to decode candidates: %w", shared.ErrAPIRequest, err)
		}
		list, ok := firstPresent(wrapped, "items", "Items")
		if !ok {
			return nil, fmt.Errorf("%w: candidate payload has no item list", shared.ErrAPIRequest)
		}
		if err := json.Unmarshal(list, &records); err != nil {
			return nil, fmt.Errorf("%w: failed to decode candidates: %w", shared.ErrAPIRequest, err)
		}
	}

	candidates := make([]models.Candidate, 0, len(records))
	for _, rec := range records {
		id := scalarField(rec, "item_id", "Id")
		if id == "" {
			continue
		}
		c := models.Candidate{
			ExternalID: id,
			Title:      scalarField(rec, "title", "name", "Name"),
			Artist:     scalarField(rec, "artist", "author", "Artist"),
		}
		if c.Artist == "" {
			c.Artist = firstArtist(rec["Artists"])
		}
		if raw, ok := rec["distance"]; ok {
			_ = json.Unmarshal(raw, &c.Distance)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func firstPresent(rec map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := rec[k]; ok && string(raw) != "null" {
			return raw, true
		}
	}
	return nil, false
}

// scalarField returns the first non-empty string or number among keys.
func scalarField(rec map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := rec[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

// firstArtist reads the first entry of an "Artists" array of strings or {"Name": ...} objects.
func firstArtist(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		for _, n := range names {
			if n != "" {
				return n
			}
		}
		return ""
	}
	var objs []struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		for _, o := range objs {
			if o.Name != "" {
				return o.Name
			}
		}
	}
	return ""
}
