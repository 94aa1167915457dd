// API service for making raw HTTP requests to the similarity backend
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/musemix/internal/shared"
	"github.com/goccy/go-json"
)

// APIService makes raw HTTP requests against a base URL and relays the response unchanged.
//
// It backs the pass-through endpoints, where status and body are forwarded to the caller as-is.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports whether the status is 2xx.
func (r *APIResponse) OK() bool { return isSuccess(r.StatusCode) }

// Err returns a [StatusError] for non-2xx responses and nil otherwise.
func (r *APIResponse) Err() error {
	if r.OK() {
		return nil
	}
	return newStatusError(r.StatusCode, r.Body)
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, nil, data)
}

// Do performs a request with an optional query and JSON body.
//
// Only network failures are returned as errors (wrapping [shared.ErrTransport]); any HTTP
// status, including non-2xx, is returned in the [APIResponse].
func (a *APIService) Do(ctx context.Context, method, path string, query url.Values, body []byte) (*APIResponse, error) {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", shared.ErrTransport, err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
