package server

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/desertthunder/musemix/internal/shared"
	"github.com/go-chi/chi/v5"
)

const maxRelayBody = 10 << 20

// relayRoute maps a local /AudioMuseAI endpoint onto a backend path. Backend placeholders in
// braces are filled from the local route's URL parameters of the same name.
type relayRoute struct {
	method  string
	pattern string
	backend string
}

var relayRoutes = []relayRoute{
	{http.MethodGet, "/playlists", "/api/playlists"},
	{http.MethodGet, "/active_tasks", "/api/active_tasks"},
	{http.MethodGet, "/last_task", "/api/last_task"},
	{http.MethodGet, "/config", "/api/config"},
	{http.MethodGet, "/status/{task_id}", "/api/status/{task_id}"},
	{http.MethodGet, "/similar_tracks", "/api/similar_tracks"},
	{http.MethodGet, "/similar_artists", "/api/similar_artists"},
	{http.MethodGet, "/search_tracks", "/api/search_tracks"},
	{http.MethodGet, "/max_distance", "/api/max_distance"},
	{http.MethodGet, "/find_path", "/api/find_path"},
	{http.MethodGet, "/sonic_fingerprint/generate", "/api/sonic_fingerprint/generate"},
	{http.MethodGet, "/chat/config_defaults", "/chat/api/config_defaults"},
	{http.MethodPost, "/analysis", "/api/analysis/start"},
	{http.MethodPost, "/clustering", "/api/clustering/start"},
	{http.MethodPost, "/clap/search", "/api/clap/search"},
	{http.MethodPost, "/alchemy", "/api/alchemy"},
	{http.MethodPost, "/chat/playlist", "/chat/api/chatPlaylist"},
	{http.MethodPost, "/chat/create_playlist", "/chat/api/create_playlist"},
	{http.MethodPost, "/create_playlist", "/api/create_playlist"},
	{http.MethodPost, "/cancel/{task_id}", "/api/cancel/{task_id}"},
	{http.MethodPost, "/cancel_all/{task_type_prefix}", "/api/cancel_all/{task_type_prefix}"},
}

// backendPath fills the route's backend placeholders from the request.
func (rt relayRoute) backendPath(r *http.Request) string {
	path := rt.backend
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			return path
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			return path
		}
		name := path[start+1 : start+end]
		path = path[:start] + chi.URLParam(r, name) + path[start+end+1:]
	}
}

// relayHandler forwards the request and copies the backend status and body back unchanged.
//
// GET query strings are forwarded verbatim; POST bodies are forwarded as received.
func (s *Server) relayHandler(rt relayRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if rt.method == http.MethodPost && r.Body != nil {
			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRelayBody))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			body = data
		}

		query := r.URL.Query()
		if rt.method != http.MethodGet {
			query = nil
		}

		resp, err := s.relay.Relay(r.Context(), rt.method, rt.backendPath(r), query, body)
		if err != nil {
			s.relayFailed(w, rt.backend, err)
			return
		}

		contentType := resp.Headers.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
	}
}

// Health reports backend health as a bare status code.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp, err := s.relay.Relay(r.Context(), http.MethodGet, "/", nil, nil)
	if err != nil {
		s.relayFailed(w, "/", err)
		return
	}
	w.WriteHeader(resp.StatusCode)
}

// Info lists the service version and available endpoints.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{
		"GET /AudioMuseAI/health",
		"POST /AudioMuseAI/fingerprint/sweep",
	}
	for _, rt := range relayRoutes {
		endpoints = append(endpoints, rt.method+" /AudioMuseAI"+rt.pattern)
	}
	sort.Strings(endpoints)

	writeJSON(w, http.StatusOK, map[string]any{
		"Version":            s.version,
		"AvailableEndpoints": endpoints,
	})
}

func (s *Server) relayFailed(w http.ResponseWriter, path string, err error) {
	s.logger.Error("backend relay failed", "path", path, "err", err)
	if errors.Is(err, shared.ErrTransport) {
		writeError(w, http.StatusBadGateway, "similarity backend unreachable")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
