package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/desertthunder/musemix/internal/mix"
	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/services"
	"github.com/desertthunder/musemix/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// InstantMixResponse mirrors the media server's item query envelope.
type InstantMixResponse struct {
	Items            []services.JellyfinItem `json:"Items"`
	TotalRecordCount int                     `json:"TotalRecordCount"`
}

// SweepResponse describes a sweep started or finished over HTTP.
type SweepResponse struct {
	Status   string         `json:"status"`
	RunID    string         `json:"run_id,omitempty"`
	Outcomes []OutcomeEntry `json:"outcomes,omitempty"`
}

// OutcomeEntry is one owner's sync outcome.
type OutcomeEntry struct {
	Owner    string `json:"owner"`
	Playlist string `json:"playlist"`
	State    string `json:"state"`
	Items    int    `json:"items"`
	Error    string `json:"error,omitempty"`
}

// queryParam returns the first non-empty value among the given parameter spellings.
func queryParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// InstantMix handles GET /Items/{itemId}/InstantMix.
//
// An unknown root answers 200 with an empty list, matching the media server's own endpoint.
func (s *Server) InstantMix(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	limit := s.defaultLimit
	if raw := queryParam(r, "limit", "Limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var user *models.User
	if id := queryParam(r, "userId", "UserId"); id != "" {
		user = &models.User{ID: id}
	}

	result, err := s.mixer.Aggregate(r.Context(), itemID, user, limit)
	switch {
	case errors.Is(err, shared.ErrItemNotFound):
		writeJSON(w, http.StatusOK, InstantMixResponse{Items: []services.JellyfinItem{}})
		return
	case result != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		s.logger.Warn("instant mix interrupted, returning partial result", "item", itemID, "items", len(result.Items), "err", err)
	case err != nil:
		s.logger.Error("instant mix failed", "item", itemID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to build instant mix")
		return
	}

	writeJSON(w, http.StatusOK, mixResponse(result))
}

func mixResponse(result *mix.Result) InstantMixResponse {
	items := make([]services.JellyfinItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, services.JellyfinItem{
			ID:          it.Key,
			Name:        it.Name,
			Type:        it.Kind.MediaType(),
			Album:       it.Album,
			AlbumArtist: it.PrimaryArtist(),
			Artists:     it.Artists,
		})
	}
	return InstantMixResponse{Items: items, TotalRecordCount: len(items)}
}

// TriggerSweep handles POST /AudioMuseAI/fingerprint/sweep.
//
// The sweep runs in the background and the handler answers 202. With ?wait=true it runs on the
// request context and answers with the outcomes. A running sweep answers 409.
func (s *Server) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeps == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeps are not configured")
		return
	}
	if running, ok := s.sweeps.(interface{ Running() bool }); ok && running.Running() {
		writeError(w, http.StatusConflict, shared.ErrSweepInProgress.Error())
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		run, err := s.sweeps.Run(r.Context(), "http", nil)
		if errors.Is(err, shared.ErrSweepInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil && run == nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sweepResponse(run))
		return
	}

	go func() {
		if _, err := s.sweeps.Run(s.sweepCtx, "http", nil); err != nil {
			s.logger.Warn("background sweep did not run", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, SweepResponse{Status: "started"})
}

func sweepResponse(run *models.SyncRun) SweepResponse {
	resp := SweepResponse{Status: run.Status(), RunID: run.ID()}
	for _, o := range run.Outcomes() {
		resp.Outcomes = append(resp.Outcomes, OutcomeEntry{
			Owner:    o.Owner,
			Playlist: o.Playlist,
			State:    string(o.State),
			Items:    o.Items,
			Error:    o.ErrorMessage(),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
