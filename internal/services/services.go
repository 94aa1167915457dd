// package services implements the HTTP collaborators of the mix engine
//
// AudioMuse similarity backend, Jellyfin-compatible media server
package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/musemix/internal/models"
	"github.com/desertthunder/musemix/internal/shared"
)

var (
	_ models.SimilarityClient = (*AudioMuseService)(nil)
	_ models.LibraryStore     = (*JellyfinService)(nil)
	_ models.PlaylistStore    = (*JellyfinService)(nil)
	_ models.UserDirectory    = (*JellyfinService)(nil)
)

// StatusError is returned when a remote service answers with a non-2xx status.
//
// It wraps [shared.ErrAPIRequest], or [shared.ErrPlaylistNotFound] when a playlist path 404s.
type StatusError struct {
	StatusCode int
	Body       string
	kind       error
}

func newStatusError(code int, body []byte) *StatusError {
	return &StatusError{StatusCode: code, Body: string(body), kind: shared.ErrAPIRequest}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.StatusCode, truncate(e.Body, 256))
}

func (e *StatusError) Unwrap() error { return e.kind }

// IsStatus reports whether err is a [StatusError] with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
