package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Backend and media server errors
	ErrTransport          = fmt.Errorf("transport failure")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrItemNotFound       = fmt.Errorf("item not found")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")

	// Playlist sync errors
	ErrInconsistentState = fmt.Errorf("inconsistent playlist state")
	ErrPlaylistVanished  = fmt.Errorf("%w: playlist vanished during update", ErrInconsistentState)
	ErrClearNotConverged = fmt.Errorf("%w: playlist could not be cleared", ErrInconsistentState)
	ErrSweepInProgress   = fmt.Errorf("sync sweep already in progress")
	ErrOwnerBusy         = fmt.Errorf("playlist update already in progress for owner")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
