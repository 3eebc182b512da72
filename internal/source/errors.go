package source

import "errors"

var (
	// ErrInvalidConfig marks configuration errors detected before any network activity.
	ErrInvalidConfig = errors.New("invalid connector configuration")

	// ErrConnectionUnavailable marks a failed connect; the whole connect cycle may be retried.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrNotConnected is returned by operations that need an active filter.
	ErrNotConnected = errors.New("connector is not connected")

	// ErrAlreadyConnected is returned by Connect on a connector that is not idle.
	ErrAlreadyConnected = errors.New("connector is already connected")
)
