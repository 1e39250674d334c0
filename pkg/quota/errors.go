package quota

import "errors"

var (
	// ErrNotInitialized is returned when a mutating operation is invoked
	// before Initialize.
	ErrNotInitialized = errors.New("tracker not initialized")

	// ErrClosed is returned when an operation is invoked after Close.
	ErrClosed = errors.New("tracker closed")
)
