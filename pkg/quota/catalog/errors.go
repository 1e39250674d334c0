package catalog

import "errors"

// ErrInvalidEntry is returned when a limit entry has a non-positive ceiling.
var ErrInvalidEntry = errors.New("invalid limit entry")
