package storage

import (
	"context"
	"errors"

	"mercator-hq/ganymede/pkg/quota/state"
)

// Backend defines the interface for quota state persistence.
// Implementations must be thread-safe.
//
// The quota record is a process-wide singleton, so the interface carries
// no key: Save overwrites the single record and Load returns it.
type Backend interface {
	// Save persists the quota state, overwriting any previous record.
	Save(ctx context.Context, s *state.QuotaState) error

	// Load retrieves the persisted quota state. It returns (nil, nil)
	// when no record exists and an error wrapping ErrCorruptState when
	// a record exists but cannot be decoded; callers treat both as
	// absent and reinitialize.
	Load(ctx context.Context) (*state.QuotaState, error)

	// Delete removes the persisted record. No-op if absent.
	Delete(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// ErrCorruptState is wrapped by Load when the persisted record exists but
// cannot be decoded.
var ErrCorruptState = errors.New("corrupt quota state record")
