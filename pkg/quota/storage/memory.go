package storage

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/ganymede/pkg/quota/state"
)

// MemoryBackend implements Backend with no persistence. It is the default
// backend; all data is lost when the process exits.
type MemoryBackend struct {
	mu sync.RWMutex
	st *state.QuotaState
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Save stores a copy of the state.
func (m *MemoryBackend) Save(ctx context.Context, s *state.QuotaState) error {
	if s == nil {
		return fmt.Errorf("state cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = s.Clone()
	return nil
}

// Load returns a copy of the stored state, or (nil, nil) if absent.
func (m *MemoryBackend) Load(ctx context.Context) (*state.QuotaState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.st == nil {
		return nil, nil
	}
	return m.st.Clone(), nil
}

// Delete removes the stored state.
func (m *MemoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = nil
	return nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}
