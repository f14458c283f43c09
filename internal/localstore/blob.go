// Package localstore persists the device's catch records as one ordered JSON
// array under a single key of a key-value blob store.
package localstore

import (
	"context"
	"maps"
	"sync"

	"github.com/tphakala/catchsync/internal/errors"
)

// ErrBlobNotFound is returned by Blob.Get for a key that was never written.
var ErrBlobNotFound = errors.NewStd("blob not found")

// Blob is a single-key-at-a-time key-value store holding opaque values.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryBlob keeps values in process memory.
type MemoryBlob struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryBlob returns an empty in-memory blob store.
func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{values: make(map[string][]byte)}
}

func (m *MemoryBlob) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBlob) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBlob) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Snapshot returns a copy of all stored values.
func (m *MemoryBlob) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}
