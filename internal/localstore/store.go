package localstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// CatchesKey is the blob key holding the serialized catch list.
const CatchesKey = "@fish/catches:v1"

// GetLogger returns the localstore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("localstore")
}

// Store is the on-device catch store. Records are ordered newest-first by insertion.
type Store interface {
	// List returns all records. A failed read is logged and yields an empty list.
	List(ctx context.Context) ([]catch.LocalCatch, error)
	// Get looks up one record by local id.
	Get(ctx context.Context, localID string) (catch.LocalCatch, bool, error)
	// Pending returns records with synced == false, in list order.
	Pending(ctx context.Context) ([]catch.LocalCatch, error)
	// Insert prepends a record.
	Insert(ctx context.Context, c catch.LocalCatch) error
	// Update merges patch into the record; absent ids are a no-op.
	Update(ctx context.Context, localID string, patch catch.Patch) error
	// UpdateIf applies patch only when cond holds for the stored record, checked
	// under the same lock as the write. It reports whether the patch was applied.
	UpdateIf(ctx context.Context, localID string, cond func(catch.LocalCatch) bool, patch catch.Patch) (bool, error)
	// Remove deletes the record; absent ids are a no-op.
	Remove(ctx context.Context, localID string) error
}

// BlobStore implements Store as read-modify-write of one JSON array in a Blob.
// All operations are serialized by mu; updates are last-writer-wins on whole records.
type BlobStore struct {
	mu   sync.Mutex
	blob Blob
	key  string
	log  logger.Logger
}

// Option configures a BlobStore.
type Option func(*BlobStore)

// WithKey overrides the blob key.
func WithKey(key string) Option {
	return func(s *BlobStore) { s.key = key }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *BlobStore) { s.log = l }
}

// NewBlobStore wraps blob as a catch Store.
func NewBlobStore(blob Blob, opts ...Option) *BlobStore {
	s := &BlobStore{blob: blob, key: CatchesKey}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	return s
}

func (s *BlobStore) List(ctx context.Context) ([]catch.LocalCatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readLocked(ctx)
	if err != nil {
		s.log.Warn("failed to read catches, treating as empty",
			logger.String("key", s.key),
			logger.Error(err))
		return []catch.LocalCatch{}, nil
	}
	return items, nil
}

func (s *BlobStore) Get(ctx context.Context, localID string) (catch.LocalCatch, bool, error) {
	items, err := s.List(ctx)
	if err != nil {
		return catch.LocalCatch{}, false, err
	}
	for i := range items {
		if items[i].LocalID == localID {
			return items[i], true, nil
		}
	}
	return catch.LocalCatch{}, false, nil
}

func (s *BlobStore) Pending(ctx context.Context) ([]catch.LocalCatch, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(items, func(c catch.LocalCatch) bool { return !c.Pending() }), nil
}

func (s *BlobStore) Insert(ctx context.Context, c catch.LocalCatch) error {
	return s.mutate(ctx, "insert", func(items []catch.LocalCatch) ([]catch.LocalCatch, bool) {
		return slices.Insert(items, 0, c), true
	})
}

func (s *BlobStore) Update(ctx context.Context, localID string, patch catch.Patch) error {
	return s.mutate(ctx, "update", func(items []catch.LocalCatch) ([]catch.LocalCatch, bool) {
		idx := slices.IndexFunc(items, func(c catch.LocalCatch) bool { return c.LocalID == localID })
		if idx < 0 {
			return items, false
		}
		items[idx] = patch.Apply(items[idx])
		return items, true
	})
}

func (s *BlobStore) UpdateIf(ctx context.Context, localID string, cond func(catch.LocalCatch) bool, patch catch.Patch) (bool, error) {
	var applied bool
	err := s.mutate(ctx, "update", func(items []catch.LocalCatch) ([]catch.LocalCatch, bool) {
		idx := slices.IndexFunc(items, func(c catch.LocalCatch) bool { return c.LocalID == localID })
		if idx < 0 || !cond(items[idx]) {
			return items, false
		}
		items[idx] = patch.Apply(items[idx])
		applied = true
		return items, true
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *BlobStore) Remove(ctx context.Context, localID string) error {
	return s.mutate(ctx, "remove", func(items []catch.LocalCatch) ([]catch.LocalCatch, bool) {
		n := len(items)
		items = slices.DeleteFunc(items, func(c catch.LocalCatch) bool { return c.LocalID == localID })
		return items, len(items) != n
	})
}

// mutate runs a read-modify-write cycle. A failed read aborts the mutation so a
// transient read error can never overwrite previously stored records.
func (s *BlobStore) mutate(ctx context.Context, op string, fn func([]catch.LocalCatch) ([]catch.LocalCatch, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readLocked(ctx)
	if err != nil {
		return s.storageError(op, err)
	}

	items, changed := fn(items)
	if !changed {
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return s.storageError(op, err)
	}
	if err := s.blob.Set(ctx, s.key, data); err != nil {
		return s.storageError(op, err)
	}
	return nil
}

func (s *BlobStore) readLocked(ctx context.Context) ([]catch.LocalCatch, error) {
	data, err := s.blob.Get(ctx, s.key)
	if errors.Is(err, ErrBlobNotFound) {
		return []catch.LocalCatch{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []catch.LocalCatch{}, nil
	}

	var items []catch.LocalCatch
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []catch.LocalCatch{}
	}
	return items, nil
}

func (s *BlobStore) storageError(op string, err error) error {
	s.log.Error("catch store operation failed",
		logger.String("operation", op),
		logger.String("key", s.key),
		logger.Error(err))
	return errors.New(&errors.StorageError{Op: op, Err: err}).
		Component("localstore").
		Category(errors.CategoryStorage).
		Priority(errors.PriorityHigh).
		Context("operation", op).
		Build()
}
