package localstore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
)

// flakyBlob wraps a Blob and fails reads or writes on demand.
type flakyBlob struct {
	Blob
	mu       sync.Mutex
	failGet  bool
	failSet  bool
	setCalls int
}

func (f *flakyBlob) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("medium unavailable")
	}
	return f.Blob.Get(ctx, key)
}

func (f *flakyBlob) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.setCalls++
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("disk full")
	}
	return f.Blob.Set(ctx, key, value)
}

func newTestStore(t *testing.T, blob Blob) *BlobStore {
	t.Helper()
	return NewBlobStore(blob, WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)))
}

func record(id string) catch.LocalCatch {
	return catch.LocalCatch{
		LocalID:           id,
		LocalURI:          "/data/catches/" + id + ".jpg",
		SpeciesLabel:      "Bluegill",
		SpeciesConfidence: 0.8,
		CreatedAt:         "2026-05-01T10:00:00Z",
	}
}

func localIDs(items []catch.LocalCatch) []string {
	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].LocalID)
	}
	return ids
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, blob Blob) {
	t.Helper()
	ctx := t.Context()
	s := newTestStore(t, blob)

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)

	require.NoError(t, s.Insert(ctx, record("a")))
	require.NoError(t, s.Insert(ctx, record("b")))
	require.NoError(t, s.Insert(ctx, record("c")))

	items, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, localIDs(items), "newest insert first")

	label := "Green Sunfish"
	require.NoError(t, s.Update(ctx, "b", catch.Patch{SpeciesLabel: &label}))
	require.NoError(t, s.Update(ctx, "b", catch.MarkSynced(77)))
	require.NoError(t, s.Update(ctx, "missing", catch.MarkSynced(1)), "absent id is a no-op")

	got, ok, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Green Sunfish", got.SpeciesLabel)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(77), *got.RemoteID)
	assert.InDelta(t, 0.8, got.SpeciesConfidence, 1e-9, "unpatched fields are preserved")

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, localIDs(pending))

	isBluegill := func(c catch.LocalCatch) bool { return c.SpeciesLabel == "Bluegill" }
	applied, err := s.UpdateIf(ctx, "b", isBluegill, catch.MarkSynced(78))
	require.NoError(t, err)
	assert.False(t, applied, "condition fails on the stored label")
	got, _, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(77), *got.RemoteID)

	applied, err = s.UpdateIf(ctx, "a", isBluegill, catch.MarkSynced(5))
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.UpdateIf(ctx, "missing", isBluegill, catch.MarkSynced(6))
	require.NoError(t, err)
	assert.False(t, applied, "absent id is not applied")

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, localIDs(pending))

	require.NoError(t, s.Remove(ctx, "c"))
	require.NoError(t, s.Remove(ctx, "c"), "removing twice is a no-op")

	items, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, localIDs(items))

	_, ok, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBlobStore(t *testing.T) {
	storeContract(t, NewMemoryBlob())
}

func TestFileBlobStore(t *testing.T) {
	blob, err := NewFileBlob(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	storeContract(t, blob)

	// a fresh store over the same directory sees the persisted records
	s := newTestStore(t, blob)
	items, err := s.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, localIDs(items))
}

func TestSQLiteBlobStore(t *testing.T) {
	blob, err := OpenSQLiteBlob(filepath.Join(t.TempDir(), "catchsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = blob.Close() })

	storeContract(t, blob)
}

func TestListRecoversFromReadFailure(t *testing.T) {
	blob := &flakyBlob{Blob: NewMemoryBlob()}
	s := newTestStore(t, blob)
	require.NoError(t, s.Insert(t.Context(), record("a")))

	blob.failGet = true
	items, err := s.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMutationDoesNotOverwriteOnReadFailure(t *testing.T) {
	blob := &flakyBlob{Blob: NewMemoryBlob()}
	s := newTestStore(t, blob)
	require.NoError(t, s.Insert(t.Context(), record("a")))
	require.NoError(t, s.Insert(t.Context(), record("b")))

	blob.failGet = true
	err := s.Insert(t.Context(), record("c"))
	require.Error(t, err)

	var storageErr *errors.StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.True(t, errors.IsCategory(err, errors.CategoryStorage))
	assert.Equal(t, 2, blob.setCalls, "the failed insert must not write")

	blob.failGet = false
	items, err := s.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, localIDs(items))
}

func TestInsertWriteFailure(t *testing.T) {
	blob := &flakyBlob{Blob: NewMemoryBlob(), failSet: true}
	s := newTestStore(t, blob)

	err := s.Insert(t.Context(), record("a"))
	var storageErr *errors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert", storageErr.Op)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.PriorityHigh, ee.GetPriority())
}

func TestCorruptBlobIsTreatedAsNoData(t *testing.T) {
	blob := NewMemoryBlob()
	require.NoError(t, blob.Set(t.Context(), CatchesKey, []byte("{not json")))
	s := newTestStore(t, blob)

	items, err := s.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.Error(t, s.Insert(t.Context(), record("a")), "corrupt data is never silently replaced")
	assert.Equal(t, []byte("{not json"), blob.Snapshot()[CatchesKey])
}

func TestConcurrentInsertsAreSerialized(t *testing.T) {
	s := newTestStore(t, NewMemoryBlob())

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Insert(t.Context(), record(fmt.Sprintf("id-%d", i))))
		}()
	}
	wg.Wait()

	items, err := s.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, items, n, "no insert may be lost to a concurrent read-modify-write")
}

func TestKeyFileName(t *testing.T) {
	assert.Equal(t, "_fish_catches_v1.json", keyFileName(CatchesKey))
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{conf.BackendMemory, conf.BackendFile, conf.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			settings := &conf.Settings{Storage: conf.StorageSettings{
				Backend: backend,
				DataDir: filepath.Join(dir, backend),
				SQLite:  conf.SQLiteSettings{Path: filepath.Join(dir, backend, "catchsync.db")},
			}}
			store, closer, err := Open(settings)
			require.NoError(t, err)
			t.Cleanup(func() { _ = closer.Close() })

			require.NoError(t, store.Insert(t.Context(), record("x")))
			items, err := store.List(t.Context())
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}

	_, _, err := Open(&conf.Settings{Storage: conf.StorageSettings{Backend: "bolt"}})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
