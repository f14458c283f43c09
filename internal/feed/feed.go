package feed

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/identity"
	"github.com/tphakala/catchsync/internal/localstore"
	"github.com/tphakala/catchsync/internal/logger"
)

const (
	DefaultListLimit = 200
	DefaultCacheTTL  = 24 * time.Hour
)

// GetLogger returns the feed module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("feed")
}

// Lister fetches the remote catch page.
type Lister interface {
	List(ctx context.Context, uid string, limit int) ([]catch.RemoteCatch, error)
}

// Syncer runs a sync pass.
type Syncer interface {
	TriggerSync(ctx context.Context, uid string) (catchsync.Result, bool)
}

// Snapshot is one rendering of the feed.
type Snapshot struct {
	UserID     string
	Identified bool
	Rows       []catch.MergedRow
	// RemoteErr is set when the remote page could not be fetched. Rows then
	// hold the last cached page, if any, plus local records.
	RemoteErr error
	// Stale reports that the remote rows came from the cache.
	Stale     bool
	FetchedAt time.Time
}

type cachedPage struct {
	items     []catch.RemoteCatch
	fetchedAt time.Time
}

// Feed loads merged snapshots for the current identity.
type Feed struct {
	store    localstore.Store
	identity identity.Resolver
	remote   Lister
	syncer   Syncer
	limit    int
	pages    *cache.Cache

	// concurrent loads for one user share a single remote fetch
	fetches singleflight.Group
	now     func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithListLimit sets the remote page size.
func WithListLimit(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithCacheTTL sets how long the last remote page is kept for offline use.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Feed) {
		if ttl > 0 {
			f.pages = cache.New(ttl, 0)
		}
	}
}

// WithSyncer enables Refresh to run a sync pass first.
func WithSyncer(s Syncer) Option {
	return func(f *Feed) { f.syncer = s }
}

// New creates a Feed.
func New(store localstore.Store, id identity.Resolver, remote Lister, opts ...Option) *Feed {
	f := &Feed{
		store:    store,
		identity: id,
		remote:   remote,
		limit:    DefaultListLimit,
		// no janitor goroutine; expired pages are dropped on write
		pages: cache.New(DefaultCacheTTL, 0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load builds a snapshot. Failing to reach the server never fails the load.
func (f *Feed) Load(ctx context.Context) (Snapshot, error) {
	local, err := f.store.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	uid, ok := f.identity.CurrentID(ctx)
	if !ok {
		return Snapshot{Rows: Merge(nil, local, false)}, nil
	}

	snap := Snapshot{UserID: uid, Identified: true}
	remote, err := f.fetch(ctx, uid)
	if err != nil {
		snap.RemoteErr = err
		if page, found := f.pages.Get(uid); found {
			p := page.(cachedPage)
			remote = p.items
			snap.Stale = true
			snap.FetchedAt = p.fetchedAt
		}
		GetLogger().Warn("failed to fetch remote catches",
			logger.String("user_id", uid),
			logger.Bool("using_cached_page", snap.Stale),
			logger.Error(err))
	} else {
		snap.FetchedAt = f.now()
		f.pages.DeleteExpired()
		f.pages.SetDefault(uid, cachedPage{items: remote, fetchedAt: snap.FetchedAt})
	}

	snap.Rows = Merge(remote, local, true)
	return snap, nil
}

// fetch shares one in-flight List per user. The shared call is detached from
// any single caller's cancellation and bounded by the HTTP client timeout; a
// caller whose ctx ends stops waiting without failing the others.
func (f *Feed) fetch(ctx context.Context, uid string) ([]catch.RemoteCatch, error) {
	shared := context.WithoutCancel(ctx)
	ch := f.fetches.DoChan(uid, func() (any, error) {
		return f.remote.List(shared, uid, f.limit)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]catch.RemoteCatch), nil
	}
}

// Refresh runs a sync pass for the current identity, then loads.
func (f *Feed) Refresh(ctx context.Context) (Snapshot, error) {
	if f.syncer != nil {
		if uid, ok := f.identity.CurrentID(ctx); ok {
			f.syncer.TriggerSync(ctx, uid)
		}
	}
	return f.Load(ctx)
}

// Forget drops the cached page of uid, e.g. after a remote deletion.
func (f *Feed) Forget(uid string) {
	f.pages.Delete(uid)
}
