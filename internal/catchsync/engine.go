// Package catchsync uploads pending local catches to the backend, reconciles
// server ids and labels into the local store, and guarantees that at most one
// sync pass runs at a time.
package catchsync

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/gateway"
	"github.com/tphakala/catchsync/internal/localstore"
	"github.com/tphakala/catchsync/internal/logger"
	"github.com/tphakala/catchsync/internal/observability/metrics"
)

// GetLogger returns the sync module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("sync")
}

// Images is the subset of the image store the engine needs.
type Images interface {
	Exists(path string) (bool, error)
	Open(path string) (io.ReadCloser, error)
}

// Remote is the subset of the gateway the engine needs.
type Remote interface {
	Create(ctx context.Context, uid string, up gateway.Upload) (gateway.Created, error)
	UpdateLabel(ctx context.Context, uid string, id int64, label string) error
}

// Notifier receives a summary of every completed pass.
type Notifier interface {
	PublishPass(ctx context.Context, uid string, r Result) error
}

// Status is the engine state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
)

// Result summarizes one pass.
type Result struct {
	UserID         string           `json:"user_id"`
	Skipped        bool             `json:"skipped"`
	Attempted      int              `json:"attempted"`
	Created        int              `json:"created"`
	Reconciled     int              `json:"reconciled"`
	Synced         int              `json:"synced"`
	Failed         int              `json:"failed"`
	SkippedMissing int              `json:"skipped_missing"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration"`
	Errors         map[string]error `json:"-"`
}

// Engine runs sync passes. The zero value is not usable; use New.
type Engine struct {
	store    localstore.Store
	images   Images
	remote   Remote
	metrics  *metrics.SyncMetrics
	notifier Notifier
	log      logger.Logger
	now      func() time.Time

	running atomic.Bool

	mu       sync.RWMutex
	last     *Result
	lastSync time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records pass metrics.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier publishes pass summaries.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine.
func New(store localstore.Store, images Images, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		images: images,
		remote: remote,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = GetLogger()
	}
	return e
}

// Status reports whether a pass is running.
func (e *Engine) Status() Status {
	if e.running.Load() {
		return StatusSyncing
	}
	return StatusIdle
}

// LastResult returns the most recent completed pass, if any.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

// LastSync returns when the last pass without failures finished.
func (e *Engine) LastSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// TriggerSync runs one pass for uid unless uid is empty or a pass is already
// running. The bool reports whether this call ran the pass. Per-record failures
// are logged and counted in the Result; TriggerSync itself never fails.
func (e *Engine) TriggerSync(ctx context.Context, uid string) (Result, bool) {
	if uid == "" {
		return Result{Skipped: true}, false
	}
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("sync pass already running, trigger ignored", logger.String("user_id", uid))
		e.metrics.RecordSkipped()
		return Result{UserID: uid, Skipped: true}, false
	}
	defer e.running.Store(false)

	e.metrics.SetInProgress(true)
	defer e.metrics.SetInProgress(false)

	result := e.runPass(ctx, uid)
	e.finish(ctx, &result)
	return result, true
}

func (e *Engine) runPass(ctx context.Context, uid string) Result {
	result := Result{UserID: uid, StartedAt: e.now(), Errors: map[string]error{}}

	pending, err := e.store.Pending(ctx)
	if err != nil {
		e.log.Error("failed to read pending catches", logger.Error(err))
		return result
	}
	if len(pending) == 0 {
		return result
	}

	e.log.Info("sync pass started",
		logger.String("user_id", uid),
		logger.Int("pending", len(pending)))

	for i := range pending {
		if err := ctx.Err(); err != nil {
			e.log.Info("sync pass cancelled",
				logger.Int("remaining", len(pending)-i),
				logger.Error(err))
			break
		}

		rec := &pending[i]
		result.Attempted++
		out, err := e.syncRecord(ctx, uid, rec)
		result.add(out)
		if err != nil {
			result.Errors[rec.LocalID] = err
			if out.missing {
				e.log.Warn("image missing, catch left pending",
					logger.String("local_id", rec.LocalID),
					logger.String("path", rec.LocalURI))
				continue
			}
			e.log.Warn("failed to sync catch",
				logger.String("local_id", rec.LocalID),
				logger.Error(err))
		}
	}
	return result
}

func (e *Engine) finish(ctx context.Context, r *Result) {
	r.Duration = time.Since(r.StartedAt)

	e.metrics.RecordPass(metrics.PassSummary{
		Seconds:        r.Duration.Seconds(),
		Attempted:      r.Attempted,
		Created:        r.Created,
		Reconciled:     r.Reconciled,
		Synced:         r.Synced,
		Failed:         r.Failed,
		SkippedMissing: r.SkippedMissing,
	})

	e.mu.Lock()
	snapshot := *r
	e.last = &snapshot
	if r.Synced == r.Attempted {
		e.lastSync = e.now()
	}
	e.mu.Unlock()

	if r.Attempted > 0 {
		e.log.Info("sync pass finished",
			logger.String("user_id", r.UserID),
			logger.Int("attempted", r.Attempted),
			logger.Int("synced", r.Synced),
			logger.Int("failed", r.Failed),
			logger.Int("skipped_missing", r.SkippedMissing),
			logger.Duration("duration", r.Duration))
	}

	if e.notifier != nil && r.Attempted > 0 {
		if err := e.notifier.PublishPass(ctx, r.UserID, *r); err != nil {
			e.log.Warn("failed to publish sync summary", logger.Error(err))
		}
	}
}

// UploadOne syncs a single local record on behalf of a waiting user. Unlike
// TriggerSync it reports failures to the caller, and it returns
// ErrSyncInProgress instead of waiting for a running pass.
func (e *Engine) UploadOne(ctx context.Context, uid, localID string) (Result, error) {
	if uid == "" {
		return Result{}, errors.New(errors.ErrNoIdentity).
			Component("sync").
			Category(errors.CategoryIdentity).
			Build()
	}
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, errors.New(errors.ErrSyncInProgress).
			Component("sync").
			Category(errors.CategoryState).
			Build()
	}
	defer e.running.Store(false)

	rec, ok, err := e.store.Get(ctx, localID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, errors.Newf("catch %q not found", localID).
			Component("sync").
			Category(errors.CategoryNotFound).
			Build()
	}

	result := Result{UserID: uid, StartedAt: e.now(), Errors: map[string]error{}}
	if !rec.Pending() {
		result.Duration = time.Since(result.StartedAt)
		return result, nil
	}

	result.Attempted = 1
	out, err := e.syncRecord(ctx, uid, &rec)
	result.add(out)
	if err != nil {
		result.Errors[localID] = err
	}
	e.finish(ctx, &result)
	return result, err
}

// Run calls TriggerSync for every identity received on triggers until ctx is
// done or triggers is closed.
func (e *Engine) Run(ctx context.Context, triggers <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case uid, ok := <-triggers:
			if !ok {
				return
			}
			e.TriggerSync(ctx, uid)
		}
	}
}

func (r *Result) add(o outcome) {
	if o.created {
		r.Created++
	}
	if o.reconciled {
		r.Reconciled++
	}
	if o.synced {
		r.Synced++
	}
	if o.failed {
		r.Failed++
	}
	if o.missing {
		r.SkippedMissing++
	}
}
