// Package catalog is the facade host applications drive: capturing catches,
// editing and deleting them, and reading the merged feed.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/feed"
	"github.com/tphakala/catchsync/internal/identity"
	"github.com/tphakala/catchsync/internal/localstore"
	"github.com/tphakala/catchsync/internal/logger"
)

// GetLogger returns the catalog module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("catalog")
}

// Images persists and removes image copies.
type Images interface {
	Persist(ctx context.Context, transientPath string) (string, error)
	Remove(path string) error
}

// Syncer is the subset of the sync engine the catalog drives.
type Syncer interface {
	TriggerSync(ctx context.Context, uid string) (catchsync.Result, bool)
	UploadOne(ctx context.Context, uid, localID string) (catchsync.Result, error)
}

// Deleter removes remote catches.
type Deleter interface {
	Delete(ctx context.Context, uid string, id int64) error
}

// CaptureRequest describes a newly picked photo.
type CaptureRequest struct {
	// ImagePath is the transient location of the picked image.
	ImagePath  string
	Label      string
	Confidence float64
	Lat        *float64
	Lng        *float64
}

// Catalog wires the store, images, sync engine and feed together.
type Catalog struct {
	store    localstore.Store
	images   Images
	identity identity.Resolver
	syncer   Syncer
	remote   Deleter
	feed     *feed.Feed
	now      func() time.Time

	// background sync passes started by Capture
	wg sync.WaitGroup
}

// New creates a Catalog.
func New(store localstore.Store, images Images, id identity.Resolver, syncer Syncer, remote Deleter, f *feed.Feed) *Catalog {
	return &Catalog{
		store:    store,
		images:   images,
		identity: id,
		syncer:   syncer,
		remote:   remote,
		feed:     f,
		now:      time.Now,
	}
}

// Capture stores a new catch locally and, when a user is signed in, starts a
// sync pass in the background. The catch is kept locally even if that pass
// fails.
func (c *Catalog) Capture(ctx context.Context, req CaptureRequest) (catch.LocalCatch, error) {
	path, err := c.images.Persist(ctx, req.ImagePath)
	if err != nil {
		return catch.LocalCatch{}, err
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = catch.UnknownLabel
	}
	rec := catch.LocalCatch{
		LocalID:           uuid.NewString(),
		LocalURI:          path,
		SpeciesLabel:      label,
		SpeciesConfidence: req.Confidence,
		CreatedAt:         c.now().UTC().Format(time.RFC3339Nano),
		Lat:               req.Lat,
		Lng:               req.Lng,
	}
	if err := rec.Validate(); err != nil {
		c.discardImage(path)
		return catch.LocalCatch{}, err
	}
	if err := c.store.Insert(ctx, rec); err != nil {
		c.discardImage(path)
		return catch.LocalCatch{}, err
	}

	GetLogger().Info("catch captured",
		logger.String("local_id", rec.LocalID),
		logger.String("species_label", rec.SpeciesLabel))

	if uid, ok := c.identity.CurrentID(ctx); ok {
		bg := context.WithoutCancel(ctx)
		c.wg.Go(func() {
			c.syncer.TriggerSync(bg, uid)
		})
	}
	return rec, nil
}

func (c *Catalog) discardImage(path string) {
	if err := c.images.Remove(path); err != nil {
		GetLogger().Warn("failed to remove image copy", logger.String("path", path), logger.Error(err))
	}
}

// Wait blocks until background passes started by Capture have finished.
func (c *Catalog) Wait() {
	c.wg.Wait()
}

// Relabel sets the label of a local record. When the record is already on the
// server the new label is pushed right away; if that push fails the record
// stays pending for the next pass and the error is returned.
func (c *Catalog) Relabel(ctx context.Context, localID, label string) error {
	rec, ok, err := c.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("catch %q not found", localID)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.Newf("species label must not be empty").
			Component("catalog").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := c.store.Update(ctx, localID, catch.Relabel(rec, label)); err != nil {
		return err
	}
	if !rec.HasRemote() || rec.SpeciesLabel == label {
		return nil
	}

	uid, ok := c.identity.CurrentID(ctx)
	if !ok {
		return nil
	}
	_, err = c.syncer.UploadOne(ctx, uid, localID)
	if errors.Is(err, errors.ErrSyncInProgress) {
		// the record stays pending and the next pass pushes the label
		return nil
	}
	return err
}

// DeleteRow removes the catch behind a feed row. Local rows lose their record
// and image copy; remote rows are deleted on the server together with any
// local record pointing at them.
func (c *Catalog) DeleteRow(ctx context.Context, key catch.RowKey) error {
	switch key.Kind {
	case catch.RowLocal:
		return c.deleteLocal(ctx, key.LocalID)
	case catch.RowRemote:
		return c.deleteRemote(ctx, key.RemoteID)
	default:
		return errors.Newf("invalid row key %q", key.String()).
			Component("catalog").
			Category(errors.CategoryValidation).
			Build()
	}
}

func (c *Catalog) deleteLocal(ctx context.Context, localID string) error {
	rec, ok, err := c.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("catch %q not found", localID)
	}
	if err := c.store.Remove(ctx, localID); err != nil {
		return err
	}
	c.discardImage(rec.LocalURI)
	return nil
}

func (c *Catalog) deleteRemote(ctx context.Context, id int64) error {
	uid, ok := c.identity.CurrentID(ctx)
	if !ok {
		return errors.New(errors.ErrNoIdentity).
			Component("catalog").
			Category(errors.CategoryIdentity).
			Build()
	}
	if err := c.remote.Delete(ctx, uid, id); err != nil {
		return err
	}
	if c.feed != nil {
		c.feed.Forget(uid)
	}

	local, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	for i := range local {
		rec := &local[i]
		if rec.RemoteID == nil || *rec.RemoteID != id {
			continue
		}
		if err := c.store.Remove(ctx, rec.LocalID); err != nil {
			return err
		}
		c.discardImage(rec.LocalURI)
	}
	return nil
}

// UploadOne syncs one record for the current user.
func (c *Catalog) UploadOne(ctx context.Context, localID string) (catchsync.Result, error) {
	uid, _ := c.identity.CurrentID(ctx)
	return c.syncer.UploadOne(ctx, uid, localID)
}

// Feed returns the merged feed.
func (c *Catalog) Feed(ctx context.Context) (feed.Snapshot, error) {
	return c.feed.Load(ctx)
}

// Refresh runs a sync pass and returns the merged feed.
func (c *Catalog) Refresh(ctx context.Context) (feed.Snapshot, error) {
	return c.feed.Refresh(ctx)
}

func notFound(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("catalog").
		Category(errors.CategoryNotFound).
		Build()
}
