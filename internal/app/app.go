// Package app wires the catch store, image store, gateway, sync engine and
// feed into one application context shared by the CLI and the API server.
package app

import (
	"context"
	"io"

	"github.com/tphakala/catchsync/internal/catalog"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/feed"
	"github.com/tphakala/catchsync/internal/gateway"
	"github.com/tphakala/catchsync/internal/identity"
	"github.com/tphakala/catchsync/internal/imagestore"
	"github.com/tphakala/catchsync/internal/localstore"
	"github.com/tphakala/catchsync/internal/logger"
	"github.com/tphakala/catchsync/internal/notify"
	"github.com/tphakala/catchsync/internal/observability"
)

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// Context holds the application components built from Settings.
type Context struct {
	Settings *conf.Settings

	// Session is the stored user id; Identity also honours the static
	// identity.userid override.
	Session  *identity.FileResolver
	Identity identity.Resolver

	Store    *localstore.BlobStore
	Images   *imagestore.Store
	Gateway  *gateway.Gateway
	Metrics  *observability.Metrics
	Notifier *notify.Publisher
	Engine   *catchsync.Engine
	Feed     *feed.Feed
	Catalog  *catalog.Catalog

	closers []io.Closer
}

// Option adjusts the context before components are built.
type Option func(*options)

type options struct {
	gatewayOpts []gateway.Option
}

// WithGatewayOptions passes extra options to the gateway, e.g. a token source.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(o *options) { o.gatewayOpts = append(o.gatewayOpts, opts...) }
}

// New builds every component. Close releases them.
func New(settings *conf.Settings, opts ...Option) (*Context, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{Settings: settings}

	store, storeCloser, err := localstore.Open(settings)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, storeCloser)

	images, err := imagestore.New(settings.Storage.ImageDir)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Images = images
	c.closers = append(c.closers, images)

	c.Session = identity.NewFileResolver(settings.Identity.File)
	c.Identity = identity.Chain{identity.Static(settings.Identity.UserID), c.Session}

	gatewayOpts := o.gatewayOpts
	var engineOpts []catchsync.Option
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			_ = c.Close()
			return nil, errors.New(err).
				Component("app").
				Category(errors.CategoryConfiguration).
				Build()
		}
		c.Metrics = m
		gatewayOpts = append([]gateway.Option{gateway.WithMetrics(m.Gateway)}, gatewayOpts...)
		engineOpts = append(engineOpts, catchsync.WithMetrics(m.Sync))
	}
	c.Gateway = gateway.NewFromSettings(settings, gatewayOpts...)
	c.closers = append(c.closers, closerFunc(func() error {
		c.Gateway.Client().Close()
		return nil
	}))

	if settings.Notify.MQTT.Enabled {
		c.Notifier = notify.NewPublisher(notify.ConfigFromSettings(&settings.Notify.MQTT))
		engineOpts = append(engineOpts, catchsync.WithNotifier(c.Notifier))
		c.closers = append(c.closers, closerFunc(func() error {
			c.Notifier.Disconnect()
			return nil
		}))
	}

	c.Engine = catchsync.New(store, images, c.Gateway, engineOpts...)
	c.Feed = feed.New(store, c.Identity, c.Gateway,
		feed.WithListLimit(settings.Sync.ListLimit),
		feed.WithCacheTTL(settings.Sync.CacheTTL),
		feed.WithSyncer(c.Engine))
	c.Catalog = catalog.New(store, images, c.Identity, c.Engine, c.Gateway, c.Feed)

	return c, nil
}

// UserID returns the current identity, if any.
func (c *Context) UserID(ctx context.Context) (string, bool) {
	return c.Identity.CurrentID(ctx)
}

// RunSync drives the engine until ctx is done: a pass runs whenever an
// identity appears or changes. With polling disabled a single pass runs at
// start when sync.onstart is set.
func (c *Context) RunSync(ctx context.Context) {
	poll := c.Settings.Sync.IdentityPoll
	if poll <= 0 {
		if c.Settings.Sync.OnStart {
			if uid, ok := c.UserID(ctx); ok {
				c.Engine.TriggerSync(ctx, uid)
			}
		}
		<-ctx.Done()
		return
	}
	c.Engine.Run(ctx, identity.Watch(ctx, c.Identity, poll))
}

// Close waits for background passes and releases components in reverse
// order of creation.
func (c *Context) Close() error {
	if c.Catalog != nil {
		c.Catalog.Wait()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Provider returns the context built for the running command. It is nil
// until the root command's pre-run hook has loaded settings.
type Provider func() *Context
