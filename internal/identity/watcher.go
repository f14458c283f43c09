package identity

import (
	"context"
	"time"

	"github.com/tphakala/catchsync/internal/logger"
)

const defaultPollInterval = 5 * time.Second

// Watcher polls a Resolver and reports identity transitions. A transition is
// none to id or one id to another; losing the identity is not reported.
type Watcher struct {
	resolver Resolver
	interval time.Duration
	last     string
}

// NewWatcher returns a Watcher polling r every interval.
func NewWatcher(r Resolver, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{resolver: r, interval: interval}
}

// Run polls until ctx is done, calling onChange with each new identity.
// The first poll happens immediately, so an identity present at start counts
// as a transition.
func (w *Watcher) Run(ctx context.Context, onChange func(id string)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx, onChange)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx, onChange)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, onChange func(id string)) {
	id, ok := w.resolver.CurrentID(ctx)
	if !ok {
		if w.last != "" {
			GetLogger().Info("identity lost, switching to local-only mode")
		}
		w.last = ""
		return
	}
	if id == w.last {
		return
	}

	GetLogger().Info("identity changed", logger.String("user_id", id))
	w.last = id
	onChange(id)
}

// Watch starts a Watcher in a goroutine and returns a channel of identity
// transitions. The channel is closed when ctx is done. Transitions arriving
// while the consumer is busy are coalesced to the latest one.
func Watch(ctx context.Context, r Resolver, interval time.Duration) <-chan string {
	out := make(chan string, 1)
	w := NewWatcher(r, interval)

	go func() {
		defer close(out)
		w.Run(ctx, func(id string) {
			select {
			case out <- id:
			default:
				// drop the stale pending id and keep the newest
				select {
				case <-out:
				default:
				}
				select {
				case out <- id:
				default:
				}
			}
		})
	}()
	return out
}
