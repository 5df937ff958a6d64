package cloud

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// RefreshFunc obtains a fresh token. Returning an error wrapped with
// backoff.Permanent stops the retries.
type RefreshFunc func(ctx context.Context) error

// Refresher runs token refreshes in the background, at most one at a time,
// retrying with exponential backoff.
type Refresher struct {
	logger      logging.Logger
	MaxAttempts uint64
	BaseBackoff time.Duration
	MaxInterval time.Duration

	running atomic.Bool
	mu      sync.Mutex
	done    chan struct{}
}

// NewRefresher returns a refresher with three attempts starting at 500ms.
func NewRefresher(logger logging.Logger) *Refresher {
	return &Refresher{
		logger:      logger,
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxInterval: 5 * time.Second,
	}
}

// Trigger starts fn in a new goroutine unless a refresh is already running.
// It reports whether a refresh was started. The refresh outlives ctx's
// cancellation but keeps its values.
func (r *Refresher) Trigger(ctx context.Context, fn RefreshFunc) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.done = done
	r.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		defer r.running.Store(false)

		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = r.BaseBackoff
		exp.Multiplier = 2
		exp.MaxInterval = r.MaxInterval
		exp.Reset()

		retries := uint64(0)
		if r.MaxAttempts > 1 {
			retries = r.MaxAttempts - 1
		}
		err := backoff.Retry(func() error { return fn(bg) }, backoff.WithMaxRetries(exp, retries))
		if err != nil {
			r.logger.Warn(bg, "token refresh failed", "error", err)
			return
		}
		r.logger.Info(bg, "token refreshed")
	}()
	return true
}

// Running reports whether a refresh is in progress.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Wait blocks until the refresh started by the last Trigger finishes or ctx
// is done.
func (r *Refresher) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
