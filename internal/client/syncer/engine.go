// Package syncer reconciles the local cache with the active cloud provider.
//
// A sync loads the remote snapshot, then the local one, merges them with
// Merge and writes the result back to both sides. Mutations made between
// syncs are recorded in a ChangeLog so they win over older remote copies.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// DefaultInterval is the background sync period when none is given.
const DefaultInterval = 5 * time.Minute

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotConnected   = errors.New("not connected to cloud storage")
)

// Remote is the cloud side of a sync.
type Remote interface {
	IsConnected(ctx context.Context) bool
	LoadMetadata(ctx context.Context) (*models.CloudMetadata, error)
	SaveMetadata(ctx context.Context, m *models.CloudMetadata) error
}

// Local is the cache side of a sync. LoadMetadata returns (nil, nil) on a
// device that never synced.
type Local interface {
	LoadMetadata(ctx context.Context) (*models.CloudMetadata, error)
	SaveMetadata(ctx context.Context, m *models.CloudMetadata) error
}

// Result reports one sync. Errors holds one message per failure.
type Result struct {
	Success          bool     `json:"success"`
	DocumentsChanged int      `json:"documentsChanged"`
	TagsChanged      int      `json:"tagsChanged"`
	Errors           []string `json:"errors"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Syncing        bool
	Background     bool
	PendingChanges bool
	LastSyncTime   int64
	LastResult     *Result
}

// Options tune an Engine.
type Options struct {
	// Timeout bounds a whole sync; zero disables it. It is enforced through
	// ctx, so a side that ignores cancellation can still hold the sync.
	Timeout time.Duration

	// LocalLock is held from the local read until the local write-back lands.
	// Writers of the local triplet must hold it as well so their changes are
	// neither read stale nor overwritten by the merged snapshot.
	LocalLock sync.Locker

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Engine runs syncs. At most one sync runs at a time; a concurrent call fails
// immediately instead of queueing.
type Engine struct {
	remote Remote
	local  Local
	log    *ChangeLog
	logger logging.Logger
	opts   Options

	syncing  atomic.Bool
	lastSync atomic.Int64

	mu         sync.Mutex
	lastResult *Result
	onResult   func(Result)
	bgStop     chan struct{}
	bgDone     chan struct{}
}

// New returns an idle engine with an empty change log.
func New(remote Remote, local Local, logger logging.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LocalLock == nil {
		opts.LocalLock = &sync.Mutex{}
	}
	return &Engine{
		remote: remote,
		local:  local,
		log:    NewChangeLog(),
		logger: logger.With("component", "sync"),
		opts:   opts,
	}
}

// RegisterDocumentChange records a pending document mutation.
func (e *Engine) RegisterDocumentChange(id string, action models.ChangeAction, data *models.DocumentMetadata) error {
	return e.log.RegisterDocument(id, action, data)
}

// RegisterTagChange records a pending tag mutation.
func (e *Engine) RegisterTagChange(id string, action models.ChangeAction, data *models.Tag) error {
	return e.log.RegisterTag(id, action, data)
}

// RegisterSettingsChange marks the settings dirty.
func (e *Engine) RegisterSettingsChange() {
	e.log.RegisterSettings()
}

// HasOfflineChanges reports whether any change is waiting for a sync.
func (e *Engine) HasOfflineChanges() bool {
	return !e.log.IsEmpty()
}

// LastSyncTime returns the completion time of the last successful sync in
// Unix milliseconds, or 0 if none succeeded yet.
func (e *Engine) LastSyncTime() int64 {
	return e.lastSync.Load()
}

// OnResult installs a callback invoked after every sync attempt.
func (e *Engine) OnResult(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = fn
}

// LastResult returns the outcome of the last sync attempt.
func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastResult == nil {
		return nil
	}
	r := *e.lastResult
	r.Errors = append([]string{}, e.lastResult.Errors...)
	return &r
}

// Status reports the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	bg := e.bgStop != nil
	e.mu.Unlock()
	return Status{
		Syncing:        e.syncing.Load(),
		Background:     bg,
		PendingChanges: e.HasOfflineChanges(),
		LastSyncTime:   e.LastSyncTime(),
		LastResult:     e.LastResult(),
	}
}

// Synchronize runs one sync. It never panics and always returns the engine
// to idle.
func (e *Engine) Synchronize(ctx context.Context) (res Result) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{Errors: []string{ErrSyncInProgress.Error()}}
	}
	defer e.syncing.Store(false)

	start := e.opts.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("unexpected sync failure: %v", r))
			e.logger.Error(ctx, "sync panicked", "panic", r)
		}
		e.publish(ctx, res, start)
	}()

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) Result {
	res := Result{Errors: []string{}}

	if !e.remote.IsConnected(ctx) {
		res.Errors = append(res.Errors, ErrNotConnected.Error())
		return res
	}

	remote, err := e.remote.LoadMetadata(ctx)
	if err == nil && remote == nil {
		err = errors.New("provider returned no metadata")
	}
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to load cloud metadata: %v", err))
		return res
	}

	e.opts.LocalLock.Lock()
	unlock := sync.OnceFunc(e.opts.LocalLock.Unlock)
	defer unlock()

	local, err := e.local.LoadMetadata(ctx)
	localMissing := err != nil
	if err != nil {
		e.logger.Warn(ctx, "local metadata unavailable, using remote copy", "error", err)
		local = nil
	}

	snap := e.log.Snapshot()
	merged := Merge(remote, local, snap.Changes)
	res.DocumentsChanged = merged.DocumentsChanged
	res.TagsChanged = merged.TagsChanged

	var (
		g        errgroup.Group
		cloudErr error
		localErr error
	)
	cloudCopy, localCopy := merged.Metadata, merged.Metadata.Clone()
	g.Go(func() error {
		cloudErr = e.guard(ctx, func() error { return e.remote.SaveMetadata(ctx, cloudCopy) })
		return cloudErr
	})
	g.Go(func() error {
		defer unlock()
		localErr = e.guard(ctx, func() error { return e.local.SaveMetadata(ctx, localCopy) })
		return localErr
	})
	_ = g.Wait()

	if cloudErr != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to save metadata to cloud: %v", cloudErr))
	}
	if localErr != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to save metadata to local cache: %v", localErr))
	}
	res.Success = cloudErr == nil && localErr == nil

	if res.Success {
		e.lastSync.Store(e.opts.Now().UnixMilli())
		// The log was not merged into anything when the local side was unreadable.
		if !localMissing {
			e.log.Clear(snap)
		}
	}
	return res
}

// guard converts a panic in fn into an error. Write-back steps run on
// errgroup goroutines outside the recover in Synchronize.
func (e *Engine) guard(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "sync write-back panicked", "panic", r)
			err = fmt.Errorf("unexpected sync failure: %v", r)
		}
	}()
	return fn()
}

func (e *Engine) publish(ctx context.Context, res Result, start time.Time) {
	if res.Errors == nil {
		res.Errors = []string{}
	}
	attrs := []any{
		"success", res.Success,
		"documents", res.DocumentsChanged,
		"tags", res.TagsChanged,
		"duration", e.opts.Now().Sub(start),
	}
	if res.Success {
		e.logger.Info(ctx, "sync finished", attrs...)
	} else {
		e.logger.Warn(ctx, "sync failed", append(attrs, "errors", res.Errors)...)
	}

	e.mu.Lock()
	stored := res
	stored.Errors = append([]string{}, res.Errors...)
	e.lastResult = &stored
	fn := e.onResult
	e.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

// StartBackgroundSync syncs every interval while changes are pending. A
// running scheduler is replaced. Ticks while a sync runs or while the
// change log is empty do nothing. The scheduler stops with ctx.
func (e *Engine) StartBackgroundSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.mu.Lock()
	prevStop, prevDone := e.bgStop, e.bgDone
	e.bgStop, e.bgDone = stop, done
	e.mu.Unlock()

	if prevStop != nil {
		close(prevStop)
		<-prevDone
	}

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				e.tick(ctx)
			}
		}
	}()
	e.logger.Info(ctx, "background sync started", "interval", interval)
}

// StopBackgroundSync stops the scheduler and waits for a running tick to
// return. It is safe to call when no scheduler runs. It must not be called
// from an OnResult callback: a background sync runs that callback on the
// scheduler goroutine, which would then wait for itself.
func (e *Engine) StopBackgroundSync() {
	e.mu.Lock()
	stop, done := e.bgStop, e.bgDone
	e.bgStop, e.bgDone = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Engine) tick(ctx context.Context) {
	if e.syncing.Load() || !e.HasOfflineChanges() {
		return
	}
	e.Synchronize(ctx)
}

// DiscardChanges drops every pending change, for example after the local
// cache was wiped.
func (e *Engine) DiscardChanges() {
	e.log.Reset()
}
