package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/dockeeper/internal/client/cache"
	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/config"
	"github.com/dmitrijs2005/dockeeper/internal/client/inbox"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/services"
	"github.com/dmitrijs2005/dockeeper/internal/client/syncer"
	"github.com/dmitrijs2005/dockeeper/internal/filex"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *cache.Store
	facade  *cloud.Facade
	engine  *syncer.Engine
	library services.LibraryService
	inbox   *inbox.Watcher
	in      io.Reader
	out     io.Writer
}

// NewApp opens the local cache and wires the client components.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}

	store := cache.NewStore(c.DatabasePath, logger)
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}

	facade := cloud.NewFacade(Providers(c, store.Preferences(), logger), store.Preferences(), logger)
	// Library mutations and the engine's local write-back share one lock.
	triplet := &sync.Mutex{}
	engine := syncer.New(facade, store, logger, syncer.Options{Timeout: c.SyncTimeout, LocalLock: triplet})
	library := services.NewLibraryService(store, engine, facade, triplet, logger, nil)

	a := &App{
		config:  c,
		logger:  logger,
		store:   store,
		facade:  facade,
		engine:  engine,
		library: library,
		in:      os.Stdin,
		out:     os.Stdout,
	}

	if c.InboxDir != "" {
		dir, err := filex.EnsureDir(c.InboxDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.inbox = inbox.New(dir, a.importFile, 0, logger)
	}
	return a, nil
}

// importFile is the inbox handler. A deferred upload still counts as
// processed; RetryUploads sends it later.
func (a *App) importFile(ctx context.Context, path string) error {
	doc, err := a.library.UploadAndAdd(ctx, path, models.DocumentMetadata{})
	if errors.Is(err, services.ErrUploadDeferred) {
		a.logger.Warn(ctx, "inbox upload deferred", "path", path, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "inbox document added", "id", doc.ID, "path", path)
	return nil
}

// Start restores the provider connection and launches background work.
func (a *App) Start(ctx context.Context) {
	if err := a.facade.Restore(ctx); err != nil {
		a.logger.Warn(ctx, "provider restore failed", "error", err)
	}

	a.engine.OnResult(func(r syncer.Result) {
		if !r.Success {
			a.logger.Debug(ctx, "sync attempt failed", "errors", r.Errors)
		}
	})
	a.engine.StartBackgroundSync(ctx, a.config.SyncInterval)

	if a.inbox != nil {
		if err := a.inbox.Start(ctx); err != nil {
			a.logger.Warn(ctx, "inbox watcher not started", "error", err)
		}
	}
}

// Close stops background work and releases the cache.
func (a *App) Close() error {
	a.engine.StopBackgroundSync()
	var errs []error
	if a.inbox != nil {
		errs = append(errs, a.inbox.Stop())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Run starts the client and blocks in the REPL until the user exits or ctx
// is cancelled.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	a.Start(ctx)

	fmt.Fprintln(a.out, "Welcome to DocKeeper CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.in), a.out)
}

func (a *App) getStatus() string {
	s := a.facade.State().String()
	if kind, ok := a.facade.CurrentProvider(); ok {
		s = string(kind) + " " + s
	}
	if a.engine.HasOfflineChanges() {
		s += "*"
	}
	return fmt.Sprintf("(%s)", s)
}
