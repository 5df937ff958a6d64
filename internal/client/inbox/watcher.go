// Package inbox watches a staging directory and hands every new document
// file to a callback, typically the library service upload.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

var ErrAlreadyRunning = errors.New("watcher already running")

// Extensions accepted by the watcher, lower case with the dot.
var Extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
	".webp": true,
}

// Accepts reports whether path names a supported document file.
func Accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return Extensions[strings.ToLower(filepath.Ext(base))]
}

// Handler processes one staged file.
type Handler func(ctx context.Context, path string) error

// Watcher turns create and write events of a directory into debounced
// Handler calls. A file is handled again only after its content changes.
type Watcher struct {
	dir      string
	handler  Handler
	logger   logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	queueMu sync.Mutex
	queue   map[string]time.Time
	handled map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// New returns a stopped watcher for dir. debounce <= 0 selects DefaultDebounce.
func New(dir string, handler Handler, debounce time.Duration, logger logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		handler:  handler,
		logger:   logger.With("component", "inbox", "dir", dir),
		debounce: debounce,
		queue:    map[string]time.Time{},
		handled:  map[string]fileStamp{},
	}
}

// Start begins watching. Files already present are queued too.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.watcher, w.cancel, w.running = fw, cancel, true

	w.queueExisting()

	w.wg.Add(2)
	go w.processEvents(ctx, fw)
	go w.processQueue(ctx)

	w.logger.Info(ctx, "inbox watcher started")
	return nil
}

// Stop ends watching and waits for a running handler to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fw, cancel := w.watcher, w.cancel
	w.watcher, w.cancel = nil, nil
	w.mu.Unlock()

	cancel()
	err := fw.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// IsRunning reports whether the watcher is started.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) queueExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			w.enqueue(filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) enqueue(path string) {
	if !Accepts(path) {
		return
	}
	w.queueMu.Lock()
	w.queue[path] = time.Now()
	w.queueMu.Unlock()
}

func (w *Watcher) processEvents(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.enqueue(event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", "error", err)
		}
	}
}

func (w *Watcher) processQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.due(time.Now()) {
				if ctx.Err() != nil {
					return
				}
				w.handle(ctx, path)
			}
		}
	}
}

// due removes and returns the queued paths that stayed quiet long enough.
func (w *Watcher) due(now time.Time) []string {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()

	var out []string
	for path, at := range w.queue {
		if now.Sub(at) < w.debounce {
			continue
		}
		out = append(out, path)
		delete(w.queue, path)
	}
	return out
}

func (w *Watcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	w.queueMu.Lock()
	prev, seen := w.handled[path]
	w.queueMu.Unlock()
	if seen && prev == stamp {
		return
	}

	if err := w.handler(ctx, path); err != nil {
		w.logger.Warn(ctx, "inbox file not processed", "path", path, "error", err)
		return
	}
	w.logger.Info(ctx, "inbox file processed", "path", path)

	w.queueMu.Lock()
	w.handled[path] = stamp
	w.queueMu.Unlock()
}
