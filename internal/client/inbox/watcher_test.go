package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) *Watcher {
	t.Helper()
	w := New(dir, rec.handle, 20*time.Millisecond, logging.Nop())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestAccepts(t *testing.T) {
	tests := map[string]bool{
		"scan.pdf":       true,
		"photo.JPG":      true,
		"a/b/c.jpeg":     true,
		"img.webp":       true,
		"shot.png":       true,
		"notes.txt":      false,
		".hidden.pdf":    false,
		"archive.pdf.gz": false,
		"noext":          false,
	}
	for name, want := range tests {
		assert.Equal(t, want, Accepts(name), name)
	}
}

func TestWatcher_HandlesNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	p := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{p}, rec.calls())
}

func TestWatcher_PicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "old.png")
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o600))

	rec := &recorder{}
	startWatcher(t, dir, rec)

	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RetriesFailedFileOnChange(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errors.New("offline")}
	startWatcher(t, dir, rec)

	p := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(p, []byte("1"), 0o600))
	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	require.NoError(t, os.WriteFile(p, []byte("12"), 0o600))

	require.Eventually(t, func() bool { return len(rec.calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StartStop(t *testing.T) {
	w := New(t.TempDir(), func(context.Context, string) error { return nil }, 0, logging.Nop())
	assert.Equal(t, DefaultDebounce, w.debounce)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	require.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) error { return nil }, 0, logging.Nop())

	require.Error(t, w.Start(context.Background()))
	assert.False(t, w.IsRunning())
}
