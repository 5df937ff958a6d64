package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesNestedDirectory(t *testing.T) {
	want := filepath.Join(t.TempDir(), "a", "inbox")

	got, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "x")
	_, err := EnsureDir(dir)
	require.NoError(t, err)
	_, err = EnsureDir(dir)
	require.NoError(t, err)
}

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cache.db")
	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	require.NoError(t, EnsureParentDir("cache.db"))
}
