package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_path":    "/data/cache.db",
		"sync_interval":    "10m",
		"sync_timeout":     0,
		"s3_base_endpoint": "http://127.0.0.1:9000",
		"postgres_dsn":     "postgres://u:p@localhost/db",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "/data/cache.db", cfg.DatabasePath)
		assert.Equal(t, 10*time.Minute, cfg.SyncInterval)
		assert.Zero(t, cfg.SyncTimeout, "explicit zero disables the watchdog")
		assert.Equal(t, "http://127.0.0.1:9000", cfg.S3BaseEndpoint)
		assert.Equal(t, "postgres://u:p@localhost/db", cfg.PostgresDSN)
		assert.Equal(t, "info", cfg.LogLevel, "absent keys keep defaults")
		assert.Equal(t, time.Second, cfg.MockAuthDelay)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			DatabasePath: "defaults.db",
			SyncInterval: 42 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults.db", cfg.DatabasePath)
		assert.Equal(t, 42*time.Second, cfg.SyncInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}

		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
