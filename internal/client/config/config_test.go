package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "dockeeper.db", c.DatabasePath)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 5*time.Minute, c.SyncInterval)
	assert.Equal(t, 2*time.Minute, c.SyncTimeout)
	assert.Equal(t, time.Second, c.MockAuthDelay)
	assert.NotEmpty(t, c.MockSigningKey)
	assert.Empty(t, c.InboxDir)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "dockeeper.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"database_path": "from-json.db",
		"log_level":     "debug",
	})
	os.Args = []string{"testbin", "-c", path, "-d", "from-flag.db"}

	cfg := LoadConfig()

	assert.Equal(t, "from-flag.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}
