package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "Test1 OK",
			args: []string{"cmd", "-d", "/tmp/c.db", "-v", "debug", "-s", "60", "-t", "0", "-i", "/tmp/inbox"},
			expected: &Config{
				DatabasePath: "/tmp/c.db",
				LogLevel:     "debug",
				SyncInterval: time.Minute,
				InboxDir:     "/tmp/inbox",
			},
		},
		{
			name:     "Test2 foreign flags are ignored",
			args:     []string{"cmd", "-x", "1", "-l", "/tmp/log.json"},
			expected: &Config{LogFile: "/tmp/log.json"},
		},
		{name: "Test3 incorrect sync interval", args: []string{"cmd", "-s", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
