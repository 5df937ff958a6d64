package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/dockeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   local cache database path
//	-l string   log file
//	-v string   log level
//	-s int      background sync interval in seconds
//	-t int      sync watchdog timeout in seconds
//	-i string   staging inbox directory
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-l", "-v", "-s", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local cache database path")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file (empty logs to stderr)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.InboxDir, "i", cfg.InboxDir, "staging inbox directory to watch")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "background sync interval (in seconds)")
	syncTimeout := fs.Int("t", int(cfg.SyncTimeout.Seconds()), "sync watchdog timeout (in seconds, 0 disables)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.SyncTimeout = time.Duration(*syncTimeout) * time.Second
}
