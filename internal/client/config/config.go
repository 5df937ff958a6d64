package config

import "time"

// Config holds runtime settings for the DocKeeper CLI.
//
// Units: SyncInterval, SyncTimeout and MockAuthDelay are time.Duration values.
// A zero SyncTimeout disables the per-sync watchdog.
type Config struct {
	DatabasePath string
	LogFile      string
	LogLevel     string

	SyncInterval time.Duration
	SyncTimeout  time.Duration

	// InboxDir is watched for new documents when set.
	InboxDir string

	MockAuthDelay  time.Duration
	MockSigningKey string

	DropboxAppKey      string
	DropboxAppSecret   string
	DropboxRedirectURL string

	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3Prefix       string

	PostgresDSN string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "dockeeper.db"
	c.LogLevel = "info"
	c.SyncInterval = 5 * time.Minute
	c.SyncTimeout = 2 * time.Minute
	c.MockAuthDelay = time.Second
	c.MockSigningKey = "dockeeper-mock-signing-key"
	c.DropboxRedirectURL = "http://127.0.0.1:53682/callback"
	c.S3Region = "us-east-1"
	c.S3Bucket = "dockeeper"
	c.S3Prefix = "dockeeper"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
