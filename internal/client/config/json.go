package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/dockeeper/internal/flagx"
	"github.com/dmitrijs2005/dockeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "5m" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	DatabasePath string `json:"database_path"`
	LogFile      string `json:"log_file"`
	LogLevel     string `json:"log_level"`

	SyncInterval *timex.Duration `json:"sync_interval"`
	SyncTimeout  *timex.Duration `json:"sync_timeout"`

	InboxDir string `json:"inbox_dir"`

	MockAuthDelay  *timex.Duration `json:"mock_auth_delay"`
	MockSigningKey string          `json:"mock_signing_key"`

	DropboxAppKey      string `json:"dropbox_app_key"`
	DropboxAppSecret   string `json:"dropbox_app_secret"`
	DropboxRedirectURL string `json:"dropbox_redirect_url"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix"`

	PostgresDSN string `json:"postgres_dsn"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from -c or -config (flagx.ConfigFile). Without one
// the function returns. Read and unmarshal errors panic. Only keys present
// in the file override cfg; durations may be explicitly zero.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	strs := []struct {
		src string
		dst *string
	}{
		{jc.DatabasePath, &cfg.DatabasePath},
		{jc.LogFile, &cfg.LogFile},
		{jc.LogLevel, &cfg.LogLevel},
		{jc.InboxDir, &cfg.InboxDir},
		{jc.MockSigningKey, &cfg.MockSigningKey},
		{jc.DropboxAppKey, &cfg.DropboxAppKey},
		{jc.DropboxAppSecret, &cfg.DropboxAppSecret},
		{jc.DropboxRedirectURL, &cfg.DropboxRedirectURL},
		{jc.S3AccessKey, &cfg.S3AccessKey},
		{jc.S3SecretKey, &cfg.S3SecretKey},
		{jc.S3Bucket, &cfg.S3Bucket},
		{jc.S3Region, &cfg.S3Region},
		{jc.S3BaseEndpoint, &cfg.S3BaseEndpoint},
		{jc.S3Prefix, &cfg.S3Prefix},
		{jc.PostgresDSN, &cfg.PostgresDSN},
	}
	for _, s := range strs {
		if s.src != "" {
			*s.dst = s.src
		}
	}

	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncTimeout != nil {
		cfg.SyncTimeout = jc.SyncTimeout.Duration
	}
	if jc.MockAuthDelay != nil {
		cfg.MockAuthDelay = jc.MockAuthDelay.Duration
	}
}
