package cli

import (
	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/cloud/dropbox"
	"github.com/dmitrijs2005/dockeeper/internal/client/cloud/mock"
	pgcloud "github.com/dmitrijs2005/dockeeper/internal/client/cloud/postgres"
	s3cloud "github.com/dmitrijs2005/dockeeper/internal/client/cloud/s3"
	"github.com/dmitrijs2005/dockeeper/internal/client/config"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// Providers builds the provider factory from configuration. The mock
// provider keeps its remote state in prefs.
func Providers(cfg *config.Config, prefs kv.Repository, logger logging.Logger) cloud.Factory {
	mockOpts := mock.DefaultOptions()
	mockOpts.AuthDelay = cfg.MockAuthDelay
	if cfg.MockSigningKey != "" {
		mockOpts.SigningKey = []byte(cfg.MockSigningKey)
	}

	return cloud.Factory{
		models.ProviderMock: mock.Constructor(prefs, mockOpts, logger),
		models.ProviderDropbox: dropbox.Constructor(dropbox.Options{
			AppKey:      cfg.DropboxAppKey,
			AppSecret:   cfg.DropboxAppSecret,
			RedirectURL: cfg.DropboxRedirectURL,
		}, logger),
		models.ProviderS3: s3cloud.Constructor(s3cloud.Options{
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
		}, logger),
		models.ProviderPostgres: pgcloud.Constructor(cfg.PostgresDSN, logger),
	}
}
