// Package postgres implements a self-hosted cloud provider that keeps every
// object in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/cloud/postgres/migrations"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/dbx"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// connectedMarker is stored as the access token once the database was reached.
const connectedMarker = "postgres"

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Provider is the postgres backend.
type Provider struct {
	db      *sql.DB
	tokens  cloud.TokenStore
	logger  logging.Logger
	migrate func(ctx context.Context, db *sql.DB) error

	mu       sync.Mutex
	cfg      models.ProviderConfig
	migrated bool
}

// New returns a provider over db. The schema is migrated on first use.
func New(cfg models.ProviderConfig, tokens cloud.TokenStore, db *sql.DB, logger logging.Logger) *Provider {
	cfg.Provider = models.ProviderPostgres
	return &Provider{
		db:      db,
		tokens:  tokens,
		logger:  logger.With("provider", models.ProviderPostgres),
		migrate: RunMigrations,
		cfg:     cfg,
	}
}

// Constructor adapts New to cloud.Factory. The connection is opened lazily.
func Constructor(dsn string, logger logging.Logger) cloud.Constructor {
	return func(cfg models.ProviderConfig, tokens cloud.TokenStore) (cloud.Provider, error) {
		if dsn == "" {
			return nil, errors.New("postgres dsn is not configured")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		return New(cfg, tokens, db, logger), nil
	}
}

func (p *Provider) Kind() models.ProviderKind { return models.ProviderPostgres }

func (p *Provider) ensureSchema(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.migrated {
		return nil
	}
	if err := p.migrate(ctx, p.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	p.migrated = true
	return nil
}

// Authenticate checks the database is reachable and migrated.
func (p *Provider) Authenticate(ctx context.Context) (*cloud.AuthRequest, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", cloud.ErrNotAuthenticated, err)
	}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cfg.AccessToken = connectedMarker
	cfg := p.cfg
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveProviderConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("persist connection marker: %w", err)
		}
	}
	return &cloud.AuthRequest{Completed: true}, nil
}

// HandleAuthCallback is a no-op; the DSN carries the credentials.
func (p *Provider) HandleAuthCallback(ctx context.Context, code string) error {
	return nil
}

func (p *Provider) IsAuthenticated(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AccessToken == connectedMarker
}

// Disconnect forgets the marker and closes the pool.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.cfg = models.ProviderConfig{Provider: models.ProviderPostgres}
	p.mu.Unlock()
	return p.db.Close()
}

func (p *Provider) ready(ctx context.Context) error {
	if !p.IsAuthenticated(ctx) {
		return cloud.ErrNotAuthenticated
	}
	return p.ensureSchema(ctx)
}

func (p *Provider) UploadFile(ctx context.Context, r io.Reader, filePath string) models.UploadResult {
	if err := p.ready(ctx); err != nil {
		return models.UploadFailed(err.Error())
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return models.UploadFailed(fmt.Sprintf("read upload: %v", err))
	}
	obj, err := NewObjectRepository(p.db).Put(ctx, filePath, body)
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	return models.UploadOK(&models.CloudFile{
		ID:         obj.ID,
		Name:       path.Base(filePath),
		Path:       filePath,
		Size:       obj.Size,
		ModifiedAt: obj.UpdatedAt,
	})
}

func (p *Provider) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	body, err := NewObjectRepository(p.db).Get(ctx, filePath)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", cloud.ErrNotFound, filePath)
	}
	return body, err
}

func (p *Provider) DeleteFile(ctx context.Context, filePath string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return NewObjectRepository(p.db).Delete(ctx, filePath)
}

// InitializeRemoteFolder only makes sure the schema exists; paths need no
// directories.
func (p *Provider) InitializeRemoteFolder(ctx context.Context) error {
	return p.ready(ctx)
}

// SaveMetadata writes the three metadata objects in one transaction.
func (p *Provider) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	objects, err := cloud.EncodeMetadata(m)
	if err != nil {
		return err
	}
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewObjectRepository(tx)
		for _, name := range cloud.MetadataObjectNames {
			if _, err := repo.Put(ctx, cloud.ObjectPath(name), objects[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Provider) LoadMetadata(ctx context.Context) (*models.CloudMetadata, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	repo := NewObjectRepository(p.db)
	objects := make(map[string][]byte, len(cloud.MetadataObjectNames))
	for _, name := range cloud.MetadataObjectNames {
		b, err := repo.Get(ctx, cloud.ObjectPath(name))
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		objects[name] = b
	}
	return cloud.DecodeMetadata(objects)
}
