// Package mock implements a deterministic cloud provider that keeps the whole
// remote state as a single JSON blob in a local key/value area.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// Options tune the simulated backend.
type Options struct {
	// AuthDelay simulates the time a real consent flow takes.
	AuthDelay time.Duration

	SigningKey      []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// DefaultOptions returns a one hour access token and a 30 day refresh token.
func DefaultOptions() Options {
	return Options{
		AuthDelay:       500 * time.Millisecond,
		SigningKey:      []byte("dockeeper-mock"),
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
}

type object struct {
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// state is everything the simulated remote holds.
type state struct {
	FolderCreated bool              `json:"folderCreated"`
	Objects       map[string]object `json:"objects"`
	UsedCodes     map[string]bool   `json:"usedCodes"`
}

// Provider is the mock cloud backend.
type Provider struct {
	store     kv.Repository
	tokens    cloud.TokenStore
	opts      Options
	logger    logging.Logger
	refresher *cloud.Refresher

	mu  sync.Mutex
	cfg models.ProviderConfig
}

// New returns a provider seeded with the persisted tokens in cfg.
func New(cfg models.ProviderConfig, tokens cloud.TokenStore, store kv.Repository, opts Options, logger logging.Logger) *Provider {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger = logger.With("provider", models.ProviderMock)
	cfg.Provider = models.ProviderMock
	return &Provider{
		store:     store,
		tokens:    tokens,
		opts:      opts,
		logger:    logger,
		refresher: cloud.NewRefresher(logger),
		cfg:       cfg,
	}
}

// Constructor adapts New to cloud.Factory.
func Constructor(store kv.Repository, opts Options, logger logging.Logger) cloud.Constructor {
	return func(cfg models.ProviderConfig, tokens cloud.TokenStore) (cloud.Provider, error) {
		return New(cfg, tokens, store, opts, logger), nil
	}
}

func (p *Provider) Kind() models.ProviderKind { return models.ProviderMock }

// Authenticate waits for the simulated delay and issues tokens immediately.
func (p *Provider) Authenticate(ctx context.Context) (*cloud.AuthRequest, error) {
	if p.opts.AuthDelay > 0 {
		t := time.NewTimer(p.opts.AuthDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := p.issueTokens(ctx); err != nil {
		return nil, err
	}
	return &cloud.AuthRequest{Completed: true}, nil
}

// HandleAuthCallback accepts any non-empty code exactly once.
func (p *Provider) HandleAuthCallback(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", cloud.ErrNotAuthenticated)
	}
	err := p.update(ctx, func(s *state) error {
		if s.UsedCodes[code] {
			return cloud.ErrCodeUsed
		}
		s.UsedCodes[code] = true
		return nil
	})
	if err != nil {
		return err
	}
	return p.issueTokens(ctx)
}

// IsAuthenticated validates the access token. An expired token triggers a
// background refresh and reports false.
func (p *Provider) IsAuthenticated(ctx context.Context) bool {
	p.mu.Lock()
	access := p.cfg.AccessToken
	p.mu.Unlock()

	if access == "" {
		return false
	}
	err := p.verify(access)
	if err == nil {
		return true
	}
	if errors.Is(err, common.ErrTokenExpired) {
		p.refresher.Trigger(ctx, p.refresh)
	}
	return false
}

// WaitRefresh blocks until a background refresh finishes.
func (p *Provider) WaitRefresh(ctx context.Context) error {
	return p.refresher.Wait(ctx)
}

func (p *Provider) refresh(ctx context.Context) error {
	p.mu.Lock()
	rt := p.cfg.RefreshToken
	p.mu.Unlock()

	if err := p.verify(rt); err != nil {
		return backoff.Permanent(fmt.Errorf("refresh token rejected: %w", err))
	}
	return p.issueTokens(ctx)
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.cfg = models.ProviderConfig{Provider: models.ProviderMock}
	p.mu.Unlock()
	return nil
}

func (p *Provider) UploadFile(ctx context.Context, r io.Reader, filePath string) models.UploadResult {
	if !p.hasToken() {
		return models.UploadFailed(cloud.ErrNotAuthenticated.Error())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return models.UploadFailed(fmt.Sprintf("read upload: %v", err))
	}

	now := p.opts.Now()
	obj := object{ID: uuid.NewString(), Data: data, ModifiedAt: now}
	err = p.update(ctx, func(s *state) error {
		s.Objects[filePath] = obj
		return nil
	})
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	return models.UploadOK(&models.CloudFile{
		ID:         obj.ID,
		Name:       path.Base(filePath),
		Path:       filePath,
		Size:       int64(len(data)),
		ModifiedAt: now,
	})
}

func (p *Provider) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if !p.hasToken() {
		return nil, cloud.ErrNotAuthenticated
	}
	s, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	obj, ok := s.Objects[filePath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cloud.ErrNotFound, filePath)
	}
	return obj.Data, nil
}

func (p *Provider) DeleteFile(ctx context.Context, filePath string) error {
	if !p.hasToken() {
		return cloud.ErrNotAuthenticated
	}
	return p.update(ctx, func(s *state) error {
		delete(s.Objects, filePath)
		return nil
	})
}

func (p *Provider) InitializeRemoteFolder(ctx context.Context) error {
	if !p.hasToken() {
		return cloud.ErrNotAuthenticated
	}
	return p.update(ctx, func(s *state) error {
		s.FolderCreated = true
		return nil
	})
}

func (p *Provider) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	if !p.hasToken() {
		return cloud.ErrNotAuthenticated
	}
	objects, err := cloud.EncodeMetadata(m)
	if err != nil {
		return err
	}
	now := p.opts.Now()
	return p.update(ctx, func(s *state) error {
		for name, b := range objects {
			s.Objects[cloud.ObjectPath(name)] = object{ID: name, Data: b, ModifiedAt: now}
		}
		return nil
	})
}

func (p *Provider) LoadMetadata(ctx context.Context) (*models.CloudMetadata, error) {
	if !p.hasToken() {
		return nil, cloud.ErrNotAuthenticated
	}
	s, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	objects := make(map[string][]byte, len(cloud.MetadataObjectNames))
	for _, name := range cloud.MetadataObjectNames {
		if obj, ok := s.Objects[cloud.ObjectPath(name)]; ok {
			objects[name] = obj.Data
		}
	}
	return cloud.DecodeMetadata(objects)
}

func (p *Provider) hasToken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AccessToken != ""
}

func (p *Provider) load(ctx context.Context) (*state, error) {
	s := &state{Objects: map[string]object{}, UsedCodes: map[string]bool{}}
	b, err := p.store.Get(ctx, common.KeyMockCloudState)
	if err != nil {
		return nil, fmt.Errorf("load mock state: %w", err)
	}
	if b == nil {
		return s, nil
	}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("decode mock state: %w", err)
	}
	if s.Objects == nil {
		s.Objects = map[string]object{}
	}
	if s.UsedCodes == nil {
		s.UsedCodes = map[string]bool{}
	}
	return s, nil
}

// update applies fn to the stored state as one read-modify-write.
func (p *Provider) update(ctx context.Context, fn func(s *state) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode mock state: %w", err)
	}
	if err := p.store.Set(ctx, common.KeyMockCloudState, b); err != nil {
		return fmt.Errorf("save mock state: %w", err)
	}
	return nil
}
