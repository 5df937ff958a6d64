package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// State is the connection state of the facade.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Facade exposes the active provider to the rest of the client. Every
// delegated call fails with ErrNotConnected while no provider is active.
type Facade struct {
	factory Factory
	prefs   kv.Repository
	logger  logging.Logger

	mu       sync.RWMutex
	state    State
	provider Provider
}

// NewFacade returns a disconnected facade persisting its configuration in prefs.
func NewFacade(factory Factory, prefs kv.Repository, logger logging.Logger) *Facade {
	return &Facade{
		factory: factory,
		prefs:   prefs,
		logger:  logger.With("component", "cloud"),
	}
}

// Connect activates a provider of the given kind and starts its
// authentication. The previous provider, if any, is disconnected first.
func (f *Facade) Connect(ctx context.Context, kind models.ProviderKind) (*AuthRequest, error) {
	if prev := f.active(); prev != nil {
		if err := prev.Disconnect(ctx); err != nil {
			f.logger.Warn(ctx, "previous provider disconnect failed", "provider", prev.Kind(), "error", err)
		}
	}

	cfg := models.ProviderConfig{Provider: kind}
	p, err := f.factory.New(cfg, f)
	if err != nil {
		f.reset()
		return nil, err
	}
	if err := f.SaveProviderConfig(ctx, cfg); err != nil {
		f.reset()
		return nil, err
	}

	f.set(StateConnecting, p)

	req, err := p.Authenticate(ctx)
	if err != nil {
		f.logger.Error(ctx, "authentication failed", "provider", kind, "error", err)
		f.reset()
		if derr := f.prefs.Delete(ctx, common.KeyCloudConfig); derr != nil {
			f.logger.Warn(ctx, "failed to clear cloud config", "error", derr)
		}
		return nil, err
	}
	if req.Completed {
		f.set(StateConnected, p)
	}
	f.logger.Info(ctx, "provider connecting", "provider", kind, "completed", req.Completed)
	return req, nil
}

// HandleAuthCallback completes an OAuth flow. On failure the facade stays
// in the connecting state so the user can retry.
func (f *Facade) HandleAuthCallback(ctx context.Context, code string) error {
	p := f.active()
	if p == nil {
		return ErrNotConnected
	}
	if err := p.HandleAuthCallback(ctx, code); err != nil {
		f.logger.Warn(ctx, "auth callback failed", "provider", p.Kind(), "error", err)
		return err
	}
	f.set(StateConnected, p)
	return nil
}

// Disconnect deactivates the provider and forgets the persisted config.
// It is valid in any state.
func (f *Facade) Disconnect(ctx context.Context) error {
	var errs []error
	if p := f.active(); p != nil {
		if err := p.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	f.reset()
	if err := f.prefs.Delete(ctx, common.KeyCloudConfig); err != nil {
		errs = append(errs, fmt.Errorf("clear cloud config: %w", err))
	}
	return errors.Join(errs...)
}

// Restore rehydrates the persisted provider at startup. Without a persisted
// config the facade stays disconnected.
func (f *Facade) Restore(ctx context.Context) error {
	cfg, err := f.LoadProviderConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		f.reset()
		return nil
	}

	p, err := f.factory.New(*cfg, f)
	if err != nil {
		f.reset()
		return err
	}

	if p.IsAuthenticated(ctx) {
		f.set(StateConnected, p)
	} else {
		f.set(StateConnecting, p)
	}
	f.logger.Info(ctx, "provider restored", "provider", cfg.Provider, "state", f.State())
	return nil
}

// State returns the current connection state.
func (f *Facade) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// IsConnected reports whether a provider is active and authenticated. A
// provider that finished a background refresh moves the facade to connected.
func (f *Facade) IsConnected(ctx context.Context) bool {
	p := f.active()
	if p == nil {
		return false
	}
	if !p.IsAuthenticated(ctx) {
		return false
	}
	f.mu.Lock()
	if f.provider == p {
		f.state = StateConnected
	}
	f.mu.Unlock()
	return true
}

// CurrentProvider returns the kind of the active provider.
func (f *Facade) CurrentProvider() (models.ProviderKind, bool) {
	p := f.active()
	if p == nil {
		return "", false
	}
	return p.Kind(), true
}

func (f *Facade) UploadFile(ctx context.Context, r io.Reader, path string) models.UploadResult {
	p := f.active()
	if p == nil {
		return models.UploadFailed(ErrNotConnected.Error())
	}
	return p.UploadFile(ctx, r, path)
}

func (f *Facade) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	p := f.active()
	if p == nil {
		return nil, ErrNotConnected
	}
	return p.DownloadFile(ctx, path)
}

func (f *Facade) DeleteFile(ctx context.Context, path string) error {
	p := f.active()
	if p == nil {
		return ErrNotConnected
	}
	return p.DeleteFile(ctx, path)
}

func (f *Facade) InitializeRemoteFolder(ctx context.Context) error {
	p := f.active()
	if p == nil {
		return ErrNotConnected
	}
	return p.InitializeRemoteFolder(ctx)
}

func (f *Facade) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	p := f.active()
	if p == nil {
		return ErrNotConnected
	}
	return p.SaveMetadata(ctx, m)
}

func (f *Facade) LoadMetadata(ctx context.Context) (*models.CloudMetadata, error) {
	p := f.active()
	if p == nil {
		return nil, ErrNotConnected
	}
	return p.LoadMetadata(ctx)
}

// SaveProviderConfig persists cfg under the cloud config key. Providers call
// it through TokenStore after exchanging or refreshing tokens.
func (f *Facade) SaveProviderConfig(ctx context.Context, cfg models.ProviderConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode cloud config: %w", err)
	}
	if err := f.prefs.Set(ctx, common.KeyCloudConfig, b); err != nil {
		return fmt.Errorf("save cloud config: %w", err)
	}
	return nil
}

// LoadProviderConfig returns the persisted config, or nil when none exists.
func (f *Facade) LoadProviderConfig(ctx context.Context) (*models.ProviderConfig, error) {
	b, err := f.prefs.Get(ctx, common.KeyCloudConfig)
	if err != nil {
		return nil, fmt.Errorf("load cloud config: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var cfg models.ProviderConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode cloud config: %w", err)
	}
	return &cfg, nil
}

func (f *Facade) active() Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.provider
}

func (f *Facade) set(s State, p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.provider = p
}

func (f *Facade) reset() {
	f.set(StateDisconnected, nil)
}
