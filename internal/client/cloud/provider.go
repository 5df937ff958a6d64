// Package cloud defines the contract every cloud storage backend fulfils and
// the Facade that tracks which backend is active.
//
// Backends live in subpackages (mock, dropbox, s3, postgres) and are wired
// into a Factory by the application.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/common"
)

var (
	// ErrNotConnected reports a call made while no provider is active.
	ErrNotConnected = errors.New("not connected to cloud storage")

	// ErrNotAuthenticated reports a provider call without a usable token.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrCodeUsed reports an authorization code that was already exchanged.
	ErrCodeUsed = errors.New("authorization code already used")

	// ErrNotFound reports an absent remote object.
	ErrNotFound = common.ErrNotFound

	// ErrUnknownProvider reports a kind the factory has no constructor for.
	ErrUnknownProvider = errors.New("unknown cloud provider")
)

// AuthRequest is the outcome of starting authentication. URL is set when the
// user must visit a consent page; Completed is true when no callback is needed.
type AuthRequest struct {
	URL       string
	Completed bool
}

// Provider is a cloud storage backend.
//
// Implementations never panic past this boundary and report failures as
// return values. LoadMetadata fills absent objects with defaults.
type Provider interface {
	Kind() models.ProviderKind

	Authenticate(ctx context.Context) (*AuthRequest, error)
	HandleAuthCallback(ctx context.Context, code string) error

	// IsAuthenticated reports whether a usable token is held. On an expired
	// token it starts a background refresh and returns false.
	IsAuthenticated(ctx context.Context) bool

	Disconnect(ctx context.Context) error

	UploadFile(ctx context.Context, r io.Reader, path string) models.UploadResult
	DownloadFile(ctx context.Context, path string) ([]byte, error)
	DeleteFile(ctx context.Context, path string) error

	// InitializeRemoteFolder creates the application namespace. An existing
	// namespace is not an error.
	InitializeRemoteFolder(ctx context.Context) error

	SaveMetadata(ctx context.Context, m *models.CloudMetadata) error
	LoadMetadata(ctx context.Context) (*models.CloudMetadata, error)
}

// TokenStore persists tokens a provider obtained by exchange or refresh.
type TokenStore interface {
	SaveProviderConfig(ctx context.Context, cfg models.ProviderConfig) error
}

// TokenStoreFunc adapts a function to TokenStore.
type TokenStoreFunc func(ctx context.Context, cfg models.ProviderConfig) error

func (f TokenStoreFunc) SaveProviderConfig(ctx context.Context, cfg models.ProviderConfig) error {
	return f(ctx, cfg)
}

// Constructor builds a provider from its persisted configuration.
type Constructor func(cfg models.ProviderConfig, tokens TokenStore) (Provider, error)

// Factory maps provider kinds to constructors.
type Factory map[models.ProviderKind]Constructor

// New builds the provider registered for cfg.Provider.
func (f Factory) New(cfg models.ProviderConfig, tokens TokenStore) (Provider, error) {
	ctor, ok := f[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return ctor(cfg, tokens)
}

// Kinds lists the registered provider kinds.
func (f Factory) Kinds() []models.ProviderKind {
	out := make([]models.ProviderKind, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
