// Package dropbox implements the cloud provider on top of the Dropbox HTTP
// API with an OAuth2 authorization-code flow.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// Options configure the application registration and endpoints. The
// endpoint fields default to the public Dropbox hosts.
type Options struct {
	AppKey      string
	AppSecret   string
	RedirectURL string

	AuthURL        string
	TokenURL       string
	APIBaseURL     string
	ContentBaseURL string

	Timeout time.Duration
	Now     func() time.Time
}

func (o *Options) defaults() {
	if o.AuthURL == "" {
		o.AuthURL = "https://www.dropbox.com/oauth2/authorize"
	}
	if o.TokenURL == "" {
		o.TokenURL = "https://api.dropboxapi.com/oauth2/token"
	}
	if o.APIBaseURL == "" {
		o.APIBaseURL = "https://api.dropboxapi.com"
	}
	if o.ContentBaseURL == "" {
		o.ContentBaseURL = "https://content.dropboxapi.com"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Provider is the Dropbox backend.
type Provider struct {
	oauth     *oauth2.Config
	api       *resty.Client
	content   *resty.Client
	tokens    cloud.TokenStore
	now       func() time.Time
	logger    logging.Logger
	refresher *cloud.Refresher

	mu        sync.Mutex
	cfg       models.ProviderConfig
	verifier  string
	usedCodes map[string]bool
}

// New returns a provider seeded with the persisted tokens in cfg.
func New(cfg models.ProviderConfig, tokens cloud.TokenStore, opts Options, logger logging.Logger) *Provider {
	opts.defaults()
	logger = logger.With("provider", models.ProviderDropbox)
	cfg.Provider = models.ProviderDropbox

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     opts.AppKey,
			ClientSecret: opts.AppSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		api:       resty.New().SetBaseURL(opts.APIBaseURL).SetTimeout(opts.Timeout),
		content:   resty.New().SetBaseURL(opts.ContentBaseURL).SetTimeout(opts.Timeout),
		tokens:    tokens,
		now:       opts.Now,
		logger:    logger,
		refresher: cloud.NewRefresher(logger),
		cfg:       cfg,
		usedCodes: map[string]bool{},
	}
}

// Constructor adapts New to cloud.Factory.
func Constructor(opts Options, logger logging.Logger) cloud.Constructor {
	return func(cfg models.ProviderConfig, tokens cloud.TokenStore) (cloud.Provider, error) {
		if opts.AppKey == "" {
			return nil, errors.New("dropbox app key is not configured")
		}
		return New(cfg, tokens, opts, logger), nil
	}
}

func (p *Provider) Kind() models.ProviderKind { return models.ProviderDropbox }

// Authenticate returns the consent URL. Offline access is requested so the
// exchange yields a refresh token.
func (p *Provider) Authenticate(ctx context.Context) (*cloud.AuthRequest, error) {
	verifier := oauth2.GenerateVerifier()

	p.mu.Lock()
	p.verifier = verifier
	p.mu.Unlock()

	url := p.oauth.AuthCodeURL(common.AppFolder,
		oauth2.SetAuthURLParam("token_access_type", "offline"),
		oauth2.S256ChallengeOption(verifier),
	)
	return &cloud.AuthRequest{URL: url}, nil
}

// HandleAuthCallback exchanges the authorization code for tokens. A code is
// exchanged at most once.
func (p *Provider) HandleAuthCallback(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", cloud.ErrNotAuthenticated)
	}

	p.mu.Lock()
	if p.usedCodes[code] {
		p.mu.Unlock()
		return cloud.ErrCodeUsed
	}
	p.usedCodes[code] = true
	verifier := p.verifier
	p.mu.Unlock()

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return fmt.Errorf("%w: code exchange: %w", cloud.ErrNotAuthenticated, err)
	}
	return p.storeToken(ctx, tok)
}

// IsAuthenticated reports whether the access token is still valid. An
// expired token with a refresh token triggers a background refresh.
func (p *Provider) IsAuthenticated(ctx context.Context) bool {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	if cfg.HasValidToken(p.now()) {
		return true
	}
	if cfg.AccessToken != "" {
		p.triggerRefresh(ctx)
	}
	return false
}

func (p *Provider) triggerRefresh(ctx context.Context) {
	p.mu.Lock()
	rt := p.cfg.RefreshToken
	p.mu.Unlock()
	if rt != "" {
		p.refresher.Trigger(ctx, p.refresh)
	}
}

// WaitRefresh blocks until a background refresh finishes.
func (p *Provider) WaitRefresh(ctx context.Context) error {
	return p.refresher.Wait(ctx)
}

func (p *Provider) refresh(ctx context.Context) error {
	p.mu.Lock()
	rt := p.cfg.RefreshToken
	p.mu.Unlock()

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = rt
	}
	return p.storeToken(ctx, tok)
}

func (p *Provider) storeToken(ctx context.Context, tok *oauth2.Token) error {
	p.mu.Lock()
	p.cfg.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		p.cfg.RefreshToken = tok.RefreshToken
	}
	p.cfg.Expiration = tok.Expiry
	cfg := p.cfg
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveProviderConfig(ctx, cfg); err != nil {
			return fmt.Errorf("persist tokens: %w", err)
		}
	}
	return nil
}

// Disconnect revokes the access token on a best-effort basis and forgets it.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	token := p.cfg.AccessToken
	p.cfg = models.ProviderConfig{Provider: models.ProviderDropbox}
	p.mu.Unlock()

	if token == "" {
		return nil
	}
	resp, err := p.api.R().SetContext(ctx).SetAuthToken(token).Post("/2/auth/token/revoke")
	if err != nil {
		p.logger.Warn(ctx, "token revoke failed", "error", err)
		return nil
	}
	if resp.IsError() {
		p.logger.Warn(ctx, "token revoke rejected", "status", resp.StatusCode())
	}
	return nil
}

func (p *Provider) accessToken() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.AccessToken == "" {
		return "", cloud.ErrNotAuthenticated
	}
	return p.cfg.AccessToken, nil
}

// apiError is the error envelope of the Dropbox API.
type apiError struct {
	Summary string `json:"error_summary"`
}

// checkResponse maps HTTP failures to errors. It reports the Dropbox error
// summary for 409 responses.
func (p *Provider) checkResponse(ctx context.Context, op string, resp *resty.Response) (summary string, err error) {
	if !resp.IsError() {
		return "", nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		p.triggerRefresh(ctx)
		return "", fmt.Errorf("%s: %w", op, cloud.ErrNotAuthenticated)
	}
	var e apiError
	_ = json.Unmarshal(resp.Body(), &e)
	if resp.StatusCode() == http.StatusConflict {
		return e.Summary, fmt.Errorf("%s: %s", op, e.Summary)
	}
	return "", fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
}

// fileMetadata is the subset of a Dropbox file entry we read.
type fileMetadata struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

func (p *Provider) upload(ctx context.Context, body []byte, arg uploadArg) (*fileMetadata, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, err
	}
	rawArg, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}

	var out fileMetadata
	resp, err := p.content.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Dropbox-API-Arg", string(rawArg)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(body).
		SetResult(&out).
		Post("/2/files/upload")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", arg.Path, err)
	}
	if _, err := p.checkResponse(ctx, "upload "+arg.Path, resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile stores r at path. Name clashes are resolved by renaming, so a
// repeated upload never overwrites an existing file.
func (p *Provider) UploadFile(ctx context.Context, r io.Reader, path string) models.UploadResult {
	body, err := io.ReadAll(r)
	if err != nil {
		return models.UploadFailed(fmt.Sprintf("read upload: %v", err))
	}
	meta, err := p.upload(ctx, body, uploadArg{Path: path, Mode: "add", Autorename: true, Mute: true})
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	return models.UploadOK(&models.CloudFile{
		ID:         meta.ID,
		Name:       meta.Name,
		Path:       meta.PathDisplay,
		Size:       meta.Size,
		ModifiedAt: meta.ServerModified,
	})
}

// DownloadFile returns the content at path, or an error wrapping
// cloud.ErrNotFound when nothing is stored there.
func (p *Provider) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	token, err := p.accessToken()
	if err != nil {
		return nil, err
	}
	rawArg, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return nil, err
	}

	resp, err := p.content.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Dropbox-API-Arg", string(rawArg)).
		Post("/2/files/download")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	summary, err := p.checkResponse(ctx, "download "+path, resp)
	if err != nil {
		if isNotFound(summary) {
			return nil, fmt.Errorf("%w: %s", cloud.ErrNotFound, path)
		}
		return nil, err
	}
	return resp.Body(), nil
}

// DeleteFile removes path. Deleting an absent path succeeds.
func (p *Provider) DeleteFile(ctx context.Context, path string) error {
	token, err := p.accessToken()
	if err != nil {
		return err
	}
	resp, err := p.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"path": path}).
		Post("/2/files/delete_v2")
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	summary, err := p.checkResponse(ctx, "delete "+path, resp)
	if err != nil && !isNotFound(summary) {
		return err
	}
	return nil
}

// InitializeRemoteFolder creates the application folder. A path conflict
// means the folder exists and counts as success.
func (p *Provider) InitializeRemoteFolder(ctx context.Context) error {
	token, err := p.accessToken()
	if err != nil {
		return err
	}
	resp, err := p.api.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]any{"path": "/" + common.AppFolder, "autorename": false}).
		Post("/2/files/create_folder_v2")
	if err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	summary, err := p.checkResponse(ctx, "create folder", resp)
	if err != nil && !strings.HasPrefix(summary, "path/conflict") {
		return err
	}
	return nil
}

// SaveMetadata overwrites the three metadata objects.
func (p *Provider) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	objects, err := cloud.EncodeMetadata(m)
	if err != nil {
		return err
	}
	for _, name := range cloud.MetadataObjectNames {
		arg := uploadArg{Path: cloud.ObjectPath(name), Mode: "overwrite", Mute: true}
		if _, err := p.upload(ctx, objects[name], arg); err != nil {
			return err
		}
	}
	return nil
}

// LoadMetadata reads the three metadata objects; absent ones default.
func (p *Provider) LoadMetadata(ctx context.Context) (*models.CloudMetadata, error) {
	objects := make(map[string][]byte, len(cloud.MetadataObjectNames))
	for _, name := range cloud.MetadataObjectNames {
		b, err := p.DownloadFile(ctx, cloud.ObjectPath(name))
		if errors.Is(err, cloud.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		objects[name] = b
	}
	return cloud.DecodeMetadata(objects)
}

func isNotFound(summary string) bool {
	return strings.HasPrefix(summary, "path/not_found") || strings.HasPrefix(summary, "path_lookup/not_found")
}
