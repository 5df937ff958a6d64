// Package s3 implements the cloud provider on S3-compatible object storage
// such as MinIO, authenticated with static credentials.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// ObjectAPI is the subset of the S3 client the provider uses.
type ObjectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Options hold the bucket location and static credentials.
type Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BaseEndpoint string
	Bucket       string
	Prefix       string
}

// NewClient builds an S3 client for opts. A custom BaseEndpoint switches to
// path-style addressing as MinIO expects.
func NewClient(ctx context.Context, opts Options) (ObjectAPI, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Provider is the S3 backend.
type Provider struct {
	client ObjectAPI
	opts   Options
	tokens cloud.TokenStore
	logger logging.Logger

	mu  sync.Mutex
	cfg models.ProviderConfig
}

// New returns a provider over client. cfg.AccessToken holds the access key
// id once the credentials were verified.
func New(cfg models.ProviderConfig, tokens cloud.TokenStore, client ObjectAPI, opts Options, logger logging.Logger) *Provider {
	cfg.Provider = models.ProviderS3
	return &Provider{
		client: client,
		opts:   opts,
		tokens: tokens,
		logger: logger.With("provider", models.ProviderS3),
		cfg:    cfg,
	}
}

// Constructor adapts New to cloud.Factory.
func Constructor(opts Options, logger logging.Logger) cloud.Constructor {
	return func(cfg models.ProviderConfig, tokens cloud.TokenStore) (cloud.Provider, error) {
		if opts.Bucket == "" {
			return nil, errors.New("s3 bucket is not configured")
		}
		client, err := NewClient(context.Background(), opts)
		if err != nil {
			return nil, err
		}
		return New(cfg, tokens, client, opts, logger), nil
	}
}

func (p *Provider) Kind() models.ProviderKind { return models.ProviderS3 }

// Authenticate verifies the credentials against the bucket. There is no
// consent step, so the request is always completed.
func (p *Provider) Authenticate(ctx context.Context) (*cloud.AuthRequest, error) {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.opts.Bucket)})
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("%w: %w", cloud.ErrNotAuthenticated, err)
	}

	p.mu.Lock()
	p.cfg.AccessToken = p.opts.AccessKey
	cfg := p.cfg
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveProviderConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("persist credentials marker: %w", err)
		}
	}
	return &cloud.AuthRequest{Completed: true}, nil
}

// HandleAuthCallback is a no-op; static credentials need no callback.
func (p *Provider) HandleAuthCallback(ctx context.Context, code string) error {
	return nil
}

// IsAuthenticated reports whether the configured credentials were verified.
func (p *Provider) IsAuthenticated(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AccessToken != "" && p.cfg.AccessToken == p.opts.AccessKey
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.cfg = models.ProviderConfig{Provider: models.ProviderS3}
	p.mu.Unlock()
	return nil
}

// key maps a provider path to an object key under the configured prefix.
func (p *Provider) key(filePath string) string {
	k := strings.TrimPrefix(filePath, "/")
	if p.opts.Prefix != "" {
		k = path.Join(p.opts.Prefix, k)
	}
	return k
}

func (p *Provider) put(ctx context.Context, filePath string, data []byte, contentType string) (*s3.PutObjectOutput, error) {
	if !p.IsAuthenticated(ctx) {
		return nil, cloud.ErrNotAuthenticated
	}
	out, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.opts.Bucket),
		Key:           aws.String(p.key(filePath)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", filePath, err)
	}
	return out, nil
}

func (p *Provider) UploadFile(ctx context.Context, r io.Reader, filePath string) models.UploadResult {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.UploadFailed(fmt.Sprintf("read upload: %v", err))
	}
	out, err := p.put(ctx, filePath, data, "application/octet-stream")
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	return models.UploadOK(&models.CloudFile{
		ID:         strings.Trim(aws.ToString(out.ETag), `"`),
		Name:       path.Base(filePath),
		Path:       filePath,
		Size:       int64(len(data)),
		ModifiedAt: time.Now(),
	})
}

// DownloadFile returns the object content, or an error wrapping
// cloud.ErrNotFound for a missing key.
func (p *Provider) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if !p.IsAuthenticated(ctx) {
		return nil, cloud.ErrNotAuthenticated
	}
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(p.key(filePath)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", cloud.ErrNotFound, filePath)
		}
		return nil, fmt.Errorf("get %s: %w", filePath, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	return data, nil
}

// DeleteFile removes the object. S3 deletes are idempotent.
func (p *Provider) DeleteFile(ctx context.Context, filePath string) error {
	if !p.IsAuthenticated(ctx) {
		return cloud.ErrNotAuthenticated
	}
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(p.key(filePath)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", filePath, err)
	}
	return nil
}

// InitializeRemoteFolder creates the bucket when it does not exist yet.
func (p *Provider) InitializeRemoteFolder(ctx context.Context) error {
	if !p.IsAuthenticated(ctx) {
		return cloud.ErrNotAuthenticated
	}
	bucket := aws.String(p.opts.Bucket)
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: bucket})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket: %w", err)
	}

	_, err = p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: bucket})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create bucket: %w", err)
	}
	p.logger.Info(ctx, "bucket created", "bucket", p.opts.Bucket)
	return nil
}

func (p *Provider) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	objects, err := cloud.EncodeMetadata(m)
	if err != nil {
		return err
	}
	for _, name := range cloud.MetadataObjectNames {
		if _, err := p.put(ctx, cloud.ObjectPath(name), objects[name], "application/json"); err != nil {
			return err
		}
	}
	return nil
}

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

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

func isAlreadyExists(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *types.BucketAlreadyExists
	return errors.As(err, &exists)
}
