package models

import "time"

// ProviderKind names a cloud storage backend.
type ProviderKind string

const (
	ProviderMock     ProviderKind = "mock"
	ProviderDropbox  ProviderKind = "dropbox"
	ProviderS3       ProviderKind = "s3"
	ProviderPostgres ProviderKind = "postgres"
)

// ProviderConfig is the persisted connection record of the active provider.
type ProviderConfig struct {
	Provider     ProviderKind `json:"provider"`
	AccessToken  string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	Expiration   time.Time    `json:"expiration,omitempty"`
}

// HasValidToken reports whether an access token is present and not expired
// at now. A zero Expiration means the token does not expire.
func (c ProviderConfig) HasValidToken(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiration.IsZero() || now.Before(c.Expiration)
}

// CloudFile describes a file stored by a provider.
type CloudFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// UploadResult is either a successful upload with File set, or a failure
// with a human readable Error.
type UploadResult struct {
	Success bool
	File    *CloudFile
	Error   string
}

// UploadOK builds a successful result.
func UploadOK(f *CloudFile) UploadResult {
	return UploadResult{Success: true, File: f}
}

// UploadFailed builds a failed result.
func UploadFailed(msg string) UploadResult {
	return UploadResult{Error: msg}
}

// Upload states of a staged file.
const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
)

// StagedUpload is a local file waiting to be uploaded to the provider.
type StagedUpload struct {
	LocalPath  string
	RemotePath string
	Status     string
	Attempts   int
	LastError  string
}
