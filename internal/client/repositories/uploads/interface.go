package uploads

import (
	"context"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
)

// Repository describes bookkeeping of staged uploads.
type Repository interface {
	// CreateOrUpdate inserts or replaces the record keyed by LocalPath.
	CreateOrUpdate(ctx context.Context, u *models.StagedUpload) error

	// GetAllPending returns records whose status is pending.
	GetAllPending(ctx context.Context) ([]*models.StagedUpload, error)

	// RecordFailure increments the attempt counter and stores the reason.
	RecordFailure(ctx context.Context, localPath, reason string) error

	// MarkUploaded sets the status to completed. Exactly one row must match.
	MarkUploaded(ctx context.Context, localPath string) error
}
