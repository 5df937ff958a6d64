package documents

import (
	"context"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
)

// Repository describes the indexed document area.
type Repository interface {
	// Upsert inserts a document or replaces the stored copy with the same id.
	Upsert(ctx context.Context, doc models.DocumentMetadata) error

	// GetByID returns the document, or (nil, nil) when it is absent.
	GetByID(ctx context.Context, id string) (*models.DocumentMetadata, error)

	// List returns documents newest upload date first, skipping offset rows
	// and returning at most limit rows. limit <= 0 returns every remaining row.
	List(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error)

	// IDs returns the ids of all stored documents.
	IDs(ctx context.Context) ([]string, error)

	// DeleteByID removes the document. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// Clear removes every document.
	Clear(ctx context.Context) error
}
