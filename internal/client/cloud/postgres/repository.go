package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/dbx"
)

// StoredObject describes a row of cloud_objects without its body.
type StoredObject struct {
	ID        string
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// ObjectRepository reads and writes cloud_objects.
type ObjectRepository struct {
	db dbx.DBTX
}

func NewObjectRepository(db dbx.DBTX) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// Put inserts or overwrites the object at path. An existing object keeps its id.
func (r *ObjectRepository) Put(ctx context.Context, path string, body []byte) (*StoredObject, error) {
	query := `
		INSERT INTO cloud_objects (path, id, body, size, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path)
		DO UPDATE SET
			body = EXCLUDED.body,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at
		RETURNING id, updated_at`

	obj := &StoredObject{Path: path, Size: int64(len(body))}
	err := r.db.QueryRowContext(ctx, query, path, uuid.NewString(), body, obj.Size).Scan(&obj.ID, &obj.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return obj, nil
}

// Get returns the body at path or common.ErrNotFound.
func (r *ObjectRepository) Get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM cloud_objects WHERE path = $1`, path).Scan(&body)
	if dbx.IsNoRows(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return body, nil
}

// Delete removes the object at path. Removing an absent path is not an error.
func (r *ObjectRepository) Delete(ctx context.Context, path string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cloud_objects WHERE path = $1`, path); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
