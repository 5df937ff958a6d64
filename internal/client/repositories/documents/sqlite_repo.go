package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert stores doc keyed by its id together with its upload date index value.
func (r *SQLiteRepository) Upsert(ctx context.Context, doc models.DocumentMetadata) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}

	query := `INSERT INTO documents (id, upload_date, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET upload_date = excluded.upload_date, body = excluded.body`
	_, err = r.db.ExecContext(ctx, query, doc.ID, uploadKey(doc), body)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// GetByID returns a single document or (nil, nil) if there is none.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.DocumentMetadata, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select document: %w", err)
	}

	var doc models.DocumentMetadata
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &doc, nil
}

// List walks the upload date index in descending order. Ties are broken by
// id so pages are stable.
func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, body FROM documents ORDER BY upload_date DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	result := make([]models.DocumentMetadata, 0)
	for rows.Next() {
		var (
			id   string
			body []byte
			doc  models.DocumentMetadata
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to select document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return nil
}

// uploadKey is the sortable index value: epoch milliseconds of the parsed
// upload date. Unparsable dates sort as the oldest.
func uploadKey(doc models.DocumentMetadata) int64 {
	t := models.ParseUploadDate(doc.UploadDate)
	if t.IsZero() {
		return math.MinInt64
	}
	return t.UnixMilli()
}
