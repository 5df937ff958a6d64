package uploads

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, u *models.StagedUpload) error {
	query := `INSERT INTO uploads (local_path, remote_path, status, attempts, last_error)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(local_path) DO UPDATE SET
				remote_path = excluded.remote_path,
				status = excluded.status,
				attempts = excluded.attempts,
				last_error = excluded.last_error
	`
	_, err := r.db.ExecContext(ctx, query, u.LocalPath, u.RemotePath, u.Status, u.Attempts, u.LastError)
	if err != nil {
		return fmt.Errorf("failed to upsert upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAllPending(ctx context.Context) ([]*models.StagedUpload, error) {
	query := `SELECT local_path, remote_path, status, attempts, last_error FROM uploads
		WHERE status = ? ORDER BY local_path`
	rows, err := r.db.QueryContext(ctx, query, models.UploadPending)
	if err != nil {
		return nil, fmt.Errorf("error selecting uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.StagedUpload
	for rows.Next() {
		item := &models.StagedUpload{}
		if err := rows.Scan(&item.LocalPath, &item.RemotePath, &item.Status, &item.Attempts, &item.LastError); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, localPath, reason string) error {
	query := `UPDATE uploads SET attempts = attempts + 1, last_error = ? WHERE local_path = ?`
	if _, err := r.db.ExecContext(ctx, query, reason, localPath); err != nil {
		return fmt.Errorf("failed to record upload failure: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, localPath string) error {
	query := `UPDATE uploads SET status = ?, last_error = '' WHERE local_path = ?`
	result, err := r.db.ExecContext(ctx, query, models.UploadCompleted, localPath)
	if err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}

	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}
