package kv

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/dockeeper/internal/dbx"
)

// SQLiteRepository implements Repository over one key/value table.
type SQLiteRepository struct {
	db    dbx.DBTX
	table string
}

// NewSQLiteRepository binds a repository to table. The table must be one of
// the Table* constants; anything else panics since it is interpolated into SQL.
func NewSQLiteRepository(db dbx.DBTX, table string) *SQLiteRepository {
	switch table {
	case TableMetadata, TableThumbnails, TablePreferences:
	default:
		panic(fmt.Sprintf("kv: unknown table %q", table))
	}
	return &SQLiteRepository{db: db, table: table}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM `+r.table+` WHERE key = ?`, key).Scan(&value)
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table, key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO `+r.table+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s[%s]: %w", r.table, key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", r.table, key, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", r.table, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM `+r.table)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.table, err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.table, err)
	}

	return result, nil
}
