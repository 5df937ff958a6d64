package documents

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE documents (
  id          TEXT PRIMARY KEY,
  upload_date INTEGER NOT NULL,
  body        BLOB NOT NULL
);
CREATE INDEX idx_documents_upload_date ON documents (upload_date);
`)
	require.NoError(t, err)
	return db
}

func seed(t *testing.T, r *SQLiteRepository, docs ...models.DocumentMetadata) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, r.Upsert(context.Background(), d))
	}
}

func ids(docs []models.DocumentMetadata) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	seed(t, r, models.DocumentMetadata{ID: "d1", Name: "receipt", UploadDate: "2024-01-01", Tags: []string{"t1"}})
	seed(t, r, models.DocumentMetadata{ID: "d1", Name: "invoice", UploadDate: "2024-02-01"})

	got, err := r.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "invoice", got.Name)
	assert.Equal(t, "2024-02-01", got.UploadDate)
}

func TestGetByID_Absent_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestList_NewestFirstWithPagination(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	seed(t, r,
		models.DocumentMetadata{ID: "a", UploadDate: "2024-01-01"},
		models.DocumentMetadata{ID: "b", UploadDate: "2024-03-01T08:00:00Z"},
		models.DocumentMetadata{ID: "c", UploadDate: "2024-02-15"},
		models.DocumentMetadata{ID: "d", UploadDate: "not a date"},
	)

	all, err := r.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(all))

	page, err := r.List(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(page))

	tail, err := r.List(ctx, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(tail))

	empty, err := r.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteByID_IsIdempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	seed(t, r, models.DocumentMetadata{ID: "x", UploadDate: "2024-01-01"})

	require.NoError(t, r.DeleteByID(ctx, "x"))
	require.NoError(t, r.DeleteByID(ctx, "x"))

	got, err := r.GetByID(ctx, "x")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIDsAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	seed(t, r,
		models.DocumentMetadata{ID: "x", UploadDate: "2024-01-01"},
		models.DocumentMetadata{ID: "y", UploadDate: "2024-01-02"},
	)

	got, err := r.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, got)

	require.NoError(t, r.Clear(ctx))
	got, err = r.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	require.ErrorContains(t, r.Upsert(ctx, models.DocumentMetadata{ID: "x"}), "failed to upsert document")
	_, err := r.GetByID(ctx, "x")
	require.ErrorContains(t, err, "failed to select document")
	_, err = r.List(ctx, 1, 0)
	require.ErrorContains(t, err, "failed to select documents")
}
