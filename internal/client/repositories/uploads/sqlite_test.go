package uploads

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
CREATE TABLE uploads (
  local_path  TEXT PRIMARY KEY,
  remote_path TEXT NOT NULL,
  status      TEXT NOT NULL,
  attempts    INTEGER NOT NULL DEFAULT 0,
  last_error  TEXT NOT NULL DEFAULT ''
);`)
	require.NoError(t, err)
	return db
}

func TestCreateOrUpdate_AndGetAllPending(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, &models.StagedUpload{LocalPath: "/in/a.pdf", RemotePath: "/dockeeper/a.pdf", Status: models.UploadPending}))
	require.NoError(t, r.CreateOrUpdate(ctx, &models.StagedUpload{LocalPath: "/in/b.png", RemotePath: "/dockeeper/b.png", Status: models.UploadCompleted}))

	got, err := r.GetAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/in/a.pdf", got[0].LocalPath)
	assert.Equal(t, "/dockeeper/a.pdf", got[0].RemotePath)
}

func TestRecordFailure_IncrementsAttempts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.CreateOrUpdate(ctx, &models.StagedUpload{LocalPath: "p", RemotePath: "r", Status: models.UploadPending}))

	require.NoError(t, r.RecordFailure(ctx, "p", "offline"))
	require.NoError(t, r.RecordFailure(ctx, "p", "still offline"))

	got, err := r.GetAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Attempts)
	assert.Equal(t, "still offline", got[0].LastError)
}

func TestMarkUploaded_SuccessAndNotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.CreateOrUpdate(ctx, &models.StagedUpload{LocalPath: "p", RemotePath: "r", Status: models.UploadPending, LastError: "x"}))

	require.NoError(t, r.MarkUploaded(ctx, "p"))
	got, err := r.GetAllPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.Error(t, r.MarkUploaded(ctx, "missing"))
}
