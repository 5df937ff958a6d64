package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "cache.db"), logging.Nop())
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample() *models.CloudMetadata {
	m := models.NewCloudMetadata()
	m.Documents["d1"] = models.DocumentMetadata{ID: "d1", Name: "passport", UploadDate: "2024-01-01", Tags: []string{"t1"}}
	m.Documents["d2"] = models.DocumentMetadata{ID: "d2", Name: "invoice", UploadDate: "2024-03-01"}
	m.Tags = []models.Tag{{ID: "t1", Name: "ids", Color: "red"}}
	m.Settings.ProcessingMethod = models.ProcessingAPI
	return m
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Initialize(context.Background()))
}

func TestInitialize_FailureIsReported(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "cache.db"), logging.Nop())

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, ErrStorageInit)
	require.ErrorIs(t, s.LastError(), ErrStorageInit)

	_, err = s.LoadMetadata(context.Background())
	require.ErrorIs(t, err, ErrStorageInit)
}

func TestLoadMetadata_EmptyStoreYieldsNil(t *testing.T) {
	s := newTestStore(t)

	m, err := s.LoadMetadata(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLoadMetadata_PartialTripletDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	db, err := s.ensureInitialized(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES ('tags', '[{"id":"t1","name":"a","color":"b"}]')`)
	require.NoError(t, err)

	m, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Documents)
	assert.Len(t, m.Tags, 1)
	assert.Equal(t, models.DefaultSettings(), m.Settings)
}

func TestSaveLoadMetadata_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, sample()))

	got, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestSaveMetadata_MirrorsDocumentsIntoIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, sample()))

	docs, err := s.LoadAllDocuments(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID, "newest first")
	assert.Equal(t, "d1", docs[1].ID)
}

func TestSaveMetadata_DropsIndexRowsOfRemovedDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, sample()))
	require.NoError(t, s.SaveThumbnail(ctx, "d1", "data:image/png;base64,AAA"))

	m := sample()
	delete(m.Documents, "d1")
	require.NoError(t, s.SaveMetadata(ctx, m))

	doc, err := s.LoadDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, ok, err := s.LoadThumbnail(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocuments_SaveLoadDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := models.DocumentMetadata{ID: "x", Name: "receipt", UploadDate: "2024-05-05T10:00:00Z"}

	require.NoError(t, s.SaveDocument(ctx, d))
	require.NoError(t, s.SaveThumbnail(ctx, "x", "thumb"))

	got, err := s.LoadDocument(ctx, "x")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "receipt", got.Name)

	require.NoError(t, s.DeleteDocument(ctx, "x"))
	require.NoError(t, s.DeleteDocument(ctx, "x"))

	got, err = s.LoadDocument(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok, err := s.LoadThumbnail(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadAllDocuments_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, d := range []models.DocumentMetadata{
		{ID: "a", UploadDate: "2024-01-01"},
		{ID: "b", UploadDate: "2024-01-02"},
		{ID: "c", UploadDate: "2024-01-03"},
	} {
		require.NoError(t, s.SaveDocument(ctx, d))
	}

	page, err := s.LoadAllDocuments(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].ID)
	assert.Equal(t, "a", page[1].ID)
}

func TestThumbnail_AbsentReportsNotOK(t *testing.T) {
	s := newTestStore(t)

	v, ok, err := s.LoadThumbnail(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestClearAllData_KeepsPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, sample()))
	require.NoError(t, s.SaveThumbnail(ctx, "d1", "thumb"))
	require.NoError(t, s.Preferences().Set(ctx, "cloud_config", []byte(`{"provider":"mock"}`)))

	require.NoError(t, s.ClearAllData(ctx))

	m, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	docs, err := s.LoadAllDocuments(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, ok, err := s.LoadThumbnail(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	pref, err := s.Preferences().Get(ctx, "cloud_config")
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"mock"}`, string(pref))
}

func TestClose_ReopensLazily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, sample()))
	require.NoError(t, s.Close())

	m, err := s.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, m.Documents, 2)
}

func TestUploads_Accessor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo, err := s.Uploads(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.CreateOrUpdate(ctx, &models.StagedUpload{
		LocalPath: "/tmp/a.pdf", RemotePath: "/dockeeper/a.pdf", Status: models.UploadPending,
	}))

	pending, err := repo.GetAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
