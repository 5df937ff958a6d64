package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/dockeeper/internal/client/cache"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

type recordedDoc struct {
	id     string
	action models.ChangeAction
	data   *models.DocumentMetadata
}

type fakeRecorder struct {
	mu       sync.Mutex
	docs     []recordedDoc
	tags     []string
	settings int
}

func (f *fakeRecorder) RegisterDocumentChange(id string, action models.ChangeAction, data *models.DocumentMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, recordedDoc{id: id, action: action, data: data})
	return nil
}

func (f *fakeRecorder) RegisterTagChange(id string, _ models.ChangeAction, _ *models.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, id)
	return nil
}

func (f *fakeRecorder) RegisterSettingsChange() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings++
}

type fakeUploader struct {
	fail     string
	uploaded map[string][]byte
}

func (f *fakeUploader) UploadFile(_ context.Context, r io.Reader, path string) models.UploadResult {
	if f.fail != "" {
		return models.UploadFailed(f.fail)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[path] = b
	return models.UploadOK(&models.CloudFile{ID: path, Name: filepath.Base(path), Path: path, Size: int64(len(b))})
}

type harness struct {
	svc      LibraryService
	store    *cache.Store
	rec      *fakeRecorder
	uploader *fakeUploader
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := cache.NewStore(filepath.Join(t.TempDir(), "cache.db"), logging.Nop())
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{store: store, rec: &fakeRecorder{}, uploader: &fakeUploader{}}
	h.svc = NewLibraryService(store, h.rec, h.uploader, nil, logging.Nop(), func() time.Time { return fixedNow })
	return h
}

func TestAddDocument_AssignsIDAndDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc, err := h.svc.AddDocument(ctx, models.DocumentMetadata{Name: "passport"}, "data:image/png;base64,AAA")
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, fixedNow, models.ParseUploadDate(doc.UploadDate))

	got, err := h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "passport", got.Name)

	m, err := h.store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Contains(t, m.Documents, doc.ID)
	require.Len(t, m.Settings.LastActivity, 1)
	assert.Equal(t, "upload", m.Settings.LastActivity[0].Action)

	thumb, ok, err := h.svc.Thumbnail(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "data:image/png;base64,AAA", thumb)

	require.Len(t, h.rec.docs, 1)
	assert.Equal(t, models.ActionAdd, h.rec.docs[0].action)
	assert.Equal(t, 1, h.rec.settings)
}

func TestUpdateDocument_KeepsUploadDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.svc.AddDocument(ctx, models.DocumentMetadata{Name: "a", UploadDate: "2024-01-01"}, "")
	require.NoError(t, err)

	upd := *doc
	upd.Name = "renamed"
	upd.UploadDate = "2030-01-01"
	require.NoError(t, h.svc.UpdateDocument(ctx, upd))

	got, err := h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "2024-01-01", got.UploadDate)
	assert.Equal(t, models.ActionUpdate, h.rec.docs[len(h.rec.docs)-1].action)
}

func TestUpdateDocument_Missing(t *testing.T) {
	h := newHarness(t)

	err := h.svc.UpdateDocument(context.Background(), models.DocumentMetadata{ID: "nope"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteDocument_RemovesEverywhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc, err := h.svc.AddDocument(ctx, models.DocumentMetadata{Name: "a"}, "thumb")
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteDocument(ctx, doc.ID))

	_, err = h.svc.GetDocument(ctx, doc.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	m, err := h.store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.NotContains(t, m.Documents, doc.ID)
	_, ok, err := h.svc.Thumbnail(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	last := h.rec.docs[len(h.rec.docs)-1]
	assert.Equal(t, models.ActionDelete, last.action)
	assert.Nil(t, last.data)

	require.ErrorIs(t, h.svc.DeleteDocument(ctx, doc.ID), common.ErrNotFound)
}

func TestListDocuments_NewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, d := range []string{"2024-01-01", "2024-03-01", "2024-02-01"} {
		_, err := h.svc.AddDocument(ctx, models.DocumentMetadata{Name: d, UploadDate: d}, "")
		require.NoError(t, err)
	}

	docs, err := h.svc.ListDocuments(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "2024-03-01", docs[0].Name)
	assert.Equal(t, "2024-01-01", docs[2].Name)
}

func TestTags_AddAndAttach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddTag(ctx, "  ", "red")
	require.ErrorIs(t, err, ErrEmptyName)

	tag, err := h.svc.AddTag(ctx, "Receipts", "green")
	require.NoError(t, err)
	doc, err := h.svc.AddDocument(ctx, models.DocumentMetadata{Name: "r1"}, "")
	require.NoError(t, err)

	require.NoError(t, h.svc.TagDocument(ctx, doc.ID, "receipts"))
	require.NoError(t, h.svc.TagDocument(ctx, doc.ID, tag.ID))
	require.NoError(t, h.svc.TagDocument(ctx, doc.ID, "taxes"))

	got, err := h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got.Tags, 2)
	assert.Equal(t, tag.ID, got.Tags[0])

	tags, err := h.svc.Tags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Len(t, h.rec.tags, 2)
}

func TestSetProcessingMethod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.ErrorIs(t, h.svc.SetProcessingMethod(ctx, "cloud-magic"), ErrInvalidMethod)
	assert.Zero(t, h.rec.settings)

	require.NoError(t, h.svc.SetProcessingMethod(ctx, models.ProcessingAPI))

	s, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingAPI, s.ProcessingMethod)
	assert.Equal(t, 1, h.rec.settings)
}

func TestActivityLogIsBounded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < maxActivity+5; i++ {
		require.NoError(t, h.svc.SetProcessingMethod(ctx, models.ProcessingAPI))
	}

	s, err := h.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Len(t, s.LastActivity, maxActivity)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestUploadAndAdd_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := writeFile(t, "Scan 01.PDF", "%PDF")

	doc, err := h.svc.UploadAndAdd(ctx, local, models.DocumentMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "Scan 01", doc.Name)
	assert.Equal(t, "/dockeeper/files/"+doc.ID+".pdf", doc.Path)
	assert.Equal(t, []byte("%PDF"), h.uploader.uploaded[doc.Path])

	repo, err := h.store.Uploads(ctx)
	require.NoError(t, err)
	pending, err := repo.GetAllPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUploadAndAdd_DeferredThenRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := writeFile(t, "a.png", "png")
	h.uploader.fail = "not connected to cloud storage"

	doc, err := h.svc.UploadAndAdd(ctx, local, models.DocumentMetadata{Name: "receipt"})
	require.ErrorIs(t, err, ErrUploadDeferred)
	require.NotNil(t, doc)

	_, err = h.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err, "document is kept locally")

	n, err := h.svc.RetryUploads(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.uploader.fail = ""
	n, err = h.svc.RetryUploads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, h.uploader.uploaded, doc.Path)

	n, err = h.svc.RetryUploads(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadAndAdd_MissingFile(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.UploadAndAdd(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), models.DocumentMetadata{})
	require.ErrorIs(t, err, ErrUploadDeferred)
}
