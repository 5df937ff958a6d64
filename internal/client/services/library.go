// Package services contains application services for the DocKeeper client.
// This file defines the library service: the mutation surface that keeps the
// local cache, the staged uploads and the offline change log consistent.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/dockeeper/internal/client/cloud"
	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

var (
	// ErrUploadDeferred reports that a document was added locally but its file
	// could not reach the provider yet. The upload stays staged for RetryUploads.
	ErrUploadDeferred = errors.New("upload deferred")

	ErrInvalidMethod = errors.New("invalid processing method")
	ErrEmptyName     = errors.New("name must not be empty")
)

// maxActivity bounds the settings activity log.
const maxActivity = 50

// Store is the part of the local cache the library service needs.
type Store interface {
	LoadMetadata(ctx context.Context) (*models.CloudMetadata, error)
	SaveMetadata(ctx context.Context, m *models.CloudMetadata) error
	SaveThumbnail(ctx context.Context, id, thumbnail string) error
	LoadThumbnail(ctx context.Context, id string) (string, bool, error)
	LoadDocument(ctx context.Context, id string) (*models.DocumentMetadata, error)
	LoadAllDocuments(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error)
	DeleteDocument(ctx context.Context, id string) error
	Uploads(ctx context.Context) (uploads.Repository, error)
}

// ChangeRecorder receives every mutation so the next sync can replay it.
type ChangeRecorder interface {
	RegisterDocumentChange(id string, action models.ChangeAction, data *models.DocumentMetadata) error
	RegisterTagChange(id string, action models.ChangeAction, data *models.Tag) error
	RegisterSettingsChange()
}

// Uploader sends staged files to the active provider.
type Uploader interface {
	UploadFile(ctx context.Context, r io.Reader, path string) models.UploadResult
}

// LibraryService defines the document library operations used by the CLI and
// the inbox watcher.
type LibraryService interface {
	AddDocument(ctx context.Context, doc models.DocumentMetadata, thumbnail string) (*models.DocumentMetadata, error)
	UpdateDocument(ctx context.Context, doc models.DocumentMetadata) error
	DeleteDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*models.DocumentMetadata, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error)
	Thumbnail(ctx context.Context, id string) (string, bool, error)

	Tags(ctx context.Context) ([]models.Tag, error)
	AddTag(ctx context.Context, name, color string) (*models.Tag, error)
	TagDocument(ctx context.Context, docID, tag string) error

	Settings(ctx context.Context) (models.AppSettings, error)
	SetProcessingMethod(ctx context.Context, method models.ProcessingMethod) error

	UploadAndAdd(ctx context.Context, localPath string, doc models.DocumentMetadata) (*models.DocumentMetadata, error)
	RetryUploads(ctx context.Context) (int, error)
}

type libraryService struct {
	store    Store
	changes  ChangeRecorder
	uploader Uploader
	logger   logging.Logger
	now      func() time.Time

	// mu serializes read-modify-write cycles of the metadata triplet. It is
	// shared with the sync engine's local write-back.
	mu sync.Locker
}

// NewLibraryService constructs a LibraryService. lock guards the local
// triplet and should be the one passed to the sync engine as
// syncer.Options.LocalLock; nil gives the service a private lock. now may
// be nil.
func NewLibraryService(store Store, changes ChangeRecorder, uploader Uploader, lock sync.Locker, logger logging.Logger, now func() time.Time) LibraryService {
	if now == nil {
		now = time.Now
	}
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &libraryService{
		store:    store,
		changes:  changes,
		uploader: uploader,
		logger:   logger.With("component", "library"),
		now:      now,
		mu:       lock,
	}
}

// loadLocked returns the local triplet, or an empty one on a device that
// never synced.
func (s *libraryService) loadLocked(ctx context.Context) (*models.CloudMetadata, error) {
	m, err := s.store.LoadMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading metadata: %w", err)
	}
	if m == nil {
		m = models.NewCloudMetadata()
	}
	return m, nil
}

func (s *libraryService) recordActivity(m *models.CloudMetadata, action string) {
	m.Settings.LastActivity = append(m.Settings.LastActivity, models.Activity{
		Action:    action,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if n := len(m.Settings.LastActivity); n > maxActivity {
		m.Settings.LastActivity = m.Settings.LastActivity[n-maxActivity:]
	}
}

// AddDocument assigns an id and upload date when missing and stores the
// document together with its thumbnail.
func (s *libraryService) AddDocument(ctx context.Context, doc models.DocumentMetadata, thumbnail string) (*models.DocumentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, doc, thumbnail)
}

func (s *libraryService) addLocked(ctx context.Context, doc models.DocumentMetadata, thumbnail string) (*models.DocumentMetadata, error) {
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadDate == "" {
		doc.UploadDate = s.now().UTC().Format(time.RFC3339Nano)
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if doc.Detections == nil {
		doc.Detections = []string{}
	}

	m, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	m.Documents[doc.ID] = doc
	s.recordActivity(m, "upload")
	if err := s.store.SaveMetadata(ctx, m); err != nil {
		return nil, fmt.Errorf("error saving document: %w", err)
	}
	if thumbnail != "" {
		if err := s.store.SaveThumbnail(ctx, doc.ID, thumbnail); err != nil {
			return nil, fmt.Errorf("error saving thumbnail: %w", err)
		}
	}

	if err := s.changes.RegisterDocumentChange(doc.ID, models.ActionAdd, &doc); err != nil {
		return nil, err
	}
	// Settings carry the activity entry.
	s.changes.RegisterSettingsChange()

	s.logger.Info(ctx, "document added", "id", doc.ID, "name", doc.Name)
	return &doc, nil
}

// UpdateDocument replaces a stored document. ID and upload date are kept.
func (s *libraryService) UpdateDocument(ctx context.Context, doc models.DocumentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, doc)
}

func (s *libraryService) updateLocked(ctx context.Context, doc models.DocumentMetadata) error {
	existing, err := s.store.LoadDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("error loading document: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("document %q: %w", doc.ID, common.ErrNotFound)
	}
	doc = doc.Clone()
	doc.UploadDate = existing.UploadDate

	m, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	m.Documents[doc.ID] = doc
	if err := s.store.SaveMetadata(ctx, m); err != nil {
		return fmt.Errorf("error saving document: %w", err)
	}
	return s.changes.RegisterDocumentChange(doc.ID, models.ActionUpdate, &doc)
}

// DeleteDocument removes a document from every local area and records the
// delete for the next sync. The staged file on the provider is left alone.
func (s *libraryService) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.LoadDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading document: %w", err)
	}
	m, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	_, inTriplet := m.Documents[id]
	if existing == nil && !inTriplet {
		return fmt.Errorf("document %q: %w", id, common.ErrNotFound)
	}

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}
	delete(m.Documents, id)
	if err := s.store.SaveMetadata(ctx, m); err != nil {
		return fmt.Errorf("error saving metadata: %w", err)
	}

	s.logger.Info(ctx, "document deleted", "id", id)
	return s.changes.RegisterDocumentChange(id, models.ActionDelete, nil)
}

// GetDocument returns the document or common.ErrNotFound.
func (s *libraryService) GetDocument(ctx context.Context, id string) (*models.DocumentMetadata, error) {
	doc, err := s.store.LoadDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %q: %w", id, common.ErrNotFound)
	}
	return doc, nil
}

func (s *libraryService) ListDocuments(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error) {
	docs, err := s.store.LoadAllDocuments(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	return docs, nil
}

func (s *libraryService) Thumbnail(ctx context.Context, id string) (string, bool, error) {
	return s.store.LoadThumbnail(ctx, id)
}

func (s *libraryService) Tags(ctx context.Context) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return m.Tags, nil
}

// AddTag creates a tag with a fresh id.
func (s *libraryService) AddTag(ctx context.Context, name, color string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTagLocked(ctx, name, color)
}

func (s *libraryService) addTagLocked(ctx context.Context, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	m, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	tag := models.Tag{ID: uuid.NewString(), Name: name, Color: color}
	m.Tags = append(m.Tags, tag)
	if err := s.store.SaveMetadata(ctx, m); err != nil {
		return nil, fmt.Errorf("error saving tag: %w", err)
	}
	if err := s.changes.RegisterTagChange(tag.ID, models.ActionAdd, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// TagDocument attaches a tag, given by id or name, to a document. An unknown
// name creates the tag.
func (s *libraryService) TagDocument(ctx context.Context, docID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.LoadDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("error loading document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %q: %w", docID, common.ErrNotFound)
	}

	m, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	tagID := ""
	if m.HasTag(tag) {
		tagID = tag
	} else {
		for _, t := range m.Tags {
			if strings.EqualFold(t.Name, tag) {
				tagID = t.ID
				break
			}
		}
	}
	if tagID == "" {
		created, err := s.addTagLocked(ctx, tag, "")
		if err != nil {
			return err
		}
		tagID = created.ID
	}

	if doc.HasTag(tagID) {
		return nil
	}
	doc.Tags = append(doc.Tags, tagID)
	return s.updateLocked(ctx, *doc)
}

func (s *libraryService) Settings(ctx context.Context) (models.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadLocked(ctx)
	if err != nil {
		return models.AppSettings{}, err
	}
	return m.Settings, nil
}

// SetProcessingMethod switches where documents are recognized.
func (s *libraryService) SetProcessingMethod(ctx context.Context, method models.ProcessingMethod) error {
	if method != models.ProcessingClientSide && method != models.ProcessingAPI {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	m.Settings.ProcessingMethod = method
	s.recordActivity(m, "settings")
	if err := s.store.SaveMetadata(ctx, m); err != nil {
		return fmt.Errorf("error saving settings: %w", err)
	}
	s.changes.RegisterSettingsChange()
	return nil
}

// remotePath is the provider location of a staged file.
func remotePath(id, localPath string) string {
	return cloud.ObjectPath("files/" + id + strings.ToLower(filepath.Ext(localPath)))
}

// UploadAndAdd stages localPath, uploads it and adds doc pointing at the
// uploaded file. When the upload fails the document is still added and the
// returned error wraps ErrUploadDeferred.
func (s *libraryService) UploadAndAdd(ctx context.Context, localPath string, doc models.DocumentMetadata) (*models.DocumentMetadata, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
	}
	doc.Path = remotePath(doc.ID, localPath)

	repo, err := s.store.Uploads(ctx)
	if err != nil {
		return nil, fmt.Errorf("error opening uploads: %w", err)
	}
	staged := &models.StagedUpload{LocalPath: localPath, RemotePath: doc.Path, Status: models.UploadPending}
	if err := repo.CreateOrUpdate(ctx, staged); err != nil {
		return nil, err
	}

	res := s.upload(ctx, localPath, doc.Path)
	if res.Success {
		doc.Path = res.File.Path
		if err := repo.MarkUploaded(ctx, localPath); err != nil {
			s.logger.Warn(ctx, "mark uploaded failed", "path", localPath, "error", err)
		}
	} else if err := repo.RecordFailure(ctx, localPath, res.Error); err != nil {
		s.logger.Warn(ctx, "record upload failure failed", "path", localPath, "error", err)
	}

	added, err := s.AddDocument(ctx, doc, "")
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return added, fmt.Errorf("%w: %s", ErrUploadDeferred, res.Error)
	}
	return added, nil
}

func (s *libraryService) upload(ctx context.Context, localPath, dst string) models.UploadResult {
	f, err := os.Open(localPath)
	if err != nil {
		return models.UploadFailed(err.Error())
	}
	defer f.Close()
	return s.uploader.UploadFile(ctx, f, dst)
}

// RetryUploads re-sends every staged file that has not reached the provider
// and returns how many succeeded.
func (s *libraryService) RetryUploads(ctx context.Context) (int, error) {
	repo, err := s.store.Uploads(ctx)
	if err != nil {
		return 0, fmt.Errorf("error opening uploads: %w", err)
	}
	pending, err := repo.GetAllPending(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	var errs []error
	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		res := s.upload(ctx, u.LocalPath, u.RemotePath)
		if !res.Success {
			if err := repo.RecordFailure(ctx, u.LocalPath, res.Error); err != nil {
				errs = append(errs, err)
			}
			s.logger.Warn(ctx, "staged upload failed", "path", u.LocalPath, "attempts", u.Attempts+1, "error", res.Error)
			continue
		}
		if err := repo.MarkUploaded(ctx, u.LocalPath); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}
