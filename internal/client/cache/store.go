// Package cache implements the local cache store: a SQLite database holding
// the metadata triplet, thumbnails and an indexed copy of every document.
//
// The indexed documents area is authoritative for document-level reads and
// deletes. The metadata triplet is the shape exchanged with the cloud; the
// two are reconciled whenever SaveMetadata runs.
//
// Store methods never panic on storage failures. Each failure is logged,
// remembered (see LastError) and returned to the caller.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/documents"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/dockeeper/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/dockeeper/internal/common"
	"github.com/dmitrijs2005/dockeeper/internal/dbx"
	"github.com/dmitrijs2005/dockeeper/internal/logging"
)

// ErrStorageInit reports that the database could not be opened or migrated.
var ErrStorageInit = errors.New("local cache initialization failed")

// Store is the local cache. The zero value is not usable; call NewStore.
type Store struct {
	dsn    string
	logger logging.Logger

	mu      sync.Mutex
	db      *sql.DB
	lastErr error
}

// NewStore returns a store for the SQLite database at dsn. Nothing is opened
// until Initialize or the first operation.
func NewStore(dsn string, logger logging.Logger) *Store {
	return &Store{dsn: dsn, logger: logger.With("component", "cache")}
}

// Initialize opens the database and creates missing tables. Calling it
// again after success is a no-op; after a failure it retries.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.ensureInitialized(ctx)
	return err
}

func (s *Store) ensureInitialized(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := InitDatabase(ctx, s.dsn)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageInit, err)
		s.lastErr = err
		s.logger.Error(ctx, "cache init failed", "dsn", s.dsn, "error", err)
		return nil, err
	}
	s.db = db
	return db, nil
}

// Close releases the database. The store reopens lazily if used again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// LastError returns the most recent failure of any store operation.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error(ctx, "cache operation failed", "op", op, "error", err)
	return err
}

// SaveMetadata writes the triplet and mirrors its documents into the indexed
// area in a single transaction. Index rows (and thumbnails) of documents no
// longer present in m are removed.
func (s *Store) SaveMetadata(ctx context.Context, m *models.CloudMetadata) error {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return err
	}

	snapshot := m.Clone()
	snapshot.Normalize()

	parts := map[string]any{
		common.KeyDocuments: snapshot.Documents,
		common.KeyTags:      snapshot.Tags,
		common.KeySettings:  snapshot.Settings,
	}

	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := kv.NewSQLiteRepository(tx, kv.TableMetadata)
		for key, v := range parts {
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			if err := meta.Set(ctx, key, b); err != nil {
				return err
			}
		}

		docs := documents.NewSQLiteRepository(tx)
		thumbs := kv.NewSQLiteRepository(tx, kv.TableThumbnails)

		existing, err := docs.IDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range existing {
			if _, ok := snapshot.Documents[id]; ok {
				continue
			}
			if err := docs.DeleteByID(ctx, id); err != nil {
				return err
			}
			if err := thumbs.Delete(ctx, id); err != nil {
				return err
			}
		}
		for _, d := range snapshot.Documents {
			if err := docs.Upsert(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "save metadata", err)
	}
	return nil
}

// LoadMetadata reads the triplet. It returns (nil, nil) when no part was ever
// saved; otherwise missing parts default to an empty document map, an empty
// tag list and DefaultSettings.
func (s *Store) LoadMetadata(ctx context.Context) (*models.CloudMetadata, error) {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}

	meta := kv.NewSQLiteRepository(db, kv.TableMetadata)
	result := models.NewCloudMetadata()

	targets := []struct {
		key string
		dst any
	}{
		{common.KeyDocuments, &result.Documents},
		{common.KeyTags, &result.Tags},
		{common.KeySettings, &result.Settings},
	}
	found := false
	for _, t := range targets {
		b, err := meta.Get(ctx, t.key)
		if err != nil {
			return nil, s.fail(ctx, "load metadata", err)
		}
		if b == nil {
			continue
		}
		found = true
		if err := json.Unmarshal(b, t.dst); err != nil {
			return nil, s.fail(ctx, "load metadata", fmt.Errorf("decode %s: %w", t.key, err))
		}
	}

	if !found {
		return nil, nil
	}
	result.Normalize()
	return result, nil
}

// SaveThumbnail stores the thumbnail of document id.
func (s *Store) SaveThumbnail(ctx context.Context, id, thumbnail string) error {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return err
	}
	if err := kv.NewSQLiteRepository(db, kv.TableThumbnails).Set(ctx, id, []byte(thumbnail)); err != nil {
		return s.fail(ctx, "save thumbnail", err)
	}
	return nil
}

// LoadThumbnail returns the thumbnail of document id; ok is false when none
// is stored.
func (s *Store) LoadThumbnail(ctx context.Context, id string) (thumbnail string, ok bool, err error) {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return "", false, err
	}
	b, err := kv.NewSQLiteRepository(db, kv.TableThumbnails).Get(ctx, id)
	if err != nil {
		return "", false, s.fail(ctx, "load thumbnail", err)
	}
	if b == nil {
		return "", false, nil
	}
	return string(b), true, nil
}

// SaveDocument writes one document to the indexed area only.
func (s *Store) SaveDocument(ctx context.Context, doc models.DocumentMetadata) error {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return err
	}
	if err := documents.NewSQLiteRepository(db).Upsert(ctx, doc); err != nil {
		return s.fail(ctx, "save document", err)
	}
	return nil
}

// LoadDocument returns the document, or (nil, nil) when it is absent.
func (s *Store) LoadDocument(ctx context.Context, id string) (*models.DocumentMetadata, error) {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := documents.NewSQLiteRepository(db).GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "load document", err)
	}
	return doc, nil
}

// LoadAllDocuments returns documents newest upload date first, skipping
// offset documents and returning at most limit (all when limit <= 0).
func (s *Store) LoadAllDocuments(ctx context.Context, limit, offset int) ([]models.DocumentMetadata, error) {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := documents.NewSQLiteRepository(db).List(ctx, limit, offset)
	if err != nil {
		return nil, s.fail(ctx, "load documents", err)
	}
	return docs, nil
}

// DeleteDocument removes the indexed document and its thumbnail. The
// metadata triplet is left alone.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return err
	}
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := documents.NewSQLiteRepository(tx).DeleteByID(ctx, id); err != nil {
			return err
		}
		return kv.NewSQLiteRepository(tx, kv.TableThumbnails).Delete(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, "delete document", err)
	}
	return nil
}

// ClearAllData wipes the metadata, thumbnail and document areas.
// Preferences and staged uploads survive.
func (s *Store) ClearAllData(ctx context.Context) error {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return err
	}
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := kv.NewSQLiteRepository(tx, kv.TableMetadata).Clear(ctx); err != nil {
			return err
		}
		if err := kv.NewSQLiteRepository(tx, kv.TableThumbnails).Clear(ctx); err != nil {
			return err
		}
		return documents.NewSQLiteRepository(tx).Clear(ctx)
	})
	if err != nil {
		return s.fail(ctx, "clear all data", err)
	}
	return nil
}

// Preferences returns the process-local key/value area used for provider
// configuration and the mock provider's state.
func (s *Store) Preferences() kv.Repository {
	return &lazyKV{s: s, table: kv.TablePreferences}
}

// Uploads returns the staged upload bookkeeping repository.
func (s *Store) Uploads(ctx context.Context) (uploads.Repository, error) {
	db, err := s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	return uploads.NewSQLiteRepository(db), nil
}

// lazyKV opens the store on first use so callers can hold a repository
// before the database is reachable.
type lazyKV struct {
	s     *Store
	table string
}

func (l *lazyKV) repo(ctx context.Context) (*kv.SQLiteRepository, error) {
	db, err := l.s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	return kv.NewSQLiteRepository(db, l.table), nil
}

func (l *lazyKV) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := l.repo(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, key)
}

func (l *lazyKV) Set(ctx context.Context, key string, value []byte) error {
	r, err := l.repo(ctx)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, value)
}

func (l *lazyKV) Delete(ctx context.Context, key string) error {
	r, err := l.repo(ctx)
	if err != nil {
		return err
	}
	return r.Delete(ctx, key)
}

func (l *lazyKV) List(ctx context.Context) (map[string][]byte, error) {
	r, err := l.repo(ctx)
	if err != nil {
		return nil, err
	}
	return r.List(ctx)
}

func (l *lazyKV) Clear(ctx context.Context) error {
	r, err := l.repo(ctx)
	if err != nil {
		return err
	}
	return r.Clear(ctx)
}
