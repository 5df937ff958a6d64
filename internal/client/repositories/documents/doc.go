// Package documents provides the indexed document area of the local cache.
//
// # Overview
//
// Every DocumentMetadata is stored as a JSON body keyed by id, next to an
// integer upload_date column (epoch milliseconds) covered by a secondary
// index. The index serves newest-first paged listings without decoding the
// whole metadata triplet.
//
// # Concurrency
//
// Implementations are safe for concurrent use when backed by *sql.DB. When
// bound to *sql.Tx (dbx.DBTX) follow normal transaction scoping rules.
//
// Typical Usage
//
//	repo := documents.NewSQLiteRepository(db)
//	_ = repo.Upsert(ctx, doc)
//	page, _ := repo.List(ctx, 20, 40)
//	one, _ := repo.GetByID(ctx, id)
//	_ = repo.DeleteByID(ctx, id)
package documents
