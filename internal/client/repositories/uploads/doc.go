// Package uploads persists staged files that still have to reach the cloud
// provider, so an upload attempted while offline is retried later.
//
// Key Types
//
//   - type Repository       : contract used by the library service
//   - type SQLiteRepository : SQLite implementation over dbx.DBTX
//
// Typical Usage
//
//	repo := uploads.NewSQLiteRepository(db)
//	_ = repo.CreateOrUpdate(ctx, u)
//	pend, _ := repo.GetAllPending(ctx)
//	_ = repo.RecordFailure(ctx, u.LocalPath, "network down")
//	_ = repo.MarkUploaded(ctx, u.LocalPath)
package uploads
