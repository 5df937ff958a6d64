// Package kv provides the key/value areas of the local cache: the metadata
// triplet, thumbnails and process-local preferences share one table shape
// and one implementation.
package kv

import (
	"context"
)

// Table names of the key/value areas.
const (
	TableMetadata    = "metadata"
	TableThumbnails  = "thumbnails"
	TablePreferences = "preferences"
)

// Repository is a byte-valued key/value store. Get returns (nil, nil) for
// an absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
