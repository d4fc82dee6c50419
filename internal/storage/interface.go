// internal/storage/interface.go
package storage

import (
	"context"
	"errors"

	"rickybot/internal/models"
)

// ErrNotFound is returned for absent records and blobs; callers treat it as empty state
var ErrNotFound = errors.New("not found")

// KeyedStore is the single-primary-key record store. Records hold sets of
// identifiers under named attributes, or running deletion stats.
type KeyedStore interface {
	GetRecord(ctx context.Context, key string) (*models.DayRecord, error)
	SetAttribute(ctx context.Context, key, name string, values []string) error
	DeleteRecord(ctx context.Context, key string) error

	GetStats(ctx context.Context, key string) (*models.DeletionStats, error)
	PutStats(ctx context.Context, key string, stats models.DeletionStats) error

	// Health check and cleanup
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore holds one object per key. Put replaces any prior content.
type BlobStore interface {
	Head(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
