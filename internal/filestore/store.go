// Package filestore defines the object storage interface used to archive
// query results.
//
// Providers (MinIO today) implement Store. Callers depend only on this
// package, never on a provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	cfg.Bucket = "sqlgate"
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.PutObject(ctx, cfg.Bucket, "default/3f0c.json", body, filestore.ContentTypeJSON)
package filestore

import (
	"context"
	"time"
)

// ContentTypeJSON is the content type of archived recordsets.
const ContentTypeJSON = "application/json"

// Store is the interface all storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// PutObject writes data under key inside bucket, replacing any
	// existing object.
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) (*ObjectInfo, error)

	// PresignGetURL returns a time-limited URL that allows anyone to download
	// the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Bucket and Key locate the object.
	Bucket string
	Key    string

	// Size is the byte size of the object.
	Size int64

	// ETag is the object's entity tag, as returned by the backend.
	ETag string

	LastModified time.Time
}
