package command

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/sqlgate/internal/filestore"
)

// ArchiveRef locates an archived query result.
type ArchiveRef struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

type archiver struct {
	store  filestore.Store
	bucket string
	prefix string
	ttl    time.Duration
}

// key returns <prefix>/<session>/<uuid>.json.
func (a *archiver) key(session string) string {
	return path.Join(a.prefix, session, uuid.NewString()+".json")
}

// save uploads body and presigns a download URL. A presign failure still
// returns the stored key together with the error.
func (a *archiver) save(ctx context.Context, session string, body []byte) (*ArchiveRef, error) {
	key := a.key(session)
	if _, err := a.store.PutObject(ctx, a.bucket, key, body, filestore.ContentTypeJSON); err != nil {
		return nil, err
	}

	ref := &ArchiveRef{Key: key}
	if a.ttl <= 0 {
		return ref, nil
	}
	u, err := a.store.PresignGetURL(ctx, a.bucket, key, a.ttl)
	if err != nil {
		return ref, err
	}
	ref.URL = u
	return ref, nil
}
