// Package blob stores attachments, result archives and poisoned messages as
// named objects in a flat key space.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"notekeeper-zipjobs/internal/config"
)

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is a keyed object store. Get returns an error wrapping
// common.ErrNotFound for missing keys; Delete reports whether the key existed.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// New builds the backend selected by cfg.BlobBackend.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		return NewS3Store(ctx, cfg)
	case config.BlobBackendLocal:
		return NewLocalStore(cfg.BlobLocalDir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
