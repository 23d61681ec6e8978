// Package storage provides file storage backend implementations.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/uprelay/uprelay/internal/common/config"
	"github.com/uprelay/uprelay/internal/common/errors"
)

// Entry is one raw listing entry returned by a backend. Directory entries
// carry the name only and must be walked by the caller.
type Entry struct {
	Name        string
	IsDir       bool
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Page is one batch of listing entries. An empty NextToken means the
// listing under this prefix is exhausted.
type Page struct {
	Entries   []Entry
	NextToken string
}

// Backend defines the capability interface for file storage backends.
type Backend interface {
	// Put stores a file. An existing key is never silently overwritten;
	// Put fails with ErrKeyConflict instead.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// List returns one page of entries directly under prefix. Pass the
	// NextToken of the previous page to continue, or "" to start.
	List(ctx context.Context, prefix, token string, limit int) (*Page, error)

	// PublicURL returns the direct access URL for a stored key.
	PublicURL(key string) string

	// SignedURL returns a time-limited URL that forces a client download
	// under downloadName. Backends without signing support return
	// ErrNotSupported; a missing object returns ErrNotFound.
	SignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)

	// Close closes the backend.
	Close() error
}

// NewBackend creates a storage backend from configuration.
func NewBackend(ctx context.Context, cfg *config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Backend(ctx, &cfg.S3)
	case "local", "":
		return NewLocalFSBackend(cfg.Local.Root)
	default:
		return nil, errors.E("storage.NewBackend", errors.ErrBackendUnavailable, nil,
			"unknown backend: "+cfg.Backend)
	}
}
