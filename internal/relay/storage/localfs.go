// Package storage provides file storage backend implementations.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/uprelay/uprelay/internal/common/errors"
)

// tempDirSuffix names the sibling directory holding in-flight uploads.
// It sits next to the root, not inside it, so the public mount and
// listings never see partial writes.
const tempDirSuffix = ".tmp"

// LocalFSBackend implements Backend using the local file system. Storage
// keys map directly to paths below the root directory; the public mount
// serves the same tree.
type LocalFSBackend struct {
	root     string
	tempPath string
}

var _ Backend = (*LocalFSBackend)(nil)

// NewLocalFSBackend creates a new LocalFSBackend rooted at root.
func NewLocalFSBackend(root string) (*LocalFSBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	// Sibling of the root so renames stay on one filesystem.
	tempPath := filepath.Clean(root) + tempDirSuffix
	if err := os.MkdirAll(tempPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &LocalFSBackend{
		root:     root,
		tempPath: tempPath,
	}, nil
}

// Put stores a file. An existing key fails with ErrKeyConflict.
func (b *LocalFSBackend) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	filePath, err := b.keyToPath(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filePath); err == nil {
		return errors.E("LocalFSBackend.Put", errors.ErrKeyConflict, nil, key)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat target: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temp file first
	tempFile, err := os.CreateTemp(b.tempPath, "upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up temp file on failure

	written, err := io.Copy(tempFile, reader)
	if err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	tempFile.Close()

	// Verify size if provided
	if size > 0 && written != size {
		return fmt.Errorf("size mismatch: expected %d, got %d", size, written)
	}

	// Move temp file to final location
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	return nil
}

// List returns one page of entries directly under prefix. The continuation
// token is the name of the last entry of the previous page; entries are
// returned in lexicographic order. A missing prefix directory yields an
// empty page.
func (b *LocalFSBackend) List(ctx context.Context, prefix, token string, limit int) (*Page, error) {
	dirPath, err := b.keyToPath(prefix)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Page{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	byName := make(map[string]os.DirEntry, len(dirEntries))
	for _, de := range dirEntries {
		names = append(names, de.Name())
		byName[de.Name()] = de
	}
	sort.Strings(names)

	page := &Page{}
	for _, name := range names {
		if token != "" && name <= token {
			continue
		}
		if limit > 0 && len(page.Entries) == limit {
			page.NextToken = page.Entries[len(page.Entries)-1].Name
			break
		}

		de := byName[name]
		entry := Entry{Name: name, IsDir: de.IsDir()}
		if !de.IsDir() {
			info, err := de.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat entry: %w", err)
			}
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		page.Entries = append(page.Entries, entry)
	}

	return page, nil
}

// PublicURL returns the path of the key under the static uploads mount.
func (b *LocalFSBackend) PublicURL(key string) string {
	return "/files/" + key
}

// SignedURL is not available on the local backend; the static mount
// already serves raw bytes.
func (b *LocalFSBackend) SignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	return "", errors.E("LocalFSBackend.SignedURL", errors.ErrNotSupported, nil)
}

// Close closes the backend.
func (b *LocalFSBackend) Close() error {
	return nil // Nothing to close for local filesystem
}

// keyToPath converts a storage key to a file path, refusing traversal
// outside the root.
func (b *LocalFSBackend) keyToPath(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if strings.Contains(cleaned, "..") {
		return "", errors.E("LocalFSBackend.keyToPath", errors.ErrMissingParameter, nil, "invalid key")
	}
	return filepath.Join(b.root, filepath.FromSlash(cleaned)), nil
}
