// Package blob provides opaque byte storage for uploaded PDFs and rendered
// page images. Keys are slash-separated paths scoped per book so a whole
// book's blobs can be removed with one prefix delete.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the storage boundary the extraction pipeline writes through.
// The local implementation keeps bytes on disk under the home directory;
// an object-store backend can be swapped in without touching callers.
type Store interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// BookPDFKey returns the storage key for a book's original PDF.
func BookPDFKey(bookID string) string {
	return fmt.Sprintf("books/%s/source.pdf", bookID)
}

// PageImageKey returns the storage key for a rendered page image.
// Page numbers are 1-indexed.
func PageImageKey(bookID string, pageNum int) string {
	return fmt.Sprintf("books/%s/pages/page_%04d.png", bookID, pageNum)
}

// BookPrefix returns the key prefix covering all of a book's blobs.
func BookPrefix(bookID string) string {
	return fmt.Sprintf("books/%s/", bookID)
}

// Local is a filesystem-backed Store rooted at a single directory.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates a local blob store rooted at dir.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob root directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &Local{root: dir}, nil
}

// Put writes data under key, creating parent directories as needed.
func (l *Local) Put(_ context.Context, key string, data []byte) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return nil
}

// Get reads the object stored under key.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a single object.
func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix.
func (l *Local) DeletePrefix(_ context.Context, prefix string) error {
	path, err := l.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete blob prefix %s: %w", prefix, err)
	}
	return nil
}

// resolve maps a key to a filesystem path, rejecting traversal outside root.
func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(l.root, clean), nil
}
