package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Move when the destination key is taken
	ErrExists = errors.New("blob already exists")
)

// BlobStorage defines key-addressed byte storage with directory-like prefixes.
// Single-key operations are read-after-write consistent; nothing is atomic across keys.
type BlobStorage interface {
	// Store saves content at the given path, replacing any previous value
	Store(ctx context.Context, path string, content io.Reader, contentType string) error

	// Append adds content to the end of the value at path, creating it if absent
	Append(ctx context.Context, path string, content io.Reader) error

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// DeletePrefix removes every path under prefix
	DeletePrefix(ctx context.Context, prefix string) error

	// Move renames src to dst, failing with ErrExists if dst is present
	Move(ctx context.Context, src, dst string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)

	// List returns paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
