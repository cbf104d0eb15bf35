package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/pkg/utils"
)

const (
	chunksRoot  = "chunks"
	stagingRoot = "staging"
	uploadsRoot = "uploads"

	nonceLength = 12
)

// ChunkKey returns the storage key of one write of a chunk. Every write
// gets a fresh nonce, so a write never touches bytes another write recorded.
func ChunkKey(id string, index int, nonce string) string {
	return fmt.Sprintf("%s/%s/%d.%s", chunksRoot, id, index, nonce)
}

// ChunkArea returns the prefix holding all chunks of a session
func ChunkArea(id string) string {
	return chunksRoot + "/" + id
}

// StagingKey returns the key an artifact is assembled under
func StagingKey(id string) string {
	return stagingRoot + "/" + id
}

// ArtifactKey returns the final key for a resolved filename
func ArtifactKey(name string) string {
	return uploadsRoot + "/" + name
}

// ChunkRegistry stores chunk bytes per (session, index, nonce)
type ChunkRegistry struct {
	storage storage.BlobStorage
	nonce   func(n int) (string, error)
}

// NewChunkRegistry creates a registry over storage
func NewChunkRegistry(store storage.BlobStorage) *ChunkRegistry {
	return &ChunkRegistry{storage: store, nonce: utils.RandomString}
}

// Put writes chunk index under a fresh key and returns its nonce and the
// bytes written. The chunk counts only once its nonce is recorded on the
// session.
func (r *ChunkRegistry) Put(ctx context.Context, id string, index int, content io.Reader) (string, int64, error) {
	nonce, err := r.nonce(nonceLength)
	if err != nil {
		return "", 0, err
	}

	counter := &countingReader{r: content}
	if err := r.storage.Store(ctx, ChunkKey(id, index, nonce), counter, "application/octet-stream"); err != nil {
		return "", counter.n, err
	}
	return nonce, counter.n, nil
}

// Has reports whether a recorded chunk key is present
func (r *ChunkRegistry) Has(ctx context.Context, id string, index int, nonce string) (bool, error) {
	return r.storage.Exists(ctx, ChunkKey(id, index, nonce))
}

// Open streams a recorded chunk
func (r *ChunkRegistry) Open(ctx context.Context, id string, index int, nonce string) (io.ReadCloser, error) {
	return r.storage.Retrieve(ctx, ChunkKey(id, index, nonce))
}

// Delete removes one write of a chunk
func (r *ChunkRegistry) Delete(ctx context.Context, id string, index int, nonce string) error {
	return r.storage.Delete(ctx, ChunkKey(id, index, nonce))
}

// DeleteArea removes every chunk of the session
func (r *ChunkRegistry) DeleteArea(ctx context.Context, id string) error {
	return r.storage.DeletePrefix(ctx, ChunkArea(id))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
