package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lgulliver/stockpile/pkg/types"
	"github.com/lgulliver/stockpile/pkg/utils"
)

const (
	// DefaultChunkSize keeps chunks well under the server's default limit
	DefaultChunkSize = 8 << 20
	// DefaultParallelism is the number of chunks in flight at once
	DefaultParallelism = 4
)

// UploadOptions tunes Upload
type UploadOptions struct {
	// Filename overrides the name sent to the server; defaults to the file's base name
	Filename string
	// ContentType defaults to a guess from the extension
	ContentType string
	ChunkSize   int64
	Parallelism int
	// FinalizeAttempts bounds how often a finalize that reports a missing
	// chunk is repaired and retried
	FinalizeAttempts int
	// Progress is called after each chunk is accepted
	Progress func(done, total int)
}

func (o *UploadOptions) defaults(path string) {
	if o.Filename == "" {
		o.Filename = filepath.Base(path)
	}
	if o.ContentType == "" {
		o.ContentType = mime.TypeByExtension(filepath.Ext(o.Filename))
		if o.ContentType == "" {
			o.ContentType = "application/octet-stream"
		}
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.FinalizeAttempts <= 0 {
		o.FinalizeAttempts = 3
	}
}

// Upload sends the file at path through a full session: init, parallel
// chunk uploads, then finalize. A finalize that names a missing chunk causes
// that chunk to be sent again before retrying. The server's checksum is
// compared with the local file before Upload reports success.
func (c *Client) Upload(ctx context.Context, path string, opts UploadOptions) (*types.FinalizeUploadResponse, error) {
	opts.defaults(path)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	total := int((info.Size() + opts.ChunkSize - 1) / opts.ChunkSize)

	id, err := c.Init(ctx, opts.Filename, info.Size(), opts.ContentType)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	log.Info().
		Str("upload_id", id).
		Str("filename", opts.Filename).
		Int64("size", info.Size()).
		Int("chunks", total).
		Msg("upload started")

	send := func(ctx context.Context, index int) error {
		chunk, err := readChunk(file, index, opts.ChunkSize, info.Size())
		if err != nil {
			return err
		}
		if err := c.PutChunk(ctx, id, index, total, opts.Filename, chunk); err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}
		return nil
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i := 0; i < total; i++ {
		index := i
		g.Go(func() error {
			if err := send(gctx, index); err != nil {
				return err
			}
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := c.finalize(ctx, id, total, opts, send)
	if err != nil {
		return nil, err
	}

	sum, err := utils.ComputeSHA256FromReader(io.NewSectionReader(file, 0, info.Size()))
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", path, err)
	}
	if result.SHA256 != sum {
		return nil, fmt.Errorf("checksum mismatch for %s: server has %q, local file %q", result.Filename, result.SHA256, sum)
	}
	return result, nil
}

func (c *Client) finalize(ctx context.Context, id string, total int, opts UploadOptions, send func(context.Context, int) error) (*types.FinalizeUploadResponse, error) {
	for attempt := 1; ; attempt++ {
		result, err := c.Finalize(ctx, id, opts.Filename, total)
		if err == nil {
			return result, nil
		}

		// A finalize that completed with its response lost leaves the session
		// completed, and the retried request then finds nothing to finalize
		if IsNotFound(err) {
			if result, ok := c.completed(ctx, id); ok {
				return result, nil
			}
		}

		missing, ok := MissingChunk(err)
		if !ok || attempt >= opts.FinalizeAttempts {
			return nil, fmt.Errorf("finalize: %w", err)
		}

		log.Warn().Str("upload_id", id).Int("index", missing).Msg("server is missing a chunk, resending")
		if err := send(ctx, missing); err != nil {
			return nil, err
		}
	}
}

// completed returns the artifact of a session the server reports as completed
func (c *Client) completed(ctx context.Context, id string) (*types.FinalizeUploadResponse, bool) {
	status, err := c.Status(ctx, id)
	if err != nil || status.Status != "completed" {
		return nil, false
	}

	log.Info().Str("upload_id", id).Str("path", status.Path).Msg("finalize already completed on the server")
	return &types.FinalizeUploadResponse{
		Status:   status.Status,
		Filename: status.Filename,
		Path:     status.Path,
		URL:      status.URL,
		Size:     status.Size,
		SHA256:   status.SHA256,
	}, true
}

// readChunk reads chunk index of a file of the given size. ReadAt is safe
// for concurrent use on *os.File.
func readChunk(r io.ReaderAt, index int, chunkSize, size int64) ([]byte, error) {
	offset := int64(index) * chunkSize
	if offset >= size {
		return nil, fmt.Errorf("chunk %d is past the end of the file", index)
	}

	length := chunkSize
	if offset+length > size {
		length = size - offset
	}

	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}
	return buf, nil
}
