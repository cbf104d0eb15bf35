package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/pkg/types"
	"github.com/lgulliver/stockpile/pkg/utils"
)

var errNamesExhausted = errors.New("no free filename within the retry budget")

// AssemblerOptions tunes assembly
type AssemblerOptions struct {
	StorageTimeout   time.Duration
	CollisionRetries int
	SuffixLength     int
	CheckParallelism int
	PublicBaseURL    string
}

// Assembler turns a complete chunk area into one artifact
type Assembler struct {
	storage storage.BlobStorage
	chunks  *ChunkRegistry
	opts    AssemblerOptions

	// nameMu serializes name resolution with the commit that claims the name
	nameMu       sync.Mutex
	randomSuffix func(n int) (string, error)
}

// NewAssembler creates an assembler
func NewAssembler(store storage.BlobStorage, chunks *ChunkRegistry, opts AssemblerOptions) *Assembler {
	if opts.CheckParallelism < 1 {
		opts.CheckParallelism = 1
	}
	if opts.CollisionRetries < 1 {
		opts.CollisionRetries = 1
	}
	if opts.SuffixLength < 8 {
		opts.SuffixLength = 8
	}
	return &Assembler{
		storage:      store,
		chunks:       chunks,
		opts:         opts,
		randomSuffix: utils.RandomString,
	}
}

func (a *Assembler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.StorageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.opts.StorageTimeout)
}

// CheckComplete verifies chunks [0,total) are recorded and their keys exist,
// and reports the lowest missing index
func (a *Assembler) CheckComplete(ctx context.Context, id string, chunks map[int]string, total int) error {
	var lowest atomic.Int64
	lowest.Store(int64(total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.CheckParallelism)

	for i := 0; i < total; i++ {
		// Nothing above a known gap can be the lowest one
		if int64(i) > lowest.Load() {
			break
		}

		index := i
		markMissing := func() {
			for {
				cur := lowest.Load()
				if int64(index) >= cur || lowest.CompareAndSwap(cur, int64(index)) {
					return
				}
			}
		}

		nonce, recorded := chunks[index]
		if !recorded {
			markMissing()
			continue
		}

		g.Go(func() error {
			if int64(index) > lowest.Load() {
				return nil
			}

			cctx, cancel := a.withTimeout(gctx)
			defer cancel()

			ok, err := a.chunks.Has(cctx, id, index, nonce)
			if err != nil {
				return storageErr("exists", ChunkKey(id, index, nonce), err)
			}
			if !ok {
				markMissing()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if missing := lowest.Load(); missing < int64(total) {
		return &MissingChunkError{Index: int(missing)}
	}
	return nil
}

// Assemble checks completeness, concatenates the recorded chunks in index
// order under the staging key and moves the result to a free artifact key.
// On failure the staging key is removed and no artifact exists.
func (a *Assembler) Assemble(ctx context.Context, id string, chunks map[int]string, filename string, total int) (*types.Artifact, error) {
	if err := a.CheckComplete(ctx, id, chunks, total); err != nil {
		return nil, err
	}

	staging := StagingKey(id)
	size, sum, err := a.stage(ctx, id, chunks, total)
	if err != nil {
		a.discard(staging)
		return nil, err
	}

	name, err := a.commit(ctx, staging, filename)
	if err != nil {
		a.discard(staging)
		return nil, err
	}

	return &types.Artifact{
		Key:      ArtifactKey(name),
		Filename: name,
		URL:      a.URL(name),
		Size:     size,
		SHA256:   sum,
	}, nil
}

// URL returns the public locator of an artifact
func (a *Assembler) URL(name string) string {
	return a.opts.PublicBaseURL + "/files/" + url.PathEscape(name)
}

func (a *Assembler) stage(ctx context.Context, id string, chunks map[int]string, total int) (int64, string, error) {
	staging := StagingKey(id)

	sctx, cancel := a.withTimeout(ctx)
	err := a.storage.Store(sctx, staging, bytes.NewReader(nil), "application/octet-stream")
	cancel()
	if err != nil {
		return 0, "", storageErr("store", staging, err)
	}

	hasher := sha256.New()
	var size int64
	for i := 0; i < total; i++ {
		n, err := a.appendChunk(ctx, id, i, chunks[i], hasher)
		if err != nil {
			return 0, "", err
		}
		size += n
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (a *Assembler) appendChunk(ctx context.Context, id string, index int, nonce string, hasher hash.Hash) (int64, error) {
	cctx, cancel := a.withTimeout(ctx)
	defer cancel()

	key := ChunkKey(id, index, nonce)
	rc, err := a.chunks.Open(cctx, id, index, nonce)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, &MissingChunkError{Index: index}
		}
		return 0, storageErr("retrieve", key, err)
	}
	defer rc.Close()

	counter := &countingReader{r: io.TeeReader(rc, hasher)}
	if err := a.storage.Append(cctx, StagingKey(id), counter); err != nil {
		return 0, storageErr("append", StagingKey(id), err)
	}
	return counter.n, nil
}

// commit claims a free name for the staged artifact. Resolution and the
// no-clobber move run under nameMu; ErrExists from the move means another
// writer outside this process took the name, so resolution starts over.
func (a *Assembler) commit(ctx context.Context, staging, filename string) (string, error) {
	a.nameMu.Lock()
	defer a.nameMu.Unlock()

	for attempt := 0; attempt <= a.opts.CollisionRetries; attempt++ {
		name, err := a.ResolveName(ctx, filename)
		if err != nil {
			return "", err
		}

		err = a.storage.Move(ctx, staging, ArtifactKey(name))
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return "", storageErr("move", ArtifactKey(name), err)
		}

		log.Warn().Str("filename", name).Int("attempt", attempt+1).Msg("artifact key taken during commit, resolving again")
	}

	return "", &StorageError{Op: "commit", Key: staging, Err: errNamesExhausted}
}

// ResolveName derives the safe filename and, while it is taken, retries
// with a random suffix until one is free or the retry budget runs out
func (a *Assembler) ResolveName(ctx context.Context, filename string) (string, error) {
	base := utils.SafeFilename(filename, "")
	candidate := base

	for attempt := 0; ; attempt++ {
		exists, err := a.storage.Exists(ctx, ArtifactKey(candidate))
		if err != nil {
			return "", storageErr("exists", ArtifactKey(candidate), err)
		}
		if !exists {
			return candidate, nil
		}
		if attempt >= a.opts.CollisionRetries {
			return "", &StorageError{Op: "resolve_name", Key: ArtifactKey(base), Err: errNamesExhausted}
		}

		suffix, err := a.randomSuffix(a.opts.SuffixLength)
		if err != nil {
			return "", storageErr("resolve_name", ArtifactKey(base), err)
		}
		candidate = utils.SafeFilename(filename, suffix)
	}
}

// discard removes a staging key; it runs on a fresh context because the
// caller's may already be cancelled
func (a *Assembler) discard(staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.storage.Delete(ctx, staging); err != nil {
		log.Warn().Err(err).Str("key", staging).Msg("failed to remove staging key")
	}
}
