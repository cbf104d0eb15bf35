package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/types"
)

var errChunkTooLarge = errors.New("chunk exceeds the maximum size")

// Service coordinates the upload protocol. It owns the session state
// machine and the per-session locks that order chunk writes against
// finalize.
type Service struct {
	storage   storage.BlobStorage
	sessions  SessionStore
	chunks    *ChunkRegistry
	assembler *Assembler
	locks     *keyedLocks
	metrics   *Metrics

	maxChunkSize      int64
	heartbeatInterval time.Duration
}

// NewService wires a service from configuration
func NewService(store storage.BlobStorage, sessions SessionStore, cfg *config.UploadConfig, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	chunks := NewChunkRegistry(store)
	return &Service{
		storage:  store,
		sessions: sessions,
		chunks:   chunks,
		assembler: NewAssembler(store, chunks, AssemblerOptions{
			StorageTimeout:   cfg.StorageTimeout,
			CollisionRetries: cfg.CollisionRetries,
			SuffixLength:     cfg.SuffixLength,
			CheckParallelism: cfg.CheckParallelism,
			PublicBaseURL:    cfg.PublicBaseURL,
		}),
		locks:             newKeyedLocks(),
		metrics:           metrics,
		maxChunkSize:      cfg.MaxChunkSize,
		heartbeatInterval: cfg.SessionTTL / 2,
	}
}

// Init validates the declared file and opens a session
func (s *Service) Init(ctx context.Context, filename string, size int64, contentType string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", invalid("filename", "is required")
	}
	if size <= 0 {
		return "", invalid("filesize", "must be positive")
	}
	if strings.TrimSpace(contentType) == "" {
		return "", invalid("filetype", "is required")
	}

	now := time.Now().UTC()
	session := &types.UploadSession{
		ID:          uuid.New().String(),
		Filename:    filename,
		Size:        size,
		ContentType: contentType,
		State:       types.UploadStateOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("failed to create upload session")
		return "", storageErr("create_session", session.ID, err)
	}

	s.metrics.SessionsStarted.Inc()
	log.Info().
		Str("upload_id", session.ID).
		Str("filename", filename).
		Int64("size", size).
		Str("content_type", contentType).
		Msg("upload session started")

	return session.ID, nil
}

// PutChunk stores chunk index of an open session, replacing earlier bytes.
// The bytes go to a fresh key that only counts once the session store has
// recorded it while the session was still open; a write that loses the race
// against finalize is discarded and never read.
func (s *Service) PutChunk(ctx context.Context, id string, index, totalChunks int, filename string, content io.Reader) error {
	if index < 0 {
		return invalid("index", "must not be negative")
	}
	if totalChunks < 1 {
		return invalid("total_chunks", "must be at least 1")
	}
	if strings.TrimSpace(filename) == "" {
		return invalid("filename", "is required")
	}
	if content == nil {
		return invalid("chunk", "is required")
	}
	if !validID(id) {
		return ErrUnknownUpload
	}

	// Shared lock: chunk writes may overlap each other but not the open->finalizing transition
	unlock := s.locks.RLock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return stateError("get_session", id, err)
	}
	switch session.State {
	case types.UploadStateCompleted:
		return ErrUnknownUpload
	case types.UploadStateFinalizing:
		return ErrUploadBusy
	}

	if s.maxChunkSize > 0 {
		content = &limitedReader{r: content, remaining: s.maxChunkSize}
	}

	nonce, n, err := s.chunks.Put(ctx, id, index, content)
	if err != nil {
		if errors.Is(err, errChunkTooLarge) {
			return invalid("chunk", fmt.Sprintf("exceeds %d bytes", s.maxChunkSize))
		}
		log.Error().Err(err).Str("upload_id", id).Int("index", index).Msg("failed to store chunk")
		return storageErr("store", ChunkArea(id), err)
	}

	previous, err := s.sessions.RecordChunk(ctx, id, index, nonce, totalChunks)
	if err != nil {
		s.discardChunk(id, index, nonce)
		return stateError("record_chunk", id, err)
	}
	if previous != "" && previous != nonce {
		s.discardChunk(id, index, previous)
	}

	s.metrics.ChunksReceived.Inc()
	s.metrics.ChunkBytes.Add(float64(n))
	log.Debug().
		Str("upload_id", id).
		Int("index", index).
		Int("total_chunks", totalChunks).
		Int64("bytes", n).
		Msg("chunk stored")

	return nil
}

// Finalize assembles chunks [0,totalChunks) into the final artifact. An
// assembly failure returns the session to open so the call can be retried.
func (s *Service) Finalize(ctx context.Context, id, filename string, totalChunks int) (*types.Artifact, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, invalid("filename", "is required")
	}
	if totalChunks < 1 {
		return nil, invalid("total_chunks", "must be at least 1")
	}
	if !validID(id) {
		return nil, ErrUnknownUpload
	}

	start := time.Now()

	unlock := s.locks.Lock(id)
	session, err := s.sessions.Transition(ctx, id, types.UploadStateOpen, types.UploadStateFinalizing)
	unlock()
	if err != nil {
		err = stateError("begin_finalize", id, err)
		if errors.Is(err, ErrUploadBusy) {
			s.metrics.Finalizations.WithLabelValues(resultBusy).Inc()
		}
		return nil, err
	}

	if session.DeclaredTotalChunks != 0 && session.DeclaredTotalChunks != totalChunks {
		log.Warn().
			Str("upload_id", id).
			Int("declared_total_chunks", session.DeclaredTotalChunks).
			Int("total_chunks", totalChunks).
			Msg("finalize total differs from the total sent with chunks")
	}

	stopHeartbeat := s.heartbeat(id)
	artifact, err := s.assembler.Assemble(ctx, id, session.Chunks, filename, totalChunks)
	stopHeartbeat()
	if err != nil {
		s.reopen(id)

		var missing *MissingChunkError
		if errors.As(err, &missing) {
			s.metrics.Finalizations.WithLabelValues(resultMissingChunk).Inc()
			log.Info().Str("upload_id", id).Int("missing_index", missing.Index).Msg("finalize rejected, chunk missing")
		} else {
			s.metrics.Finalizations.WithLabelValues(resultError).Inc()
			log.Error().Err(err).Str("upload_id", id).Msg("failed to assemble upload")
		}
		return nil, err
	}

	if err := s.sessions.Complete(ctx, id, artifact); err != nil {
		// The artifact is committed; a retry would duplicate it, so the session
		// stays finalizing and the sweeper reclaims it
		s.metrics.Finalizations.WithLabelValues(resultError).Inc()
		log.Error().Err(err).Str("upload_id", id).Str("path", artifact.Key).Msg("failed to record completed upload")
		return nil, storageErr("complete_session", id, err)
	}

	if err := s.chunks.DeleteArea(ctx, id); err != nil {
		log.Warn().Err(err).Str("upload_id", id).Msg("failed to delete chunk area, sweeper will retry")
	}

	s.metrics.Finalizations.WithLabelValues(resultSuccess).Inc()
	s.metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Str("upload_id", id).
		Str("path", artifact.Key).
		Int64("size", artifact.Size).
		Str("sha256", artifact.SHA256).
		Dur("duration", time.Since(start)).
		Msg("upload finalized")

	return artifact, nil
}

// heartbeat keeps a finalizing session's activity time fresh so the sweeper
// only reclaims finalizes that stopped running. The returned func stops it
// and waits for the last refresh.
func (s *Service) heartbeat(id string) func() {
	if s.heartbeatInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.sessions.Touch(ctx, id, types.UploadStateFinalizing); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("upload_id", id).Msg("failed to refresh finalizing session")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// discardChunk removes a chunk write that is not, or no longer, recorded
func (s *Service) discardChunk(id string, index int, nonce string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.chunks.Delete(ctx, id, index, nonce); err != nil {
		log.Warn().Err(err).Str("key", ChunkKey(id, index, nonce)).Msg("failed to remove unrecorded chunk")
	}
}

// reopen returns a session to open after a failed finalize
func (s *Service) reopen(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.sessions.Transition(ctx, id, types.UploadStateFinalizing, types.UploadStateOpen); err != nil {
		log.Error().Err(err).Str("upload_id", id).Msg("failed to reopen session after finalize failure")
	}
}

// Status reports how many chunk indices a session has recorded, or the
// artifact once it completed
func (s *Service) Status(ctx context.Context, id string) (*types.UploadStatus, error) {
	if !validID(id) {
		return nil, ErrUnknownUpload
	}

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, stateError("get_session", id, err)
	}

	status := &types.UploadStatus{UploadID: id, State: session.State}
	if session.State == types.UploadStateCompleted {
		status.Artifact = &types.Artifact{
			Key:      session.FinalKey,
			Filename: session.FinalFilename,
			URL:      s.assembler.URL(session.FinalFilename),
			Size:     session.FinalSize,
			SHA256:   session.SHA256,
		}
		return status, nil
	}

	status.ChunksReceived = len(session.Chunks)
	return status, nil
}

// Abort discards an open session and its chunks
func (s *Service) Abort(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrUnknownUpload
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return stateError("get_session", id, err)
	}
	switch session.State {
	case types.UploadStateCompleted:
		return ErrUnknownUpload
	case types.UploadStateFinalizing:
		return ErrUploadBusy
	}

	if err := s.discardSession(ctx, id); err != nil {
		return err
	}

	log.Info().Str("upload_id", id).Msg("upload aborted")
	return nil
}

// discardSession removes chunk area, staging key and record, in that order,
// so a crash part way leaves a record the sweeper can find
func (s *Service) discardSession(ctx context.Context, id string) error {
	if err := s.chunks.DeleteArea(ctx, id); err != nil {
		return storageErr("delete_prefix", ChunkArea(id), err)
	}
	if err := s.storage.Delete(ctx, StagingKey(id)); err != nil {
		return storageErr("delete", StagingKey(id), err)
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return storageErr("delete_session", id, err)
	}
	return nil
}

// OpenArtifact streams a finished artifact by resolved filename
func (s *Service) OpenArtifact(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if name == "" || name != pathBase(name) || strings.HasPrefix(name, ".") {
		return nil, 0, storage.ErrNotFound
	}

	key := ArtifactKey(name)
	size, err := s.storage.GetSize(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	rc, err := s.storage.Retrieve(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

func pathBase(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// limitedReader fails once more than remaining bytes are read
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errChunkTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errChunkTooLarge
	}
	return n, err
}
