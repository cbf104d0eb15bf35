package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/pkg/config"
)

func testConfig() *config.UploadConfig {
	return &config.UploadConfig{
		SessionTTL:       time.Hour,
		StorageTimeout:   5 * time.Second,
		CollisionRetries: 5,
		SuffixLength:     8,
		PublicBaseURL:    "http://files.test",
		MaxChunkSize:     1 << 20,
		CheckParallelism: 4,
	}
}

type testEnv struct {
	service  *Service
	storage  *hookStorage
	sessions SessionStore
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	hooked := &hookStorage{BlobStorage: local}
	sessions := NewMemorySessionStore()
	return &testEnv{
		service:  NewService(hooked, sessions, testConfig(), NewMetrics(nil)),
		storage:  hooked,
		sessions: sessions,
	}
}

// peer returns a second service over the same storage and session store,
// standing in for another instance of the gateway
func (e *testEnv) peer() *Service {
	return NewService(e.storage, e.sessions, testConfig(), NewMetrics(nil))
}

// chunkKeys lists the stored chunk keys of a session
func (e *testEnv) chunkKeys(t *testing.T, id string) []string {
	t.Helper()
	keys, err := e.storage.List(context.Background(), ChunkArea(id))
	require.NoError(t, err)
	return keys
}

func (e *testEnv) init(t *testing.T, filename string) string {
	t.Helper()
	id, err := e.service.Init(context.Background(), filename, 30, "text/plain")
	require.NoError(t, err)
	return id
}

func (e *testEnv) put(t *testing.T, id string, index, total int, content string) {
	t.Helper()
	require.NoError(t, e.service.PutChunk(context.Background(), id, index, total, "file", strings.NewReader(content)))
}

func (e *testEnv) read(t *testing.T, key string) string {
	t.Helper()
	rc, err := e.storage.Retrieve(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// hookStorage lets tests intercept storage calls
type hookStorage struct {
	storage.BlobStorage

	mu       sync.Mutex
	onStore  func(path string) error
	onAppend func(path string) error
	onMove   func(src, dst string) error
	onExists func(path string) (bool, error, bool)
}

func (h *hookStorage) setStore(fn func(path string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStore = fn
}

func (h *hookStorage) Store(ctx context.Context, path string, content io.Reader, contentType string) error {
	h.mu.Lock()
	fn := h.onStore
	h.mu.Unlock()
	if fn != nil {
		if err := fn(path); err != nil {
			return err
		}
	}
	return h.BlobStorage.Store(ctx, path, content, contentType)
}

func (h *hookStorage) setAppend(fn func(path string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAppend = fn
}

func (h *hookStorage) setMove(fn func(src, dst string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMove = fn
}

func (h *hookStorage) Append(ctx context.Context, path string, content io.Reader) error {
	h.mu.Lock()
	fn := h.onAppend
	h.mu.Unlock()
	if fn != nil {
		if err := fn(path); err != nil {
			return err
		}
	}
	return h.BlobStorage.Append(ctx, path, content)
}

func (h *hookStorage) Move(ctx context.Context, src, dst string) error {
	h.mu.Lock()
	fn := h.onMove
	h.mu.Unlock()
	if fn != nil {
		if err := fn(src, dst); err != nil {
			return err
		}
	}
	return h.BlobStorage.Move(ctx, src, dst)
}

func (h *hookStorage) Exists(ctx context.Context, path string) (bool, error) {
	h.mu.Lock()
	fn := h.onExists
	h.mu.Unlock()
	if fn != nil {
		if ok, err, handled := fn(path); handled {
			return ok, err
		}
	}
	return h.BlobStorage.Exists(ctx, path)
}

var errInjected = errors.New("injected storage failure")
