package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/cmd/api-gateway/routes"
	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/internal/upload"
	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/types"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	svc := upload.NewService(blobs, upload.NewMemorySessionStore(), &config.UploadConfig{
		CollisionRetries: 5,
		SuffixLength:     8,
		CheckParallelism: 4,
		MaxChunkSize:     1 << 20,
	}, nil)

	router := gin.New()
	routes.FileRoutes(router, svc)
	routes.UploadRoutes(router.Group("/api/v1"), svc, 1<<20)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUpload_EndToEnd(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL)

	content := strings.Repeat("stockpile chunked upload ", 40)
	path := writeFile(t, "notes.txt", content)

	var progress atomic.Int64
	result, err := c.Upload(context.Background(), path, UploadOptions{
		ChunkSize:   64,
		Parallelism: 3,
		Progress:    func(done, total int) { progress.Store(int64(done)) },
	})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, "notes.txt", result.Filename)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.SHA256)
	assert.Equal(t, int64((len(content)+63)/64), progress.Load())

	resp, err := http.Get(srv.URL + "/files/notes.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, string(body))
}

func TestUpload_EmptyFile(t *testing.T) {
	c := New("http://unused.invalid")
	_, err := c.Upload(context.Background(), writeFile(t, "empty.bin", ""), UploadOptions{})
	assert.ErrorContains(t, err, "is empty")
}

func TestClient_StatusAndAbort(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	id, err := c.Init(ctx, "a.txt", 5, "text/plain")
	require.NoError(t, err)
	require.NoError(t, c.PutChunk(ctx, id, 0, 2, "a.txt", []byte("He")))

	status, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "open", status.Status)
	assert.Equal(t, 1, status.ChunksReceived)

	_, err = c.Finalize(ctx, id, "a.txt", 2)
	index, ok := MissingChunk(err)
	require.True(t, ok)
	assert.Equal(t, 1, index)

	require.NoError(t, c.Abort(ctx, id))

	_, err = c.Status(ctx, id)
	assert.True(t, IsNotFound(err))
}

func TestClient_ValidationError(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL)

	_, err := c.Init(context.Background(), "a.txt", -1, "text/plain")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "filesize", apiErr.Field)
}

func TestUpload_ResendsMissingChunk(t *testing.T) {
	var (
		mu        sync.Mutex
		puts      = map[string]int{}
		finalizes int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/init"):
			json.NewEncoder(w).Encode(types.InitUploadResponse{UploadID: "u1", Status: "initialized"})
		case strings.Contains(r.URL.Path, "/chunk/"):
			_ = r.ParseMultipartForm(1 << 20)
			mu.Lock()
			puts[r.FormValue("index")]++
			mu.Unlock()
			json.NewEncoder(w).Encode(types.ChunkUploadResponse{Status: "chunk_uploaded"})
		case strings.Contains(r.URL.Path, "/finalize/"):
			mu.Lock()
			finalizes++
			first := finalizes == 1
			mu.Unlock()
			if first {
				missing := 1
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(types.ErrorResponse{Status: "error", Message: "Missing chunk 1", MissingIndex: &missing})
				return
			}
			json.NewEncoder(w).Encode(types.FinalizeUploadResponse{Status: "completed", Filename: "data.bin", SHA256: sha256Hex("0123456789")})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Upload(context.Background(), writeFile(t, "data.bin", "0123456789"), UploadOptions{ChunkSize: 4})
	require.NoError(t, err)
	assert.Equal(t, "data.bin", result.Filename)

	assert.Equal(t, 2, finalizes)
	assert.Equal(t, map[string]int{"0": 1, "1": 2, "2": 1}, puts)
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestUpload_RecoversLostFinalizeResponse(t *testing.T) {
	const content = "0123456789"
	var finalizes, statuses atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/init"):
			json.NewEncoder(w).Encode(types.InitUploadResponse{UploadID: "u1", Status: "initialized"})
		case strings.Contains(r.URL.Path, "/chunk/"):
			json.NewEncoder(w).Encode(types.ChunkUploadResponse{Status: "chunk_uploaded"})
		case strings.Contains(r.URL.Path, "/finalize/"):
			if finalizes.Add(1) == 1 {
				// The server completes the upload but the connection drops
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					conn.Close()
				}
				return
			}
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(types.ErrorResponse{Status: "error", Message: "Upload not found"})
		case strings.Contains(r.URL.Path, "/status/"):
			statuses.Add(1)
			json.NewEncoder(w).Encode(types.UploadStatusResponse{
				Status:   "completed",
				UploadID: "u1",
				Path:     "uploads/data.bin",
				Filename: "data.bin",
				URL:      "http://stockpile.test/files/data.bin",
				Size:     int64(len(content)),
				SHA256:   sha256Hex(content),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(time.Millisecond, 5*time.Millisecond))
	result, err := c.Upload(context.Background(), writeFile(t, "data.bin", content), UploadOptions{ChunkSize: 4})
	require.NoError(t, err)

	assert.Equal(t, int64(2), finalizes.Load())
	assert.Equal(t, int64(1), statuses.Load())
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "uploads/data.bin", result.Path)
	assert.Equal(t, "http://stockpile.test/files/data.bin", result.URL)
	assert.Equal(t, sha256Hex(content), result.SHA256)
}

func TestUpload_UnknownSessionStillFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/init"):
			json.NewEncoder(w).Encode(types.InitUploadResponse{UploadID: "u1", Status: "initialized"})
		case strings.Contains(r.URL.Path, "/chunk/"):
			json.NewEncoder(w).Encode(types.ChunkUploadResponse{Status: "chunk_uploaded"})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(types.ErrorResponse{Status: "error", Message: "Upload not found"})
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL).Upload(context.Background(), writeFile(t, "data.bin", "abc"), UploadOptions{})
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestUpload_ChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/init"):
			json.NewEncoder(w).Encode(types.InitUploadResponse{UploadID: "u1", Status: "initialized"})
		case strings.Contains(r.URL.Path, "/chunk/"):
			json.NewEncoder(w).Encode(types.ChunkUploadResponse{Status: "chunk_uploaded"})
		case strings.Contains(r.URL.Path, "/finalize/"):
			json.NewEncoder(w).Encode(types.FinalizeUploadResponse{Status: "completed", Filename: "data.bin", SHA256: sha256Hex("something else")})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL).Upload(context.Background(), writeFile(t, "data.bin", "abc"), UploadOptions{})
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(types.UploadStatusResponse{Status: "open", UploadID: "u1"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(3), WithBackoff(time.Millisecond, 5*time.Millisecond))
	status, err := c.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "open", status.Status)
	assert.Equal(t, int64(3), calls.Load())
}

func TestClient_GivesUpWithDecodedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(types.ErrorResponse{Status: "error", Message: "Storage failure"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(1), WithBackoff(time.Millisecond, time.Millisecond))
	_, err := c.Finalize(context.Background(), "u1", "a.txt", 1)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Storage failure", apiErr.Message)
}

func TestClient_SendsCredentialsAndVersion(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		mu.Unlock()
		w.Header().Set(protocolHeader, "2.0.0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, WithAPIKey("sp_key")).Abort(context.Background(), "u1"))
	mu.Lock()
	assert.Equal(t, "sp_key", headers.Get("X-API-Key"))
	assert.Equal(t, ProtocolVersion, headers.Get(protocolHeader))
	mu.Unlock()

	require.NoError(t, New(srv.URL, WithToken("jwt"), WithAPIKey("sp_key")).Abort(context.Background(), "u1"))
	mu.Lock()
	assert.Equal(t, "Bearer jwt", headers.Get("Authorization"))
	assert.Empty(t, headers.Get("X-API-Key"))
	mu.Unlock()
}

func TestReadChunk(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))

	tests := []struct {
		index int
		want  string
	}{
		{0, "0123"},
		{1, "4567"},
		{2, "89"},
	}
	for _, tt := range tests {
		got, err := readChunk(r, tt.index, 4, 10)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}

	_, err := readChunk(r, 3, 4, 10)
	assert.Error(t, err)
}
