package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/cmd/api-gateway/routes"
	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/internal/upload"
	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/utils"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := upload.NewService(blobs, upload.NewMemorySessionStore(), &config.UploadConfig{
		CollisionRetries: 5,
		SuffixLength:     8,
		CheckParallelism: 2,
		MaxChunkSize:     1 << 20,
	}, nil)

	router := gin.New()
	routes.UploadRoutes(router.Group("/api/v1"), svc, 1<<20)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestPushCommand(t *testing.T) {
	server := startServer(t)

	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0644))

	out, err := run(t, "push", path, "--server", server, "--chunk-size", "16", "-p", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "filename: report.txt")
	assert.Contains(t, out, "size:     100 B")
}

func TestStatusCommand_Unknown(t *testing.T) {
	server := startServer(t)

	_, err := run(t, "status", "0b6b4a8e-7a63-4c77-9f0e-3c1f6e1c2a11", "--server", server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestAbortCommand(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := run(t, "abort", "u1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, method)
	assert.Contains(t, out, "aborted u1")
}

func TestKeygenCommand(t *testing.T) {
	out, err := run(t, "keygen", "--cost", "4")
	require.NoError(t, err)

	var key, hash string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "api key: "):
			key = strings.TrimPrefix(line, "api key: ")
		case strings.HasPrefix(line, "hash:    "):
			hash = strings.TrimPrefix(line, "hash:    ")
		}
	}
	require.NotEmpty(t, key)
	assert.True(t, utils.CheckPassword(key, hash))

	_, err = run(t, "keygen", "--cost", "99")
	assert.Error(t, err)
}
