package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/cmd/api-gateway/middleware"
	"github.com/lgulliver/stockpile/internal/auth"
	"github.com/lgulliver/stockpile/internal/storage"
	"github.com/lgulliver/stockpile/internal/upload"
	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/types"
	"github.com/lgulliver/stockpile/pkg/utils"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Upload: config.UploadConfig{
			SessionStore:     "memory",
			CollisionRetries: 5,
			SuffixLength:     8,
			CheckParallelism: 4,
			MaxChunkSize:     1 << 20,
			ProtocolVersion:  "1.0.0",
			PublicBaseURL:    "http://stockpile.test",
		},
	}

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	svc := upload.NewService(blobs, upload.NewMemorySessionStore(), &cfg.Upload, upload.NewMetrics(registry))

	checker, err := utils.NewProtocolChecker("1.0.0", "^1.0.0")
	require.NoError(t, err)

	return setupRouter(cfg, svc, auth.NewService(&cfg.Auth), checker, registry)
}

func TestSetupRouter_Health(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"protocol_version":"1.0.0"`)
}

func TestSetupRouter_Metrics(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockpile_upload_sessions_started_total")
}

func TestSetupRouter_Swagger(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"host": "stockpile.test"`)
}

func TestSetupRouter_InitWithoutAuth(t *testing.T) {
	router := testRouter(t)

	body, _ := json.Marshal(types.InitUploadRequest{Filename: "a.txt", Filesize: 5, Filetype: "text/plain"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/init", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0.0", w.Header().Get(middleware.ProtocolHeader))

	var resp types.InitUploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.UploadID, 36)
}

func TestSetupRouter_ProtocolMismatch(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/init", nil)
	req.Header.Set(middleware.ProtocolHeader, "2.0.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/upload/init", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.ProtocolHeader)
}
