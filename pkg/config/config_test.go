package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Upload.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, 5, cfg.Upload.CollisionRetries)
	assert.Equal(t, 8, cfg.Upload.SuffixLength)
	assert.Equal(t, "http://localhost:8080", cfg.Upload.PublicBaseURL)
	assert.False(t, cfg.Auth.AuthEnabled())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("STORAGE_ENDPOINT", "minio:9000")
	t.Setenv("UPLOAD_SESSION_STORE", "redis")
	t.Setenv("UPLOAD_SESSION_TTL", "30m")
	t.Setenv("UPLOAD_PUBLIC_BASE_URL", "https://files.example.com/")
	t.Setenv("AUTH_API_KEY_HASHES", "hash-one,hash-two")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "redis", cfg.Upload.SessionStore)
	assert.Equal(t, 30*time.Minute, cfg.Upload.SessionTTL)
	assert.Equal(t, "https://files.example.com", cfg.Upload.PublicBaseURL)
	assert.Equal(t, []string{"hash-one", "hash-two"}, cfg.Auth.APIKeyHashes)
	assert.True(t, cfg.Auth.AuthEnabled())
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		value       string
		expectedErr string
	}{
		{"unknown storage", "STORAGE_TYPE", "gcs", "unsupported storage type"},
		{"unknown session store", "UPLOAD_SESSION_STORE", "etcd", "unsupported session store"},
		{"short suffix", "UPLOAD_SUFFIX_LENGTH", "4", "UPLOAD_SUFFIX_LENGTH"},
		{"no collision retries", "UPLOAD_COLLISION_RETRIES", "0", "UPLOAD_COLLISION_RETRIES"},
		{"malformed duration", "UPLOAD_SESSION_TTL", "soon", "failed to load configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadFromEnv()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", db.DatabaseURL())

	redis := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", redis.RedisAddr())
}
