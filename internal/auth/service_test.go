package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/utils"
)

func testAuthConfig(t *testing.T, keys ...string) *config.AuthConfig {
	t.Helper()
	cfg := &config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenIssuer:   "stockpile",
		TokenLifetime: time.Hour,
	}
	for _, key := range keys {
		hash, err := utils.HashPassword(key, 4)
		require.NoError(t, err)
		cfg.APIKeyHashes = append(cfg.APIKeyHashes, hash)
	}
	return cfg
}

func TestService_Tokens(t *testing.T) {
	service := NewService(testAuthConfig(t))
	ctx := context.Background()

	token, err := service.IssueToken("ci")
	require.NoError(t, err)

	subject, err := service.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ci", subject)

	_, err = service.ValidateToken(ctx, "not-a-jwt")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestService_TokensDisabled(t *testing.T) {
	service := NewService(&config.AuthConfig{})
	assert.False(t, service.Enabled())

	_, err := service.IssueToken("ci")
	assert.True(t, errors.Is(err, ErrTokensDisabled))

	_, err = service.ValidateToken(context.Background(), "anything")
	assert.True(t, errors.Is(err, ErrTokensDisabled))
}

func TestService_APIKeys(t *testing.T) {
	service := NewService(testAuthConfig(t, "sp_first", "sp_second"))
	ctx := context.Background()
	assert.True(t, service.Enabled())

	tests := []struct {
		name        string
		key         string
		wantSubject string
		wantErr     bool
	}{
		{"first key", "sp_first", "apikey:0", false},
		{"second key", "sp_second", "apikey:1", false},
		{"cached second key", "sp_second", "apikey:1", false},
		{"unknown key", "sp_third", "", true},
		{"empty key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := service.ValidateAPIKey(ctx, tt.key)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidCredentials))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
		})
	}
}

func TestService_APIKeyCacheExpires(t *testing.T) {
	cfg := testAuthConfig(t, "sp_rotating")
	service := NewService(cfg)
	ctx := context.Background()

	now := time.Now()
	service.now = func() time.Time { return now }

	_, err := service.ValidateAPIKey(ctx, "sp_rotating")
	require.NoError(t, err)

	// Key revoked from config: still accepted while cached, rejected after
	cfg.APIKeyHashes = nil
	_, err = service.ValidateAPIKey(ctx, "sp_rotating")
	assert.NoError(t, err)

	now = now.Add(keyCacheTTL + time.Second)
	_, err = service.ValidateAPIKey(ctx, "sp_rotating")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
