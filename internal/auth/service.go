package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/lgulliver/stockpile/pkg/utils"
)

var (
	// ErrInvalidCredentials is returned for any rejected token or key
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokensDisabled is returned when no JWT secret is configured
	ErrTokensDisabled = errors.New("token authentication is not configured")
)

// keyCacheTTL bounds how long a verified API key skips bcrypt
const keyCacheTTL = 5 * time.Minute

// Service authenticates upload clients against configured credentials
type Service struct {
	config *config.AuthConfig

	mu       sync.Mutex
	verified map[string]verifiedKey
	now      func() time.Time
}

type verifiedKey struct {
	subject string
	expires time.Time
}

// NewService creates a new authentication service
func NewService(cfg *config.AuthConfig) *Service {
	return &Service{
		config:   cfg,
		verified: make(map[string]verifiedKey),
		now:      time.Now,
	}
}

// Enabled reports whether requests must authenticate
func (s *Service) Enabled() bool {
	return s.config.AuthEnabled()
}

// IssueToken signs a JWT for subject
func (s *Service) IssueToken(subject string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", ErrTokensDisabled
	}
	return utils.GenerateJWT(subject, s.config.TokenIssuer, s.config.JWTSecret, s.config.TokenLifetime)
}

// ValidateToken checks a bearer token and returns its subject
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", ErrTokensDisabled
	}

	subject, err := utils.ValidateJWT(token, s.config.TokenIssuer, s.config.JWTSecret)
	if err != nil {
		log.Debug().Err(err).Msg("token rejected")
		return "", ErrInvalidCredentials
	}
	return subject, nil
}

// ValidateAPIKey compares key against the configured bcrypt hashes. Verified
// keys are remembered by digest for a short time so repeated chunk uploads do
// not pay the bcrypt cost on every request.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidCredentials
	}

	digest := sha256.Sum256([]byte(key))
	cacheKey := hex.EncodeToString(digest[:])

	s.mu.Lock()
	if v, ok := s.verified[cacheKey]; ok && s.now().Before(v.expires) {
		s.mu.Unlock()
		return v.subject, nil
	}
	s.mu.Unlock()

	for i, hash := range s.config.APIKeyHashes {
		if !utils.CheckPassword(key, hash) {
			continue
		}

		subject := fmt.Sprintf("apikey:%d", i)
		s.mu.Lock()
		s.verified[cacheKey] = verifiedKey{subject: subject, expires: s.now().Add(keyCacheTTL)}
		s.mu.Unlock()
		return subject, nil
	}

	return "", ErrInvalidCredentials
}
