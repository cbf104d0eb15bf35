package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for all services
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"postgres"` // postgres, sqlite
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"stockpile"`
	Password string `envconfig:"DB_PASSWORD" default:"password"`
	DBName   string `envconfig:"DB_NAME" default:"stockpile"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	Path     string `envconfig:"DB_PATH" default:"./stockpile.db"` // sqlite only
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Type      string `envconfig:"STORAGE_TYPE" default:"local"` // local, s3
	Bucket    string `envconfig:"STORAGE_BUCKET" default:"stockpile"`
	Region    string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	Endpoint  string `envconfig:"STORAGE_ENDPOINT"`
	AccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	LocalPath string `envconfig:"STORAGE_LOCAL_PATH" default:"./data"`
}

// UploadConfig holds chunked upload protocol settings
type UploadConfig struct {
	SessionStore       string        `envconfig:"UPLOAD_SESSION_STORE" default:"memory"` // memory, database, redis
	SessionTTL         time.Duration `envconfig:"UPLOAD_SESSION_TTL" default:"24h"`
	CleanupInterval    time.Duration `envconfig:"UPLOAD_CLEANUP_INTERVAL" default:"1h"`
	StorageTimeout     time.Duration `envconfig:"UPLOAD_STORAGE_TIMEOUT" default:"30s"`
	CollisionRetries   int           `envconfig:"UPLOAD_COLLISION_RETRIES" default:"5"`
	SuffixLength       int           `envconfig:"UPLOAD_SUFFIX_LENGTH" default:"8"`
	PublicBaseURL      string        `envconfig:"UPLOAD_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	MaxChunkSize       int64         `envconfig:"UPLOAD_MAX_CHUNK_SIZE" default:"67108864"` // 64MB
	CheckParallelism   int           `envconfig:"UPLOAD_CHECK_PARALLELISM" default:"8"`
	ProtocolVersion    string        `envconfig:"UPLOAD_PROTOCOL_VERSION" default:"1.0.0"`
	ProtocolConstraint string        `envconfig:"UPLOAD_PROTOCOL_CONSTRAINT"`
}

// AuthConfig holds authentication settings. Auth is disabled when both are empty.
type AuthConfig struct {
	JWTSecret     string        `envconfig:"AUTH_JWT_SECRET"`
	APIKeyHashes  []string      `envconfig:"AUTH_API_KEY_HASHES"`
	BCryptCost    int           `envconfig:"AUTH_BCRYPT_COST" default:"12"`
	TokenIssuer   string        `envconfig:"AUTH_TOKEN_ISSUER" default:"stockpile"`
	TokenLifetime time.Duration `envconfig:"AUTH_TOKEN_LIFETIME" default:"24h"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json, text
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Upload.SessionStore {
	case "memory", "database", "redis":
	default:
		return fmt.Errorf("unsupported session store: %s", c.Upload.SessionStore)
	}

	if c.Upload.SuffixLength < 8 {
		return fmt.Errorf("UPLOAD_SUFFIX_LENGTH must be at least 8, got %d", c.Upload.SuffixLength)
	}
	if c.Upload.CollisionRetries < 1 {
		return fmt.Errorf("UPLOAD_COLLISION_RETRIES must be positive, got %d", c.Upload.CollisionRetries)
	}
	if c.Upload.CheckParallelism < 1 {
		c.Upload.CheckParallelism = 1
	}
	c.Upload.PublicBaseURL = strings.TrimRight(c.Upload.PublicBaseURL, "/")

	return nil
}

// AuthEnabled reports whether any credential source is configured
func (a *AuthConfig) AuthEnabled() bool {
	return a.JWTSecret != "" || len(a.APIKeyHashes) > 0
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger
func (l *LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if l.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
