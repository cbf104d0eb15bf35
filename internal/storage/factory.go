package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lgulliver/stockpile/pkg/config"
)

// connectTimeout bounds the bucket check performed when an S3 backend starts
const connectTimeout = 10 * time.Second

// StorageFactory creates storage instances based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates a storage instance based on the configured type
func (sf *StorageFactory) CreateStorage() (BlobStorage, error) {
	switch sf.config.Type {
	case "local":
		return NewLocalStorage(sf.config.LocalPath)
	case "s3":
		if sf.config.Endpoint == "" {
			return nil, fmt.Errorf("s3 storage requires STORAGE_ENDPOINT")
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return NewS3Storage(ctx, sf.config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}
