package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/lgulliver/stockpile/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageFactory_CreateLocalStorage(t *testing.T) {
	storageConfig := &config.StorageConfig{
		Type:      "local",
		LocalPath: t.TempDir(),
	}

	factory := NewStorageFactory(storageConfig)
	storage, err := factory.CreateStorage()

	require.NoError(t, err)
	require.NotNil(t, storage)

	ctx := context.Background()
	err = storage.Store(ctx, "chunks/factory/0", strings.NewReader("content from factory test"), "application/octet-stream")
	require.NoError(t, err)

	reader, err := storage.Retrieve(ctx, "chunks/factory/0")
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "content from factory test", string(content))
}

func TestStorageFactory_UnsupportedType(t *testing.T) {
	factory := NewStorageFactory(&config.StorageConfig{Type: "azure"})
	storage, err := factory.CreateStorage()

	assert.Error(t, err)
	assert.Nil(t, storage)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestStorageFactory_S3RequiresEndpoint(t *testing.T) {
	factory := NewStorageFactory(&config.StorageConfig{Type: "s3", Bucket: "stockpile"})
	storage, err := factory.CreateStorage()

	assert.Error(t, err)
	assert.Nil(t, storage)
	assert.Contains(t, err.Error(), "STORAGE_ENDPOINT")
}
