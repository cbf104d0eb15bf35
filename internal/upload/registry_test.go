package upload

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgulliver/stockpile/internal/storage"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "chunks/abc/0.n1", ChunkKey("abc", 0, "n1"))
	assert.Equal(t, "chunks/abc/12.Xy9", ChunkKey("abc", 12, "Xy9"))
	assert.Equal(t, "chunks/abc", ChunkArea("abc"))
	assert.Equal(t, "staging/abc", StagingKey("abc"))
	assert.Equal(t, "uploads/a.txt", ArtifactKey("a.txt"))
}

func TestChunkRegistry(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	registry := NewChunkRegistry(local)
	ctx := context.Background()

	first, n, err := registry.Put(ctx, sessionID, 3, strings.NewReader("four"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Len(t, first, nonceLength)

	// A second write of the same index lands beside the first
	second, _, err := registry.Put(ctx, sessionID, 3, strings.NewReader("FOUR"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for nonce, want := range map[string]string{first: "four", second: "FOUR"} {
		has, err := registry.Has(ctx, sessionID, 3, nonce)
		require.NoError(t, err)
		assert.True(t, has)

		rc, err := registry.Open(ctx, sessionID, 3, nonce)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	require.NoError(t, registry.Delete(ctx, sessionID, 3, first))
	has, err := registry.Has(ctx, sessionID, 3, first)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, registry.DeleteArea(ctx, sessionID))
	keys, err := local.List(ctx, ChunkArea(sessionID))
	require.NoError(t, err)
	assert.Empty(t, keys)
}
