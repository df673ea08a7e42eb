package artifacts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := artifacts.NewLocal(dir)
	require.NoError(t, err)

	key, err := store.PutBytes(ctx, []byte("bundle"))
	require.NoError(t, err)
	assert.Equal(t, artifacts.Key([]byte("bundle")), key)
	assert.FileExists(t, filepath.Join(dir, key))

	again, err := store.PutBytes(ctx, []byte("bundle"))
	require.NoError(t, err)
	assert.Equal(t, key, again)

	data, err := store.GetBytes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle"), data)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.GetBytes(ctx, key)
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}

func TestLocalStoreRejectsBadKeys(t *testing.T) {
	store, err := artifacts.NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../x", "a/b", ".hidden"} {
		_, err := store.GetBytes(context.Background(), key)
		assert.ErrorIs(t, err, artifacts.ErrBadKey, key)
		assert.NotErrorIs(t, err, artifacts.ErrNotFound, key)
		assert.ErrorIs(t, store.Delete(context.Background(), key), artifacts.ErrBadKey, key)
	}
}

func TestLocalStoreDecompresses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := artifacts.NewLocal(dir)
	require.NoError(t, err)

	packed := artifacts.Compress([]byte(`{"entryFile":"index.js"}`))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.zst"), packed, 0o644))

	data, err := store.GetBytes(ctx, "bundle.zst")
	require.NoError(t, err)
	assert.Equal(t, `{"entryFile":"index.js"}`, string(data))
}

func TestDecompressPassesPlainData(t *testing.T) {
	data, err := artifacts.Decompress([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))

	_, err = artifacts.Decompress([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00})
	assert.Error(t, err)
}

func TestNewMinIOValidatesConfig(t *testing.T) {
	_, err := artifacts.NewMinIO(artifacts.MinIOConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = artifacts.NewMinIO(artifacts.MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
	m, err := artifacts.NewMinIO(artifacts.MinIOConfig{Endpoint: "localhost:9000", Bucket: "modules"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
