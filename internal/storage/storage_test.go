package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/crypto"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("load before save returns not found", func(t *testing.T) {
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, []byte("blob")))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("blob"), got)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	enc, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "auth", "session")
	return NewFileStore(path, enc), path
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load before save returns not found", func(t *testing.T) {
		store, _ := newFileStore(t)
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, store.Save(ctx, []byte(`{"token":"t1"}`)))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"token":"t1"}`), got)

		// token must not be readable from the file itself
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "t1")

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("corrupt file treated as corrupt not fatal", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, store.Save(ctx, []byte("data")))
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store, _ := newFileStore(t)
		require.NoError(t, store.Save(ctx, []byte("data")))
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save replaces previous blob", func(t *testing.T) {
		store, _ := newFileStore(t)
		require.NoError(t, store.Save(ctx, []byte("one")))
		require.NoError(t, store.Save(ctx, []byte("two")))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})
}
