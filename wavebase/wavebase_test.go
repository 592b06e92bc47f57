package wavebase

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "wave.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, db.PutBytes("history", []byte(`[{"modelId":"a"}]`)))
	assert.True(t, db.Has("history"))

	got, err := db.Get("history")
	require.NoError(t, err)
	assert.Equal(t, `[{"modelId":"a"}]`, string(got))
}

func TestGetMissing(t *testing.T) {
	db := openTemp(t)

	_, err := db.Get("nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDelete(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, db.PutBytes("k", []byte("v")))
	require.NoError(t, db.Delete("k"))
	assert.False(t, db.Has("k"))
}

func TestPutWithExpiry(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, db.PutBytesExpire("short", []byte("v"), time.Hour))
	got, err := db.Get("short")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestCacheKeyIsStableHex(t *testing.T) {
	a := CacheKey("catalog:categories")
	b := CacheKey("catalog:categories")
	assert.Equal(t, a, b)
	assert.Len(t, a, 56)
	assert.NotEqual(t, a, CacheKey(Key("catalog", "models", "image")))
	assert.Equal(t, a, CacheKey(Key("catalog", "categories")))
}

func TestCompressRoundTrip(t *testing.T) {
	packed, err := compress([]byte("hello hello hello"))
	require.NoError(t, err)
	unpacked, err := decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, "hello hello hello", string(unpacked))
}
