package znstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCachePutGetRoundTrip(t *testing.T) {
	cache, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, cache.Put("1Hello/index.html", []byte("<html></html>")))
	data, ok := cache.Get("1Hello/index.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(data))

	_, ok = cache.Get("1Hello/missing.html")
	require.False(t, ok)
}

func TestFileCacheEvictsOldestWhenFull(t *testing.T) {
	cache, err := NewFileCache(t.TempDir(), 2)
	require.NoError(t, err)

	require.NoError(t, cache.Put("a", []byte("1")))
	require.NoError(t, cache.Put("b", []byte("2")))
	require.NoError(t, cache.Put("c", []byte("3")))

	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = cache.Get("c")
	require.True(t, ok)
}

func TestFileCacheEvict(t *testing.T) {
	cache, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	require.NoError(t, cache.Put("a", []byte("1")))
	cache.Evict("a")
	_, ok := cache.Get("a")
	require.False(t, ok)
}
