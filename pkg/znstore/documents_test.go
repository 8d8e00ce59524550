package znstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Sites map[string]int `json:"sites"`
}

func TestDocumentStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.json")
	store := NewDocumentStore(path)

	want := testDoc{Sites: map[string]int{"1Hello": 1}}
	require.NoError(t, store.Save(&want))

	var got testDoc
	require.NoError(t, store.Load(&got))
	require.Equal(t, want, got)
}

func TestDocumentStoreLoadMissingFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	store := NewDocumentStore(path)

	var got testDoc
	require.NoError(t, store.Load(&got))
	require.Nil(t, got.Sites)
}
