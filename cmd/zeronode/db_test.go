package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"zeronode/pkg/znstore"
)

func TestDBRebuildFlattensArrayAndObjectDataFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "posts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts", "data.json"), []byte(`[{"id":1},{"id":2}]`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profile"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile", "data.json"), []byte(`{"name":"alice"}`), 0o644))

	count, err := dbRebuild(dir)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	store := znstore.NewDocumentStore(filepath.Join(dir, "db", "rows.json"))
	var doc dbRows
	require.NoError(t, store.Load(&doc))
	require.Len(t, doc.Rows, 3)
}

func TestDBRebuildIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content.json"), []byte(`{"not":"a data file"}`), 0o644))

	count, err := dbRebuild(dir)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
