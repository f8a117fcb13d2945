package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbsearch/notebook-indexer/internal/archive/local"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "archive")
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.DirExists(t, base)
}

func TestNewRejectsEmptyBaseDir(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{})
	require.Error(t, err)
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "alice/charts/abc.ipynb", "application/json", []byte(`{"cells":[]}`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, "alice/charts/abc.ipynb"), uri)

	data, err := os.ReadFile(filepath.Join(base, "alice/charts/abc.ipynb"))
	require.NoError(t, err)
	require.JSONEq(t, `{"cells":[]}`, string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.ipynb", "", []byte("x"))
	require.Error(t, err)
}
