package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-pipeline/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "out", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("requires a directory", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)

		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err = local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "articles/run-1/abc.json", "application/json",
		strings.NewReader(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "articles/run-1/abc.json"), uri)

	// #nosec G304 -- test reads from its own temp directory.
	raw, err := os.ReadFile(filepath.Join(dir, "articles/run-1/abc.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x"}`, string(raw))

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "../escape.json", "", strings.NewReader("x"))
	require.Error(t, err)
}
