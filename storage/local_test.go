package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityzen/models"
)

func TestSaveAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "complaints")
	store, err := NewLocalImageStore(dir, "/uploads/complaints/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), models.ImageUpload{
		FileName:    "pothole.JPG",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/complaints/"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, store.Remove(context.Background(), url))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(url)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Remove(context.Background(), url), "removing twice is harmless")
}

func TestRemoveStaysInsideBasePath(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
	store, err := NewLocalImageStore(filepath.Join(root, "complaints"), "/uploads/complaints")
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), "/uploads/complaints/../keep.txt"))

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", extension(models.ImageUpload{ContentType: "image/png"}))
	assert.Equal(t, ".webp", extension(models.ImageUpload{ContentType: "image/webp; q=1"}))
	assert.Equal(t, ".heic", extension(models.ImageUpload{ContentType: "image/heic", FileName: "a.HEIC"}))
	assert.Equal(t, ".img", extension(models.ImageUpload{ContentType: "image/x-unknown"}))
}
