package storage

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"schedle/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAvatarStoreUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalAvatarStore(config.AvatarConfig{LocalPath: dir, BaseURL: "/uploads/avatars/"})
	require.NoError(t, err)

	content := []byte("png-bytes")
	info, err := store.Upload(context.Background(), bytes.NewReader(content), int64(len(content)), "me.png", "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(info.URL, "/uploads/avatars/"))
	assert.True(t, strings.HasSuffix(info.URL, ".png"))
	assert.Equal(t, "me.png", info.FileName)

	written, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, content, written)
}

func TestLocalAvatarStoreSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalAvatarStore(config.AvatarConfig{LocalPath: dir, BaseURL: "/a"})
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), strings.NewReader("abc"), 10, "x", "image/jpeg")
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
