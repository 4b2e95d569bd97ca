package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"schedle/internal/blob"
	"schedle/internal/config"

	"github.com/google/uuid"
)

// LocalAvatarStore writes avatars to the local file system.
type LocalAvatarStore struct {
	basePath string // e.g. "./uploads/avatars"
	baseURL  string // e.g. "/uploads/avatars"
}

// NewLocalAvatarStore creates the target directory when missing.
func NewLocalAvatarStore(cfg config.AvatarConfig) (*LocalAvatarStore, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create avatar directory '%s': %w", cfg.LocalPath, err)
	}
	return &LocalAvatarStore{
		basePath: cfg.LocalPath,
		baseURL:  cfg.BaseURL,
	}, nil
}

// Upload saves the file under a uuid name that keeps the original extension.
func (s *LocalAvatarStore) Upload(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*blob.FileInfo, error) {
	uniqueFileName := uuid.New().String() + extensionFor(fileName, mimeType)
	dstPath := filepath.Join(s.basePath, uniqueFileName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file '%s': %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if written != fileSize {
		os.Remove(dstPath)
		return nil, fmt.Errorf("file size mismatch: expected %d, wrote %d", fileSize, written)
	}

	return &blob.FileInfo{
		URL:      strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(uniqueFileName),
		Path:     dstPath,
		Size:     fileSize,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}

// extensionFor keeps the original extension or guesses one from the MIME type.
func extensionFor(fileName, mimeType string) string {
	if ext := filepath.Ext(fileName); ext != "" {
		return ext
	}
	extensions, _ := mime.ExtensionsByType(mimeType)
	if len(extensions) > 0 {
		return extensions[0]
	}
	return ""
}
