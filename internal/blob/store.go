// Package blob holds the upload contract shared by storage backends and handlers.
package blob

import (
	"context"
	"io"
)

// FileInfo describes an uploaded object.
type FileInfo struct {
	URL      string `json:"url"`      // publicly reachable URL
	Path     string `json:"path"`     // backend specific identifier
	Size     int64  `json:"size"`     // bytes
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"` // original name
}

// Store uploads blobs such as avatars.
// It lives here rather than in storage so that services can depend on it
// without importing the storage backends.
type Store interface {
	// Upload copies size bytes from reader into the backend.
	Upload(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*FileInfo, error)
}
