package apiserver

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"schedle/internal/config"
	"schedle/internal/middleware"
	"schedle/internal/services"
)

const (
	defaultMaxMemory = 32 << 20 // 32 MB default max memory for multipart forms
)

// UploadHandler handles avatar uploads.
type UploadHandler struct {
	userService services.UserService
	cfg         config.AvatarConfig
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(userService services.UserService, cfg config.AvatarConfig) *UploadHandler {
	return &UploadHandler{userService: userService, cfg: cfg}
}

// UploadAvatarHandler handles POST /users/me/avatar with the image in the "avatar" form field.
func (h *UploadHandler) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	maxUploadSize := h.cfg.MaxFileSizeMB << 20
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxMemory
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, fmt.Sprintf("avatar is too large, the limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, "missing 'avatar' field", http.StatusBadRequest)
		} else {
			writeJSONError(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	log.Printf("Avatar upload from %s: name=%s, size=%d, type=%s", userID, header.Filename, header.Size, mimeType)

	if header.Size > maxUploadSize {
		writeJSONError(w, fmt.Sprintf("avatar is too large, the limit is %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		return
	}

	user, err := h.userService.UploadAvatar(r.Context(), userID, file, header.Size, header.Filename, mimeType)
	if err != nil {
		writeServiceError(w, err, "failed to store avatar")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}
