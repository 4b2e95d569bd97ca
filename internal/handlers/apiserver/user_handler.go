package apiserver

import (
	"encoding/json"
	"net/http"

	"schedle/internal/middleware"
	"schedle/internal/services"
)

// UserHandler 封装了用户相关的 HTTP 处理器方法。
type UserHandler struct {
	authService services.AuthService
	userService services.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(authService services.AuthService, userService services.UserService) *UserHandler {
	return &UserHandler{authService: authService, userService: userService}
}

// GetMyProfileHandler 处理获取当前登录用户信息的请求。
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to load profile")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileRequest 是更新用户信息的请求结构体。
type UpdateMyProfileRequest struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UpdateMyProfileHandler 处理更新当前登录用户信息的请求。
func (h *UserHandler) UpdateMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req UpdateMyProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.authService.UpdateProfile(r.Context(), userID, req.Name, req.Avatar)
	if err != nil {
		writeServiceError(w, err, "failed to update profile")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// SearchUsersHandler 处理 GET /users/search?query=
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	results, err := h.userService.SearchUsers(r.Context(), r.URL.Query().Get("query"), userID)
	if err != nil {
		writeServiceError(w, err, "search failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, results)
}
