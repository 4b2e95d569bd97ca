package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"schedle/internal/middleware"
	"schedle/internal/models"
	"schedle/internal/services"
)

// AuthHandler 封装了认证相关的 HTTP 处理器方法。
type AuthHandler struct {
	authService services.AuthService
	sessions    *services.Sessions
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(authService services.AuthService, sessions *services.Sessions) *AuthHandler {
	return &AuthHandler{authService: authService, sessions: sessions}
}

// RegisterRequest 是用户注册请求的结构体。
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest 是用户登录请求的结构体。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse 是成功登录后返回的结构体。
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ErrorResponse 是 API 错误响应的通用结构体。
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeJSONError(w, "name, email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err, "registration failed")
		return
	}
	writeJSONResponse(w, http.StatusCreated, user)
}

// Login 处理用户登录请求。The user's partitions are read once so that a
// damaged partition shows up in the logs at sign in.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
		} else {
			log.Printf("Login failed for %s: %v", req.Email, err)
			writeJSONError(w, "login failed", http.StatusInternalServerError)
		}
		return
	}

	session, err := h.sessions.Open(r.Context(), user.ID)
	if err != nil {
		log.Printf("Failed to open session for %s: %v", user.ID, err)
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}
	session.Close()

	writeJSONResponse(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// LogoutHandler 处理用户登出请求，将当前 Token 加入黑名单。
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		log.Printf("Logout failed for %s: %v", claims.UserID, err)
		writeJSONError(w, "logout failed", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("无法编码 JSON 响应: %v", err)
		}
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps a service error to a status code. Unknown errors
// are logged and reported as fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", fallback, err)
		writeJSONError(w, fallback, status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownUser),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrFriendRequestNotFound),
		errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrFriendRequestExists),
		errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotRecipientOfRequest),
		errors.Is(err, services.ErrNotGroupOwner),
		errors.Is(err, services.ErrNotGroupMember),
		errors.Is(err, services.ErrNotFriends):
		return http.StatusForbidden
	case errors.Is(err, services.ErrFriendRequestSelf),
		errors.Is(err, services.ErrInvalidEvent),
		errors.Is(err, services.ErrInvalidGroup),
		errors.Is(err, services.ErrInvalidNotification),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrPasswordTooLong),
		errors.Is(err, services.ErrInvalidProfile),
		errors.Is(err, services.ErrUnsupportedAvatar):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionClosed):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
