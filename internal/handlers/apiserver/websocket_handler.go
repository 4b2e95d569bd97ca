package apiserver

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"schedle/internal/config"
	"schedle/internal/middleware"
	"schedle/internal/services"
	ws "schedle/internal/websocket"
)

// WebSocketHandler 负责处理 WebSocket 连接请求。
type WebSocketHandler struct {
	hub                 *ws.Hub
	messageService      services.MessageService
	notificationService services.NotificationService
	cfg                 config.WebSocketConfig
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, messageService services.MessageService, notificationService services.NotificationService, cfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:                 hub,
		messageService:      messageService,
		notificationService: notificationService,
		cfg:                 cfg,
	}
}

// ServeWS handles GET /ws/notifications. The route sits behind the auth
// middleware, which accepts the token as a query parameter.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	log.Printf("User %s is opening a notification socket", userID)
	ws.ServeWs(h.hub, h.handleFrame, userID, w, r, h.cfg)
}

// handleFrame lets a connected client send messages and mark notifications as read.
func (h *WebSocketHandler) handleFrame(ctx context.Context, userID string, frame ws.Frame) error {
	switch frame.Type {
	case "message":
		_, err := h.messageService.SendMessage(ctx, userID, frame.ReceiverID, frame.Content)
		return err
	case "read":
		return h.notificationService.MarkNotificationAsRead(ctx, userID, frame.NotificationID)
	}
	return fmt.Errorf("unknown frame type %q", frame.Type)
}
