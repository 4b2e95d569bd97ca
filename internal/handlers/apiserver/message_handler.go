package apiserver

import (
	"encoding/json"
	"net/http"

	"schedle/internal/middleware"
	"schedle/internal/services"

	"github.com/gorilla/mux"
)

// MessageHandler serves direct messages between friends.
type MessageHandler struct {
	messageService services.MessageService
}

func NewMessageHandler(messageService services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// SendMessageRequest is the body of POST /api/v1/messages/{userID}.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ListConversationsHandler handles GET /api/v1/messages
func (h *MessageHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	summaries, err := h.messageService.Conversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to load conversations")
		return
	}
	writeJSONResponse(w, http.StatusOK, summaries)
}

// GetConversationHandler handles GET /api/v1/messages/{userID}
func (h *MessageHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	messages, err := h.messageService.Conversation(r.Context(), userID, mux.Vars(r)["userID"])
	if err != nil {
		writeServiceError(w, err, "failed to load conversation")
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// SendMessageHandler handles POST /api/v1/messages/{userID}
func (h *MessageHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := h.messageService.SendMessage(r.Context(), userID, mux.Vars(r)["userID"], req.Content)
	if err != nil {
		writeServiceError(w, err, "failed to send message")
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}
