package apiserver

import (
	"net/http"
	"strconv"

	"schedle/internal/services"

	"github.com/gorilla/mux"
)

// NotificationHandler serves the notification center of the current user.
type NotificationHandler struct {
	sessions *services.Sessions
}

func NewNotificationHandler(sessions *services.Sessions) *NotificationHandler {
	return &NotificationHandler{sessions: sessions}
}

// ListNotificationsHandler handles GET /api/v1/notifications?limit=
func (h *NotificationHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := s.Notifications(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, "failed to load notifications")
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

// UnreadCountHandler handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	count, err := s.UnreadCount(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to count notifications")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"count": count})
}

// MarkReadHandler handles POST /api/v1/notifications/{notificationID}/read
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.MarkNotificationAsRead(r.Context(), mux.Vars(r)["notificationID"]); err != nil {
		writeServiceError(w, err, "failed to mark notification as read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllReadHandler handles POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.MarkAllAsRead(r.Context()); err != nil {
		writeServiceError(w, err, "failed to mark notifications as read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotificationsHandler handles DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.ClearNotifications(r.Context()); err != nil {
		writeServiceError(w, err, "failed to clear notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
