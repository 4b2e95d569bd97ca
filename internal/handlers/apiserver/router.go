package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers bundles every HTTP handler of the API server.
type Handlers struct {
	Auth          *AuthHandler
	User          *UserHandler
	Upload        *UploadHandler
	Friends       *FriendRequestHandler
	Notifications *NotificationHandler
	Events        *EventHandler
	Groups        *GroupHandler
	Messages      *MessageHandler
	WebSocket     *WebSocketHandler
}

// NewRouter registers the public and authenticated routes. authMW guards
// /api/v1 and /ws.
func NewRouter(h Handlers, authMW mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()

	// 认证路由
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost)

	// API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", h.Auth.LogoutHandler).Methods(http.MethodPost)

	// 用户路由
	apiRouter.HandleFunc("/users/me", h.User.GetMyProfileHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", h.User.UpdateMyProfileHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/me/avatar", h.Upload.UploadAvatarHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/users/search", h.User.SearchUsersHandler).Methods(http.MethodGet)

	// 好友路由
	apiRouter.HandleFunc("/friends", h.Friends.ListFriendsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{userID}", h.Friends.RemoveFriendHandler).Methods(http.MethodDelete)

	friendRequestRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	friendRequestRouter.HandleFunc("", h.Friends.SendFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/pending", h.Friends.ListPendingRequestsHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/outgoing", h.Friends.ListOutgoingRequestsHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/{requestID}/accept", h.Friends.AcceptFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID}/decline", h.Friends.DeclineFriendRequestHandler).Methods(http.MethodPost)

	// 通知路由
	notificationRouter := apiRouter.PathPrefix("/notifications").Subrouter()
	notificationRouter.HandleFunc("", h.Notifications.ListNotificationsHandler).Methods(http.MethodGet)
	notificationRouter.HandleFunc("", h.Notifications.ClearNotificationsHandler).Methods(http.MethodDelete)
	notificationRouter.HandleFunc("/unread-count", h.Notifications.UnreadCountHandler).Methods(http.MethodGet)
	notificationRouter.HandleFunc("/read-all", h.Notifications.MarkAllReadHandler).Methods(http.MethodPost)
	notificationRouter.HandleFunc("/{notificationID}/read", h.Notifications.MarkReadHandler).Methods(http.MethodPost)

	// 日程路由
	eventRouter := apiRouter.PathPrefix("/events").Subrouter()
	eventRouter.HandleFunc("", h.Events.ListEventsHandler).Methods(http.MethodGet)
	eventRouter.HandleFunc("", h.Events.CreateEventHandler).Methods(http.MethodPost)
	eventRouter.HandleFunc("/occurrences", h.Events.OccurrencesHandler).Methods(http.MethodGet)
	eventRouter.HandleFunc("/export.ics", h.Events.ExportICSHandler).Methods(http.MethodGet)
	eventRouter.HandleFunc("/{eventID}", h.Events.UpdateEventHandler).Methods(http.MethodPut)
	eventRouter.HandleFunc("/{eventID}", h.Events.DeleteEventHandler).Methods(http.MethodDelete)

	// 群组路由
	apiRouter.HandleFunc("/groups", h.Groups.ListGroupsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/groups", h.Groups.CreateGroupHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/groups/{groupID}/leave", h.Groups.LeaveGroupHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/groups/{groupID}", h.Groups.DeleteGroupHandler).Methods(http.MethodDelete)

	// 私信路由
	apiRouter.HandleFunc("/messages", h.Messages.ListConversationsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/{userID}", h.Messages.GetConversationHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/messages/{userID}", h.Messages.SendMessageHandler).Methods(http.MethodPost)

	// 实时推送
	wsRouter := r.PathPrefix("/ws").Subrouter()
	wsRouter.Use(authMW)
	wsRouter.HandleFunc("/notifications", h.WebSocket.ServeWS).Methods(http.MethodGet)

	return r
}
