package apiserver

import (
	"encoding/json"
	"net/http"

	"schedle/internal/middleware"
	"schedle/internal/services"

	"github.com/gorilla/mux"
)

// FriendRequestHandler handles HTTP requests related to friends and friend requests.
type FriendRequestHandler struct {
	sessions *services.Sessions
}

// NewFriendRequestHandler creates a new FriendRequestHandler.
func NewFriendRequestHandler(sessions *services.Sessions) *FriendRequestHandler {
	return &FriendRequestHandler{sessions: sessions}
}

// session returns the session of the authenticated user, writing the error response itself when there is none.
func session(w http.ResponseWriter, r *http.Request, sessions *services.Sessions) (*services.Session, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return nil, false
	}
	s, err := sessions.For(userID)
	if err != nil {
		writeJSONError(w, "unknown user", http.StatusUnauthorized)
		return nil, false
	}
	return s, true
}

// SendFriendRequestPayload defines the expected JSON body for sending a friend request.
type SendFriendRequestPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// SendFriendRequestHandler handles POST /api/v1/friend-requests
func (h *FriendRequestHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	var payload SendFriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.TargetUserID == "" {
		writeJSONError(w, "targetUserId is required", http.StatusBadRequest)
		return
	}

	record, err := s.SendFriendRequest(r.Context(), payload.TargetUserID)
	if err != nil {
		writeServiceError(w, err, "failed to send friend request")
		return
	}
	writeJSONResponse(w, http.StatusCreated, record)
}

// AcceptFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/accept
func (h *FriendRequestHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	record, err := s.AcceptFriendRequest(r.Context(), mux.Vars(r)["requestID"])
	if err != nil {
		writeServiceError(w, err, "failed to accept friend request")
		return
	}
	writeJSONResponse(w, http.StatusOK, record)
}

// DeclineFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/decline
func (h *FriendRequestHandler) DeclineFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.DeclineFriendRequest(r.Context(), mux.Vars(r)["requestID"]); err != nil {
		writeServiceError(w, err, "failed to decline friend request")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "friend request declined"})
}

// ListPendingRequestsHandler handles GET /api/v1/friend-requests/pending
func (h *FriendRequestHandler) ListPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	pending, err := s.IncomingRequests(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load pending requests")
		return
	}
	writeJSONResponse(w, http.StatusOK, pending)
}

// ListOutgoingRequestsHandler handles GET /api/v1/friend-requests/outgoing
func (h *FriendRequestHandler) ListOutgoingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	outgoing, err := s.OutgoingRequests(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load outgoing requests")
		return
	}
	writeJSONResponse(w, http.StatusOK, outgoing)
}

// ListFriendsHandler handles GET /api/v1/friends
func (h *FriendRequestHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	friends, err := s.Friends(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load friends")
		return
	}
	writeJSONResponse(w, http.StatusOK, friends)
}

// RemoveFriendHandler handles DELETE /api/v1/friends/{userID}
func (h *FriendRequestHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	if err := s.RemoveFriend(r.Context(), mux.Vars(r)["userID"]); err != nil {
		writeServiceError(w, err, "failed to remove friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
