package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"schedle/internal/middleware"
	"schedle/internal/services"

	"github.com/gorilla/mux"
)

// GroupHandler 封装了群组相关的 HTTP 处理器方法。
type GroupHandler struct {
	groupService   services.GroupService
	requestLock    sync.Mutex
	recentRequests map[string]time.Time
}

// NewGroupHandler 创建一个新的 GroupHandler 实例。
func NewGroupHandler(groupService services.GroupService) *GroupHandler {
	return &GroupHandler{
		groupService:   groupService,
		recentRequests: make(map[string]time.Time),
	}
}

// isRecentRequest reports whether the same create request was seen in the
// last few seconds, which happens when a client double-submits.
func (h *GroupHandler) isRecentRequest(key string) bool {
	h.requestLock.Lock()
	defer h.requestLock.Unlock()

	now := time.Now()
	for k, t := range h.recentRequests {
		if now.Sub(t) > 5*time.Second {
			delete(h.recentRequests, k)
		}
	}
	if _, exists := h.recentRequests[key]; exists {
		return true
	}
	h.recentRequests[key] = now
	return false
}

// CreateGroupRequest 是创建群组的请求结构体。
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar,omitempty"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

// CreateGroupHandler handles POST /api/v1/groups
func (h *GroupHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	members := append([]string(nil), req.MemberIDs...)
	sort.Strings(members)
	requestKey := fmt.Sprintf("create_group:%s:%s:%s", userID, req.Name, strings.Join(members, ","))
	if h.isRecentRequest(requestKey) {
		writeJSONError(w, "duplicate request, try again later", http.StatusTooManyRequests)
		return
	}

	group, err := h.groupService.CreateGroup(r.Context(), userID, req.Name, req.MemberIDs, req.Avatar)
	if err != nil {
		writeServiceError(w, err, "failed to create group")
		return
	}
	writeJSONResponse(w, http.StatusCreated, group)
}

// ListGroupsHandler handles GET /api/v1/groups
func (h *GroupHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	groups, err := h.groupService.ListGroups(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to load groups")
		return
	}
	writeJSONResponse(w, http.StatusOK, groups)
}

// LeaveGroupHandler handles POST /api/v1/groups/{groupID}/leave
func (h *GroupHandler) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.groupService.LeaveGroup(r.Context(), userID, mux.Vars(r)["groupID"]); err != nil {
		writeServiceError(w, err, "failed to leave group")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGroupHandler handles DELETE /api/v1/groups/{groupID}
func (h *GroupHandler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.groupService.DeleteGroup(r.Context(), userID, mux.Vars(r)["groupID"]); err != nil {
		writeServiceError(w, err, "failed to delete group")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
