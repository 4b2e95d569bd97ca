package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"schedle/internal/auth"
	"schedle/internal/blob"
	"schedle/internal/config"
	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/middleware"
	"schedle/internal/models"
	"schedle/internal/services"
	"schedle/internal/storage"
	ws "schedle/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noAvatars struct{}

func (noAvatars) Upload(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*blob.FileInfo, error) {
	return &blob.FileInfo{URL: "/uploads/" + fileName, Path: fileName, Size: size, MimeType: mimeType, FileName: fileName}, nil
}

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Config{
		Auth:      config.AuthConfig{JWTSecretKey: "router-secret", JWTExpiry: time.Hour},
		Directory: config.DirectoryConfig{DefaultPassword: "password123"},
		Avatars:   config.AvatarConfig{MaxFileSizeMB: 1},
		WebSocket: config.WebSocketConfig{WriteWaitSeconds: 5, PongWaitSeconds: 30, PingPeriodSeconds: 20, MaxMessageSizeBytes: 4096},
	}

	dir := directory.New(directory.Generate(3)...)
	parts := storage.NewPartitions(storage.NewMemoryKV(), "schedle_")
	bus := events.NewBus()
	blacklist := auth.NewMemoryBlacklist()

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub()
	go hub.Run(ctx)

	notifications := services.NewNotificationService(parts, dir, hub)
	bus.Subscribe("notifications", notifications.HandleEvent)
	friends := services.NewFriendService(parts, dir, bus)
	eventSvc := services.NewEventService(parts, dir, bus)
	messages := services.NewMessageService(parts, friends, dir, hub)
	identity, err := services.NewAuthService(dir, blacklist, cfg)
	require.NoError(t, err)
	sessions := services.NewSessions(dir, parts, friends, notifications, eventSvc)
	users := services.NewUserService(dir, friends, identity, noAvatars{})

	router := NewRouter(Handlers{
		Auth:          NewAuthHandler(identity, sessions),
		User:          NewUserHandler(identity, users),
		Upload:        NewUploadHandler(users, cfg.Avatars),
		Friends:       NewFriendRequestHandler(sessions),
		Notifications: NewNotificationHandler(sessions),
		Events:        NewEventHandler(sessions, eventSvc),
		Groups:        NewGroupHandler(services.NewGroupService(parts, dir)),
		Messages:      NewMessageHandler(messages),
		WebSocket:     NewWebSocketHandler(hub, messages, notifications, cfg.WebSocket),
	}, middleware.AuthMiddleware(cfg.Auth, blacklist))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, t: t}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (s *testServer) do(method, path, token string, body, out interface{}) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	var resp LoginResponse
	status := s.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: email, Password: "password123"}, &resp)
	require.Equal(s.t, http.StatusOK, status)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func TestRouter_RequiresToken(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/v1/friends", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/v1/friends", "not-a-jwt", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "user1@example.com", Password: "wrong"}, nil))
}

func TestRouter_RegisterThenLogin(t *testing.T) {
	srv := newTestServer(t)

	var user models.User
	status := srv.do(http.MethodPost, "/auth/register", "", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "lovelace1"}, &user)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Ada", user.Name)

	assert.Equal(t, http.StatusConflict, srv.do(http.MethodPost, "/auth/register", "", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "lovelace1"}, nil))

	var resp LoginResponse
	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "ada@example.com", Password: "lovelace1"}, &resp))

	var me models.User
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/users/me", resp.Token, nil, &me))
	assert.Equal(t, user.ID, me.ID)
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login("user1@example.com")

	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/v1/auth/logout", token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/v1/users/me", token, nil, nil))
}

func TestRouter_FriendRequestFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")
	bob := srv.login("user2@example.com")

	var record models.FriendRecord
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/friend-requests", alice, SendFriendRequestPayload{TargetUserID: "user2"}, &record))
	assert.Equal(t, models.FriendStatusPending, record.Status)

	assert.Equal(t, http.StatusConflict, srv.do(http.MethodPost, "/api/v1/friend-requests", alice, SendFriendRequestPayload{TargetUserID: "user2"}, nil))
	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodPost, "/api/v1/friend-requests", alice, SendFriendRequestPayload{TargetUserID: "user1"}, nil))

	var pending []models.FriendView
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/friend-requests/pending", bob, nil, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "user1", pending[0].Other.ID)

	var unread map[string]int
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/notifications/unread-count", bob, nil, &unread))
	assert.Equal(t, 1, unread["count"])

	// only the recipient may answer
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodPost, "/api/v1/friend-requests/"+record.ID+"/accept", alice, nil, nil))
	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/v1/friend-requests/"+record.ID+"/accept", bob, nil, nil))

	var friends []models.FriendView
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/friends", alice, nil, &friends))
	require.Len(t, friends, 1)
	assert.Equal(t, "user2", friends[0].Other.ID)

	var notes []models.Notification
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/notifications", alice, nil, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationFriendAccepted, notes[0].Type)

	require.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/api/v1/friends/user1", bob, nil, nil))
	friends = nil
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/friends", alice, nil, &friends))
	assert.Empty(t, friends)
}

func TestRouter_EventLifecycle(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")
	bob := srv.login("user2@example.com")

	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	body := models.Event{
		Title:        "Standup",
		Start:        start,
		End:          start.Add(30 * time.Minute),
		Type:         models.EventTypeWork,
		Participants: []string{"user2"},
		Recurring:    &models.Recurrence{Frequency: models.FrequencyDaily},
	}

	var created models.Event
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/events", alice, body, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "user1", created.CreatedBy)

	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodPost, "/api/v1/events", alice, models.Event{Title: "no times", Type: models.EventTypeWork}, nil))

	var list []models.Event
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/events", alice, nil, &list))
	require.Len(t, list, 1)

	list = nil
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/events?work=false", alice, nil, &list))
	assert.Empty(t, list)

	var occ []services.Occurrence
	window := "from=2024-05-06T00:00:00Z&to=2024-05-09T00:00:00Z"
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/events/occurrences?"+window, alice, nil, &occ))
	assert.Len(t, occ, 3)

	var notes []models.Notification
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/notifications", bob, nil, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationEventInvite, notes[0].Type)

	created.Title = "Daily standup"
	var updated models.Event
	require.Equal(t, http.StatusOK, srv.do(http.MethodPut, "/api/v1/events/"+created.ID, alice, created, &updated))
	assert.Equal(t, "Daily standup", updated.Title)

	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodPut, "/api/v1/events/missing", alice, created, nil))

	require.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/api/v1/events/"+created.ID, alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodDelete, "/api/v1/events/"+created.ID, alice, nil, nil))
}

func TestRouter_ExportICS(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")

	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/events", alice,
		models.Event{Title: "Dentist", Start: start, End: start.Add(time.Hour), Type: models.EventTypePersonal}, nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/events/export.ics", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SUMMARY:Dentist")
}

func TestRouter_MessagesRequireFriendship(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")
	bob := srv.login("user2@example.com")

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodPost, "/api/v1/messages/user2", alice, SendMessageRequest{Content: "hi"}, nil))

	var record models.FriendRecord
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/friend-requests", alice, SendFriendRequestPayload{TargetUserID: "user2"}, &record))
	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/v1/friend-requests/"+record.ID+"/accept", bob, nil, nil))

	var msg models.DirectMessage
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/messages/user2", alice, SendMessageRequest{Content: "hi"}, &msg))
	assert.Equal(t, "hi", msg.Content)

	var convo []models.DirectMessage
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/messages/user1", bob, nil, &convo))
	require.Len(t, convo, 1)
}

func TestRouter_Groups(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")
	bob := srv.login("user2@example.com")

	var group models.Group
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPost, "/api/v1/groups", alice, CreateGroupRequest{Name: "Climbing", MemberIDs: []string{"user2"}}, &group))
	assert.Equal(t, http.StatusTooManyRequests, srv.do(http.MethodPost, "/api/v1/groups", alice, CreateGroupRequest{Name: "Climbing", MemberIDs: []string{"user2"}}, nil))

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodDelete, "/api/v1/groups/"+group.ID, bob, nil, nil))
	require.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/api/v1/groups/"+group.ID, alice, nil, nil))

	var groups []models.Group
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/groups", alice, nil, &groups))
	assert.Empty(t, groups)
}

func (s *testServer) uploadAvatar(token, contentType string) (int, models.User) {
	s.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(s.t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/users/me/avatar", &body)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var user models.User
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&user))
	}
	return resp.StatusCode, user
}

func TestRouter_UploadAvatar(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("user1@example.com")

	status, user := srv.uploadAvatar(alice, "image/png")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/uploads/me.png", user.Avatar)

	status, _ = srv.uploadAvatar(alice, "text/plain")
	assert.Equal(t, http.StatusBadRequest, status)
}
