package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNotification(t *testing.T, env *testEnv, userID, title string) *models.Notification {
	t.Helper()
	n, err := env.notifications.AddNotification(env.ctx, NotificationInput{
		UserID: userID,
		Title:  title,
		Type:   models.NotificationSystem,
	})
	require.NoError(t, err)
	return n
}

func TestAddNotificationMostRecentFirst(t *testing.T) {
	env := newTestEnv(t)

	addNotification(t, env, "user1", "first")
	addNotification(t, env, "user1", "second")
	addNotification(t, env, "user1", "third")

	list := env.notificationsOf(t, "user1")
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "first", list[2].Title)
	for _, n := range list {
		assert.Equal(t, "user1", n.UserID)
		assert.False(t, n.IsRead)
		assert.NotEmpty(t, n.ID)
	}

	limited, err := env.notifications.ListNotifications(env.ctx, "user1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].Title)
}

func TestAddNotificationValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.notifications.AddNotification(env.ctx, NotificationInput{Title: "x", Type: models.NotificationSystem})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, err = env.notifications.AddNotification(env.ctx, NotificationInput{UserID: "user1", Type: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidNotification)
	assert.Empty(t, env.notificationsOf(t, "user1"))
}

func TestAddNotificationPushesToRecipient(t *testing.T) {
	env := newTestEnv(t)

	n := addNotification(t, env, "user3", "hello")
	require.Equal(t, 1, env.pusher.count("user3"))

	var msg struct {
		Type string              `json:"type"`
		Data models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.pusher.pushes["user3"][0], &msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, n.ID, msg.Data.ID)
	assert.Equal(t, "hello", msg.Data.Title)
}

func TestMarkNotificationAsReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	first := addNotification(t, env, "user1", "first")
	addNotification(t, env, "user1", "second")

	require.NoError(t, env.notifications.MarkNotificationAsRead(env.ctx, "user1", first.ID))
	once, ok, err := env.parts.Raw(env.ctx, "user1", models.PartitionNotifications)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.notifications.MarkNotificationAsRead(env.ctx, "user1", first.ID))
	twice, _, err := env.parts.Raw(env.ctx, "user1", models.PartitionNotifications)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))

	list := env.notificationsOf(t, "user1")
	assert.False(t, list[0].IsRead)
	assert.True(t, list[1].IsRead)

	// Unknown ids are ignored.
	assert.NoError(t, env.notifications.MarkNotificationAsRead(env.ctx, "user1", "missing"))
}

func TestMarkNotificationAsReadIsScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	n := addNotification(t, env, "user1", "mine")

	require.NoError(t, env.notifications.MarkNotificationAsRead(env.ctx, "user2", n.ID))
	assert.False(t, env.notificationsOf(t, "user1")[0].IsRead)
}

func TestUnreadCountAndMarkAll(t *testing.T) {
	env := newTestEnv(t)
	first := addNotification(t, env, "user1", "a")
	addNotification(t, env, "user1", "b")
	addNotification(t, env, "user1", "c")

	require.NoError(t, env.notifications.MarkNotificationAsRead(env.ctx, "user1", first.ID))
	count, err := env.notifications.UnreadCount(env.ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, env.notifications.MarkAllAsRead(env.ctx, "user1"))
	count, err = env.notifications.UnreadCount(env.ctx, "user1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, env.notificationsOf(t, "user1"), 3)
}

func TestClearNotifications(t *testing.T) {
	env := newTestEnv(t)
	addNotification(t, env, "user1", "a")
	addNotification(t, env, "user2", "b")

	require.NoError(t, env.notifications.ClearNotifications(env.ctx, "user1"))
	assert.Empty(t, env.notificationsOf(t, "user1"))
	assert.Len(t, env.notificationsOf(t, "user2"), 1)
}

func TestClearNotificationsWaitsForConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	kv := newGatedKV("schedle_notifications_user1")
	parts := storage.NewPartitions(kv, "schedle_")
	svc := NewNotificationService(parts, directory.New(directory.Generate(2)...), nil)

	old := models.Notification{ID: "n-old", UserID: "user1", Title: "old", Type: models.NotificationSystem}
	require.NoError(t, storage.Save(ctx, parts, "user1", models.PartitionNotifications, []models.Notification{old}))

	addDone := make(chan error, 1)
	go func() {
		_, err := svc.AddNotification(ctx, NotificationInput{UserID: "user1", Title: "new", Type: models.NotificationSystem})
		addDone <- err
	}()
	<-kv.loaded

	clearDone := make(chan error, 1)
	go func() { clearDone <- svc.ClearNotifications(ctx, "user1") }()

	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-clearDone:
		t.Fatalf("clear returned (%v) while an add held the partition", err)
	default:
	}

	close(kv.release)
	require.NoError(t, <-addDone)
	require.NoError(t, <-clearDone)

	list, err := svc.ListNotifications(ctx, "user1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHandleEventFanOutSkipsActor(t *testing.T) {
	env := newTestEnv(t)

	err := env.notifications.HandleEvent(env.ctx, events.EventUpdated{EventChange: events.EventChange{
		EventID:        "ev1",
		Title:          "Standup",
		ActorID:        "user1",
		ParticipantIDs: []string{"user1", "user2", "user3", "user2"},
	}})
	require.NoError(t, err)

	assert.Empty(t, env.notificationsOf(t, "user1"))
	for _, id := range []string{"user2", "user3"} {
		list := env.notificationsOf(t, id)
		require.Len(t, list, 1, id)
		assert.Equal(t, models.NotificationEventUpdate, list[0].Type)
		assert.Equal(t, "ev1", list[0].RelatedID)
		assert.Contains(t, list[0].Message, "Standup")
	}
}

func TestHandleEventCancelled(t *testing.T) {
	env := newTestEnv(t)

	err := env.notifications.HandleEvent(env.ctx, events.EventCancelled{EventChange: events.EventChange{
		EventID: "ev1", Title: "Lunch", ActorID: "user1", ParticipantIDs: []string{"user2"},
	}})
	require.NoError(t, err)

	list := env.notificationsOf(t, "user2")
	require.Len(t, list, 1)
	assert.Equal(t, "Event cancelled", list[0].Title)
	assert.Equal(t, models.NotificationEventUpdate, list[0].Type)
}

type unknownEvent struct{}

func (unknownEvent) EventType() events.Type { return "unknown" }
func (unknownEvent) Recipients() []string   { return nil }

func TestHandleEventRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	assert.Error(t, env.notifications.HandleEvent(env.ctx, unknownEvent{}))
}
