package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"schedle/internal/auth"
	"schedle/internal/config"
	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushes map[string][][]byte
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{pushes: make(map[string][][]byte)}
}

func (p *recordingPusher) Push(userID string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes[userID] = append(p.pushes[userID], payload)
}

func (p *recordingPusher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes[userID])
}

// testEnv wires the services over an in-memory store, the same way the
// server does at startup.
type testEnv struct {
	ctx           context.Context
	kv            *storage.MemoryKV
	parts         *storage.Partitions
	dir           *directory.Directory
	bus           *events.Bus
	pusher        *recordingPusher
	friends       FriendService
	notifications NotificationService
	events        EventService
	groups        GroupService
	messages      MessageService
	identity      AuthService
	sessions      *Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kv := storage.NewMemoryKV()
	parts := storage.NewPartitions(kv, "schedle_")
	dir := directory.New(directory.Generate(5)...)
	bus := events.NewBus()
	pusher := newRecordingPusher()

	notifications := NewNotificationService(parts, dir, pusher)
	bus.Subscribe("notifications", notifications.HandleEvent)

	friends := NewFriendService(parts, dir, bus)
	eventSvc := NewEventService(parts, dir, bus)

	identity, err := NewAuthService(dir, auth.NewMemoryBlacklist(), testConfig())
	require.NoError(t, err)

	return &testEnv{
		ctx:           context.Background(),
		kv:            kv,
		parts:         parts,
		dir:           dir,
		bus:           bus,
		pusher:        pusher,
		friends:       friends,
		notifications: notifications,
		events:        eventSvc,
		groups:        NewGroupService(parts, dir),
		messages:      NewMessageService(parts, friends, dir, pusher),
		identity:      identity,
		sessions:      NewSessions(dir, parts, friends, notifications, eventSvc),
	}
}

func testConfig() config.Config {
	return config.Config{
		Auth:      config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Hour},
		Directory: config.DirectoryConfig{DefaultPassword: "password123"},
	}
}

func (e *testEnv) records(t *testing.T, userID string) []models.FriendRecord {
	t.Helper()
	records, err := e.friends.Records(e.ctx, userID)
	require.NoError(t, err)
	return records
}

func (e *testEnv) notificationsOf(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.notifications.ListNotifications(e.ctx, userID, 0)
	require.NoError(t, err)
	return list
}

func (e *testEnv) befriend(t *testing.T, a, b string) models.FriendRecord {
	t.Helper()
	req, err := e.friends.SendFriendRequest(e.ctx, a, b)
	require.NoError(t, err)
	accepted, err := e.friends.AcceptFriendRequest(e.ctx, b, req.ID)
	require.NoError(t, err)
	return *accepted
}

// fixedClock returns successive instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

// gatedKV pauses the first Get of key after it has read the stored value,
// until release is closed. Later reads of the key are not held back.
type gatedKV struct {
	*storage.MemoryKV
	key     string
	paused  atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newGatedKV(key string) *gatedKV {
	return &gatedKV{
		MemoryKV: storage.NewMemoryKV(),
		key:      key,
		loaded:   make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := g.MemoryKV.Get(ctx, key)
	if key == g.key && g.paused.CompareAndSwap(false, true) {
		close(g.loaded)
		<-g.release
	}
	return value, found, err
}

// failingKV rejects every write to the keys in failOn.
type failingKV struct {
	*storage.MemoryKV
	mu     sync.Mutex
	failOn map[string]bool
}

func newFailingKV() *failingKV {
	return &failingKV{MemoryKV: storage.NewMemoryKV(), failOn: make(map[string]bool)}
}

func (f *failingKV) failWrites(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[key] = true
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failOn[key]
	f.mu.Unlock()
	if fail {
		return errors.New("write refused")
	}
	return f.MemoryKV.Set(ctx, key, value)
}
