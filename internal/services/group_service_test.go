package services

import (
	"context"
	"testing"
	"time"

	"schedle/internal/directory"
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupCopiesToEveryMember(t *testing.T) {
	env := newTestEnv(t)

	group, err := env.groups.CreateGroup(env.ctx, "user1", " Hikers ", []string{"user2", "user3", "user2", "user1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Hikers", group.Name)
	assert.Equal(t, "user1", group.OwnerID)
	assert.Equal(t, []string{"user1", "user2", "user3"}, group.Members)

	for _, id := range group.Members {
		got, err := env.groups.GetGroup(env.ctx, id, group.ID)
		require.NoError(t, err, id)
		assert.Equal(t, group.Members, got.Members)
	}
	_, err = env.groups.GetGroup(env.ctx, "user4", group.ID)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCreateGroupValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.groups.CreateGroup(env.ctx, "user1", "  ", nil, "")
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = env.groups.CreateGroup(env.ctx, "user1", "Ghosts", []string{"ghost"}, "")
	assert.ErrorIs(t, err, ErrUnknownUser)

	groups, err := env.groups.ListGroups(env.ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestLeaveGroupTransfersOwnership(t *testing.T) {
	env := newTestEnv(t)

	group, err := env.groups.CreateGroup(env.ctx, "user1", "Readers", []string{"user2", "user3"}, "")
	require.NoError(t, err)

	require.NoError(t, env.groups.LeaveGroup(env.ctx, "user1", group.ID))

	left, err := env.groups.ListGroups(env.ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, left)

	for _, id := range []string{"user2", "user3"} {
		got, err := env.groups.GetGroup(env.ctx, id, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"user2", "user3"}, got.Members)
		assert.Equal(t, "user2", got.OwnerID)
	}

	assert.ErrorIs(t, env.groups.LeaveGroup(env.ctx, "user1", group.ID), ErrGroupNotFound)
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	env := newTestEnv(t)

	group, err := env.groups.CreateGroup(env.ctx, "user1", "Band", []string{"user2"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.groups.DeleteGroup(env.ctx, "user2", group.ID), ErrNotGroupOwner)
	require.NoError(t, env.groups.DeleteGroup(env.ctx, "user1", group.ID))

	for _, id := range []string{"user1", "user2"} {
		groups, err := env.groups.ListGroups(env.ctx, id)
		require.NoError(t, err)
		assert.Empty(t, groups, id)
	}
}

func TestGroupsAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.groups.CreateGroup(env.ctx, "user1", "A", []string{"user2"}, "")
	require.NoError(t, err)
	_, err = env.groups.CreateGroup(env.ctx, "user2", "B", []string{"user3"}, "")
	require.NoError(t, err)

	require.NoError(t, env.groups.DeleteGroup(env.ctx, "user1", a.ID))

	groups, err := env.groups.ListGroups(env.ctx, "user2")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "B", groups[0].Name)
}

func TestDeleteGroupRestoresPartitionsWhenASaveFails(t *testing.T) {
	ctx := context.Background()
	kv := newFailingKV()
	parts := storage.NewPartitions(kv, "schedle_")
	groups := NewGroupService(parts, directory.New(directory.Generate(5)...))

	group, err := groups.CreateGroup(ctx, "user1", "Climbers", []string{"user2", "user3"}, "")
	require.NoError(t, err)

	kv.failWrites(parts.Key("user3", models.PartitionGroups))
	assert.Error(t, groups.DeleteGroup(ctx, "user1", group.ID))

	for _, id := range group.Members {
		got, err := groups.GetGroup(ctx, id, group.ID)
		require.NoError(t, err, id)
		assert.Equal(t, group.Members, got.Members, id)
	}
}

func TestLeaveGroupRereadsMembersUnderLock(t *testing.T) {
	ctx := context.Background()
	kv := newGatedKV("schedle_groups_user2")
	parts := storage.NewPartitions(kv, "schedle_")
	groups := NewGroupService(parts, directory.New(directory.Generate(5)...))

	group := models.Group{ID: "g1", Name: "Climbers", Members: []string{"user1", "user2", "user3"}, OwnerID: "user1", CreatedAt: time.Now().UTC()}
	for _, id := range group.Members {
		require.NoError(t, storage.Save(ctx, parts, id, models.PartitionGroups, []models.Group{group}))
	}

	// user2 读到旧的成员列表后暂停
	done := make(chan error, 1)
	go func() { done <- groups.LeaveGroup(ctx, "user2", group.ID) }()
	<-kv.loaded

	require.NoError(t, groups.LeaveGroup(ctx, "user3", group.ID))
	close(kv.release)
	require.NoError(t, <-done)

	got, err := groups.GetGroup(ctx, "user1", group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, got.Members)
	assert.Equal(t, "user1", got.OwnerID)

	for _, id := range []string{"user2", "user3"} {
		_, err := groups.GetGroup(ctx, id, group.ID)
		assert.ErrorIs(t, err, ErrGroupNotFound, id)
	}
}
