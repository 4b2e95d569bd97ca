package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRequiresFriendship(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.messages.SendMessage(env.ctx, "user1", "user2", "hi")
	assert.ErrorIs(t, err, ErrNotFriends)

	_, err = env.messages.SendMessage(env.ctx, "user1", "ghost", "hi")
	assert.ErrorIs(t, err, ErrUnknownUser)

	env.befriend(t, "user1", "user2")
	_, err = env.messages.SendMessage(env.ctx, "user1", "user2", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestConversationIsMirrored(t *testing.T) {
	env := newTestEnv(t)
	env.messages.(*messageService).now = fixedClock(day0)
	env.befriend(t, "user1", "user2")
	pushesBefore := env.pusher.count("user2")

	_, err := env.messages.SendMessage(env.ctx, "user1", "user2", "hello")
	require.NoError(t, err)
	_, err = env.messages.SendMessage(env.ctx, "user2", "user1", "hey there")
	require.NoError(t, err)

	for _, pair := range [][2]string{{"user1", "user2"}, {"user2", "user1"}} {
		conv, err := env.messages.Conversation(env.ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, conv, 2)
		assert.Equal(t, "hello", conv[0].Content)
		assert.Equal(t, "hey there", conv[1].Content)
	}
	assert.Equal(t, pushesBefore+1, env.pusher.count("user2"))
}

func TestConversationsMostRecentFirst(t *testing.T) {
	env := newTestEnv(t)
	env.messages.(*messageService).now = fixedClock(day0)
	env.befriend(t, "user1", "user2")
	env.befriend(t, "user1", "user3")

	_, err := env.messages.SendMessage(env.ctx, "user1", "user2", "one")
	require.NoError(t, err)
	_, err = env.messages.SendMessage(env.ctx, "user3", "user1", "two")
	require.NoError(t, err)
	_, err = env.messages.SendMessage(env.ctx, "user1", "user2", "three")
	require.NoError(t, err)

	summaries, err := env.messages.Conversations(env.ctx, "user1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "user2", summaries[0].With.ID)
	assert.Equal(t, "three", summaries[0].LastMessage.Content)
	assert.Equal(t, day0.Add(2*time.Second), summaries[0].LastMessage.Timestamp)
	assert.Equal(t, "user3", summaries[1].With.ID)
	assert.Equal(t, "User 3", summaries[1].With.Name)
}
