package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, found, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	value := []byte("[1]")
	require.NoError(t, kv.Set(ctx, "events_user1", value))
	value[0] = 'x'

	got, found, err := kv.Get(ctx, "events_user1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[1]", string(got))

	require.NoError(t, kv.Set(ctx, "friends_user1", []byte("[]")))
	require.NoError(t, kv.Set(ctx, "friends_user2", []byte("[]")))

	keys, err := kv.Keys(ctx, "friends_")
	require.NoError(t, err)
	assert.Equal(t, []string{"friends_user1", "friends_user2"}, keys)

	require.NoError(t, kv.Delete(ctx, "friends_user1"))
	keys, err = kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"events_user1", "friends_user2"}, keys)
}
