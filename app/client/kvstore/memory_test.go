package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.SetEx(ctx, "key", "value", time.Hour))

	value, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value", value)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Now()
	store.Now = func() time.Time { return now }

	require.NoError(t, store.SetEx(ctx, "key", "value", time.Minute))

	now = now.Add(2 * time.Minute)

	_, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, found)

	exists, err := store.Exists(ctx, "key")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryStore_Incr(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	count, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// A counter resets to absent after expiry
	now := time.Now()
	store.Now = func() time.Time { return now }
	require.NoError(t, store.Expire(ctx, "counter", time.Minute))

	now = now.Add(2 * time.Minute)

	count, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	acquired, err := store.SetNX(ctx, "lock", "1", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = store.SetNX(ctx, "lock", "1", time.Hour)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, store.Del(ctx, "lock"))

	acquired, err = store.SetNX(ctx, "lock", "1", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	values, err := store.LRange(ctx, "list")
	require.NoError(t, err)
	require.Empty(t, values)

	require.NoError(t, store.RPush(ctx, "list", "a", "b"))
	require.NoError(t, store.RPush(ctx, "list", "c"))

	values, err = store.LRange(ctx, "list")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, values)

	require.NoError(t, store.Del(ctx, "list"))

	values, err = store.LRange(ctx, "list")
	require.NoError(t, err)
	require.Empty(t, values)
}
