package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/testutil"
)

func TestRedisCacheRepo_Set_Get_Delete(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		key := "test:key:1"
		value := []byte("test value")
		ttl := 5 * time.Minute

		require.NoError(t, repo.Set(ctx, key, value, ttl))

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, result)

		actualTTL := mr.TTL(key)
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "test:key:persistent", []byte("v"), 0))
		assert.Equal(t, time.Duration(0), mr.TTL("test:key:persistent"))
	})

	t.Run("get non-existent key", func(t *testing.T) {
		result, err := repo.Get(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("expired key reads as absent", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "test:key:ttl", []byte("short"), time.Second))
		mr.FastForward(2 * time.Second)

		result, err := repo.Get(ctx, "test:key:ttl")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete existing key", func(t *testing.T) {
		key := "test:key:2"
		require.NoError(t, repo.Set(ctx, key, []byte("to be deleted"), time.Minute))

		deleted, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted)

		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete non-existent key", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		require.ErrorIs(t, repo.Set(ctx, "", []byte("x"), 0), ErrEmptyKey)
		_, err := repo.Get(ctx, "")
		require.ErrorIs(t, err, ErrEmptyKey)
		_, err = repo.Delete(ctx, "")
		require.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("health", func(t *testing.T) {
		require.NoError(t, repo.Health(ctx))
	})
}

func TestRedisCacheRepo_ServerDown(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	repo := NewRedisCacheRepo(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Error(t, repo.Health(ctx))
	_, err := repo.Get(ctx, "any")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get")
}
