package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("Should connect with the configured database and pool", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(t.Context(), config.RedisConfig{Addr: mr.Addr(), DB: 2, PoolSize: 4})
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 4, client.Options().PoolSize)
		require.NoError(t, client.Set(t.Context(), "k", "v", 0).Err())
		mr.Select(2)
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("Should name the connection", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(t.Context(), config.RedisConfig{Addr: mr.Addr()})
		require.NoError(t, err)
		defer client.Close()

		name, err := client.ClientGetName(t.Context()).Result()
		require.NoError(t, err)
		assert.Equal(t, "docqa", name)
	})

	t.Run("Should require an address", func(t *testing.T) {
		_, err := New(t.Context(), config.RedisConfig{})
		require.Error(t, err)
	})

	t.Run("Should fail when the server rejects the password", func(t *testing.T) {
		mr := miniredis.RunT(t)
		mr.RequireAuth("right")
		_, err := New(t.Context(), config.RedisConfig{Addr: mr.Addr(), Password: "wrong"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping redis "+mr.Addr()+" failed")
	})
}
