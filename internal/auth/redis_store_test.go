package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), srv
}

func TestRedisStoreSaveLoad(t *testing.T) {
	s, srv := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sessID, 34, time.Now().Add(time.Hour)))
	assert.True(t, srv.Exists("session:"+sessID))
	assert.True(t, srv.TTL("session:"+sessID) > 0)

	uid, exp, err := s.Load(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, uint(34), uid)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	_, _, err = s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestRedisStoreRejectsExpired(t *testing.T) {
	s, _ := newRedisStore(t)
	err := s.Save(context.Background(), sessID, 34, time.Now().Add(-time.Second))
	assert.Error(t, err)
}

func TestRedisStoreDelete(t *testing.T) {
	s, srv := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sessID, 34, time.Now().Add(time.Hour)))
	require.NoError(t, s.Delete(ctx, sessID))
	assert.False(t, srv.Exists("session:"+sessID))

	// deleting twice is fine
	require.NoError(t, s.Delete(ctx, sessID))
}

func TestRedisStoreDeleteUser(t *testing.T) {
	s, srv := newRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Save(ctx, "a", 34, exp))
	require.NoError(t, s.Save(ctx, "b", 34, exp))
	require.NoError(t, s.Save(ctx, "c", 35, exp))

	require.NoError(t, s.DeleteUser(ctx, 34))
	assert.False(t, srv.Exists("session:a"))
	assert.False(t, srv.Exists("session:b"))
	assert.False(t, srv.Exists("user_sessions:34"))
	assert.True(t, srv.Exists("session:c"))
}
