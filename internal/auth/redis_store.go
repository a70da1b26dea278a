package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cmdable is the subset of the redis client used by RedisStore.
type Cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisStore keeps one key per session with a TTL and a set of session
// ids per user so that a user's sessions can be dropped together.
type RedisStore struct {
	rdb Cmdable
}

func NewRedisStore(rdb Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func sessionKey(id string) string { return "session:" + id }

func userSessionsKey(userID uint) string {
	return "user_sessions:" + strconv.FormatUint(uint64(userID), 10)
}

func (s *RedisStore) Save(ctx context.Context, id string, userID uint, expires time.Time) error {
	ttl := time.Until(expires)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	if err := s.rdb.Set(ctx, sessionKey(id), uint64(userID), ttl).Err(); err != nil {
		return err
	}
	return s.rdb.SAdd(ctx, userSessionsKey(userID), id).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (uint, time.Time, error) {
	v, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, ErrNoSession
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	uid, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, time.Time{}, err
	}
	ttl, err := s.rdb.TTL(ctx, sessionKey(id)).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// key without expiry; treat as valid until the next check
		ttl = time.Minute
	}
	return uint(uid), time.Now().Add(ttl), nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	v, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return err
	}
	if uid, err := strconv.ParseUint(v, 10, 64); err == nil {
		return s.rdb.SRem(ctx, userSessionsKey(uint(uid)), id).Err()
	}
	return nil
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID uint) error {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))
	return s.rdb.Del(ctx, keys...).Err()
}
