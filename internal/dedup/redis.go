package dedup

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenda_os/backend/internal/utils"
)

const redisKeyPrefix = "agenda:dedup:"

// RedisStore shares dedup state between replicas. Keys expire natively after
// TTL, so Prune has nothing to do.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return redisKeyPrefix + strconv.FormatUint(utils.HashStringToUint64(key), 16)
}

func (s *RedisStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, redisKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, v), true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, at time.Time) error {
	return s.client.Set(ctx, redisKey(key), at.UnixNano(), s.ttl).Err()
}

// Add is a SET NX, so replicas racing on the same event agree on one winner.
func (s *RedisStore) Add(ctx context.Context, key string, at time.Time) (bool, error) {
	return s.client.SetNX(ctx, redisKey(key), at.UnixNano(), s.ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}

func (s *RedisStore) Prune(context.Context, time.Time) error {
	return nil
}
