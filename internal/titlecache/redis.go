package titlecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "viewerhub:title:"

// RedisStore keeps titles in Redis so they survive restarts and are
// shared across instances. Redis failures degrade to cache misses.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, videoID string) (string, bool) {
	title, err := s.client.Get(ctx, redisKeyPrefix+videoID).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("title cache read failed", "video_id", videoID, "error", err)
		}
		return "", false
	}
	return title, true
}

func (s *RedisStore) Set(ctx context.Context, videoID, title string) {
	if err := s.client.Set(ctx, redisKeyPrefix+videoID, title, s.ttl).Err(); err != nil {
		slog.Warn("title cache write failed", "video_id", videoID, "error", err)
	}
}
