package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	"github.com/redis/go-redis/v9"
)

// Commander is the subset of redis.Cmdable these stores issue.
type Commander interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

var (
	_ Commander           = (*redis.Client)(nil)
	_ pass.VersionCounter = (*RedisVersionCounter)(nil)
	_ pass.ProgressStore  = (*RedisProgressStore)(nil)
)

func versionKey(server string) string {
	return "gge:" + strings.ToLower(strings.TrimSpace(server)) + ":version"
}

func progressKey(server string) string {
	return "gge:" + strings.ToLower(strings.TrimSpace(server)) + ":progress"
}

type RedisVersionCounter struct {
	client Commander
}

func NewRedisVersionCounter(client Commander) *RedisVersionCounter {
	return &RedisVersionCounter{client: client}
}

func (c *RedisVersionCounter) Increment(ctx context.Context, server string) (int64, error) {
	v, err := c.client.Incr(ctx, versionKey(server)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr version server=%s: %w", server, err)
	}
	return v, nil
}

// RedisProgressStore keeps one hash field per category holding the unix time
// of its last fetch.
type RedisProgressStore struct {
	client Commander
}

func NewRedisProgressStore(client Commander) *RedisProgressStore {
	return &RedisProgressStore{client: client}
}

func (s *RedisProgressStore) MarkFetched(ctx context.Context, server, category string, at time.Time) error {
	if err := s.client.HSet(ctx, progressKey(server), category, strconv.FormatInt(at.Unix(), 10)).Err(); err != nil {
		return fmt.Errorf("hset progress server=%s category=%s: %w", server, category, err)
	}
	return nil
}
