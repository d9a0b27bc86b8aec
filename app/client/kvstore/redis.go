package kvstore

import (
	"chatgate/app/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

var _ Store = (*RedisStore)(nil)
var _ do.Shutdownable = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedis(di *do.Injector) (Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}

	return value, true, nil
}

func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}

	return acquired, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %q: %w", key, err)
	}

	return value, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}

	return count > 0, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}

	if err := s.client.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis rpush %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) LRange(ctx context.Context, key string) ([]string, error) {
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %q: %w", key, err)
	}

	return values, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

func (s *RedisStore) Shutdown() error {
	return s.client.Close()
}
