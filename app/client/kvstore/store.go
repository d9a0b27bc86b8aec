package kvstore

import (
	"context"
	"time"
)

// Store is the atomic counter/TTL storage the admission and context services
// run on. Every operation touches a single key; no transactions.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string) ([]string, error)
	Ping(ctx context.Context) error
}
