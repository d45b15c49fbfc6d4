// Package atomicstore is a thin contract over the shared Redis instance used
// for cross-instance coordination (idempotency records, rate buckets). Every
// read-modify-write the callers need is expressed as a single server-side
// script so correctness holds across process instances.
package atomicstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound reports a key miss on Get.
var ErrNotFound = errors.New("key not found")

// Client is the subset of store operations the coordination components use.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
}

type redisClient struct {
	rdb *redis.Client
}

// New wraps a go-redis client in the Client contract.
func New(rdb *redis.Client) Client {
	return &redisClient{rdb: rdb}
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *redisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisClient) Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		// A script returning false comes back as a nil reply.
		return nil, nil
	}
	return res, err
}
