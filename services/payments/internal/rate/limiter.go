package rate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paynow/paynow/services/payments/internal/atomicstore"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "paynow:payments:rl:"
	minKeyTTL     = 60 // seconds
)

// One round trip: read the bucket, refill by elapsed time, decide, persist.
// Refill progress is persisted on denials too, so a denied caller does not
// lose the tokens accrued while waiting.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_sec = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + math.floor(elapsed * refill_per_sec))

local allowed = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, ttl)
return allowed
`)

// Limiter is a per-customer token bucket backed by the atomic store.
type Limiter struct {
	store        atomicstore.Client
	capacity     int
	refillPerSec float64
	prefix       string
	keyTTL       int
	now          func() time.Time
}

// New builds a limiter with the given bucket capacity and refill rate. The
// bucket key expires after a period of inactivity derived from how long a
// drained bucket takes to refill, with a 60s floor.
func New(store atomicstore.Client, capacity int, refillPerSec float64, prefix string) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if refillPerSec <= 0 {
		return nil, fmt.Errorf("refill rate must be positive")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}

	ttl := int(math.Ceil(float64(capacity)/refillPerSec)) * 2
	if ttl < minKeyTTL {
		ttl = minKeyTTL
	}

	return &Limiter{
		store:        store,
		capacity:     capacity,
		refillPerSec: refillPerSec,
		prefix:       prefix,
		keyTTL:       ttl,
		now:          time.Now,
	}, nil
}

// Allow reports whether the customer may proceed at the given cost.
//
// Store failures fail open: the request is admitted and the error is returned
// alongside so the caller can count and alert on it. Business correctness
// never depends on the limiter being reachable.
func (l *Limiter) Allow(ctx context.Context, customerKey string, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}

	res, err := l.store.Eval(ctx, tokenBucketScript,
		[]string{l.prefix + customerKey},
		l.capacity,
		l.refillPerSec,
		cost,
		l.now().Unix(),
		l.keyTTL,
	)
	if err != nil {
		return true, fmt.Errorf("rate limit check: %w", err)
	}

	allowed, ok := res.(int64)
	if !ok {
		return true, fmt.Errorf("rate limit check: unexpected script result %T", res)
	}
	return allowed == 1, nil
}
