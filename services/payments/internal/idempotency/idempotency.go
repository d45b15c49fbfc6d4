// Package idempotency deduplicates payment decisions by request id. The
// first caller claims the id with an atomic check-and-set and runs the
// pipeline; concurrent retries observe an in-progress marker, later
// retries get the cached response back.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paynow/paynow/services/payments/internal/agent"
	"github.com/paynow/paynow/services/payments/internal/atomicstore"
)

// processingSentinel marks a request that was claimed but has no cached
// response yet. It must never be valid JSON for agent.Response.
const processingSentinel = "__processing__"

// checkAndSetScript claims the key with the in-progress sentinel when it
// is absent, otherwise returns the stored value. Claim and read are a
// single atomic step so two concurrent first requests cannot both win.
var checkAndSetScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
  return existing
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return false
`)

// Status describes what the coordinator knows about a request id.
type Status int

const (
	// StatusAbsent means the caller claimed the id and owns processing.
	StatusAbsent Status = iota
	// StatusInProgress means another caller claimed the id and has not
	// cached a response yet.
	StatusInProgress
	// StatusCached means a completed response is available.
	StatusCached
)

// Result of a Check call. Response is set only for StatusCached.
type Result struct {
	Status   Status
	Response *agent.Response
}

// Coordinator implements first-writer-wins deduplication on top of the
// atomic store.
type Coordinator struct {
	store       atomicstore.Client
	prefix      string
	pendingTTL  time.Duration
	responseTTL time.Duration
}

// Option mutates a Coordinator during construction.
type Option func(*Coordinator)

// WithTTLs overrides the in-progress claim TTL and the cached response TTL.
func WithTTLs(pending, response time.Duration) Option {
	return func(c *Coordinator) {
		if pending > 0 {
			c.pendingTTL = pending
		}
		if response > 0 {
			c.responseTTL = response
		}
	}
}

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *Coordinator) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func New(store atomicstore.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		prefix:      "paynow:payments:idem:",
		pendingTTL:  5 * time.Minute,
		responseTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) key(requestID string) string {
	return c.prefix + requestID
}

// Check claims the request id or reports what is already stored under it.
// Store failures degrade to StatusAbsent with a non-nil error so an
// outage never blocks payments; the caller loses dedup, not liveness.
func (c *Coordinator) Check(ctx context.Context, requestID string) (Result, error) {
	pendingSecs := int(c.pendingTTL / time.Second)
	raw, err := c.store.Eval(ctx, checkAndSetScript, []string{c.key(requestID)}, processingSentinel, pendingSecs)
	if err != nil {
		return Result{Status: StatusAbsent}, fmt.Errorf("idempotency check for %s: %w", requestID, err)
	}
	if raw == nil {
		// Key was absent, the claim succeeded.
		return Result{Status: StatusAbsent}, nil
	}

	stored, ok := raw.(string)
	if !ok {
		return Result{Status: StatusAbsent}, fmt.Errorf("idempotency check for %s: unexpected result type %T", requestID, raw)
	}
	if stored == processingSentinel {
		return Result{Status: StatusInProgress}, nil
	}

	var resp agent.Response
	if err := json.Unmarshal([]byte(stored), &resp); err != nil {
		// A corrupt entry is unrecoverable; drop it and let the caller
		// reprocess rather than serving garbage forever.
		_ = c.store.Del(ctx, c.key(requestID))
		return Result{Status: StatusAbsent}, fmt.Errorf("idempotency cache for %s corrupt: %w", requestID, err)
	}
	return Result{Status: StatusCached, Response: &resp}, nil
}

// CacheResponse replaces the in-progress marker with the final response.
func (c *Coordinator) CacheResponse(ctx context.Context, requestID string, resp *agent.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response for %s: %w", requestID, err)
	}
	if err := c.store.Set(ctx, c.key(requestID), string(body), c.responseTTL); err != nil {
		return fmt.Errorf("cache response for %s: %w", requestID, err)
	}
	return nil
}

// Remove drops the claim for a request that never produced a decision,
// such as one rejected by the rate limiter, so a retry is not treated
// as a duplicate.
func (c *Coordinator) Remove(ctx context.Context, requestID string) error {
	if err := c.store.Del(ctx, c.key(requestID)); err != nil {
		return fmt.Errorf("remove idempotency claim for %s: %w", requestID, err)
	}
	return nil
}
