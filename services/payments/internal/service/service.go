// Package service ties admission control, idempotency, and the decision
// agent into the single ProcessPayment operation the handlers expose.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paynow/paynow/services/payments/internal/agent"
	"github.com/paynow/paynow/services/payments/internal/idempotency"
)

var (
	// ErrRateLimited reports an admission denial.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrDuplicateInFlight reports a concurrent request holding the same
	// idempotency token.
	ErrDuplicateInFlight = errors.New("duplicate request in flight")
)

// Decider runs the decision pipeline.
type Decider interface {
	Decide(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// Limiter admits or rejects by customer key.
type Limiter interface {
	Allow(ctx context.Context, customerKey string, cost int) (bool, error)
}

// Deduper is the idempotency coordinator surface the service uses.
type Deduper interface {
	Check(ctx context.Context, requestID string) (idempotency.Result, error)
	CacheResponse(ctx context.Context, requestID string, resp *agent.Response) error
	Remove(ctx context.Context, requestID string) error
}

// EventPublisher emits decision events.
type EventPublisher interface {
	PaymentDecided(ctx context.Context, req agent.Request, resp *agent.Response) error
}

// Service processes payment decision requests.
type Service struct {
	agent   Decider
	limiter Limiter
	idem    Deduper
	events  EventPublisher
	metrics *Metrics
	logger  *slog.Logger

	decideRetries int
	retryDelay    time.Duration
	publishWait   time.Duration
}

// Option mutates a Service during construction.
type Option func(*Service)

// WithRetryPolicy sets how many extra Decide attempts follow a
// retryable failure, and the fixed delay between them.
func WithRetryPolicy(retries int, delay time.Duration) Option {
	return func(s *Service) {
		if retries >= 0 {
			s.decideRetries = retries
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

func New(decider Decider, limiter Limiter, idem Deduper, events EventPublisher, metrics *Metrics, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		agent:         decider,
		limiter:       limiter,
		idem:          idem,
		events:        events,
		metrics:       metrics,
		logger:        logger,
		decideRetries: 2,
		retryDelay:    500 * time.Millisecond,
		publishWait:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPayment runs one decision request end to end: dedup, admission,
// decide (with bounded retries), cache, and asynchronous event emission.
func (s *Service) ProcessPayment(ctx context.Context, req agent.Request) (*agent.Response, error) {
	started := time.Now()

	check, err := s.idem.Check(ctx, req.RequestID)
	if err != nil {
		// Fail open: dedup is lost for this request, liveness is not.
		s.metrics.StoreFailures.WithLabelValues("idempotency").Inc()
		s.logger.Warn("idempotency check degraded",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()),
		)
	}
	switch check.Status {
	case idempotency.StatusCached:
		s.metrics.DuplicateHits.WithLabelValues("cached").Inc()
		return check.Response, nil
	case idempotency.StatusInProgress:
		s.metrics.DuplicateHits.WithLabelValues("in_flight").Inc()
		return nil, ErrDuplicateInFlight
	}

	allowed, lerr := s.limiter.Allow(ctx, req.CustomerID, 1)
	if lerr != nil {
		s.metrics.StoreFailures.WithLabelValues("rate_limiter").Inc()
		s.logger.Warn("rate limiter degraded",
			slog.String("customer_id", req.CustomerID),
			slog.String("error", lerr.Error()),
		)
	}
	if !allowed {
		s.metrics.RateLimited.Inc()
		// Release the claim so a later retry is not mistaken for a
		// duplicate of a request that never ran.
		if rerr := s.idem.Remove(ctx, req.RequestID); rerr != nil {
			s.logger.Warn("failed to release idempotency claim",
				slog.String("request_id", req.RequestID),
				slog.String("error", rerr.Error()),
			)
		}
		return nil, ErrRateLimited
	}

	resp, derr := s.decideWithRetry(ctx, req)
	if derr != nil {
		s.logger.Error("decision pipeline exhausted retries",
			slog.String("request_id", req.RequestID),
			slog.String("error", derr.Error()),
		)
	}

	if cerr := s.idem.CacheResponse(ctx, req.RequestID, resp); cerr != nil {
		s.metrics.StoreFailures.WithLabelValues("idempotency").Inc()
		s.logger.Warn("response caching degraded",
			slog.String("request_id", req.RequestID),
			slog.String("error", cerr.Error()),
		)
	}

	s.metrics.DecisionCount.WithLabelValues(string(resp.Decision)).Inc()
	s.metrics.DecisionDuration.WithLabelValues(string(resp.Decision)).Observe(time.Since(started).Seconds())

	s.publishAsync(ctx, req, resp)
	return resp, nil
}

// decideWithRetry runs the agent, repeating on retryable failures with a
// fixed delay. Repeats are safe: reservation tokens are unique and the
// idempotency claim is already held by this caller.
func (s *Service) decideWithRetry(ctx context.Context, req agent.Request) (*agent.Response, error) {
	resp, err := s.agent.Decide(ctx, req)
	for attempt := 0; attempt < s.decideRetries && errors.Is(err, agent.ErrRetryable); attempt++ {
		select {
		case <-ctx.Done():
			return resp, err
		case <-time.After(s.retryDelay):
		}
		s.logger.Warn("retrying decision",
			slog.String("request_id", req.RequestID),
			slog.Int("attempt", attempt+2),
		)
		resp, err = s.agent.Decide(ctx, req)
	}
	return resp, err
}

func (s *Service) publishAsync(ctx context.Context, req agent.Request, resp *agent.Response) {
	if s.events == nil {
		return
	}
	// Detached from the request context: the caller should not wait on
	// the broker, and a cancelled request must not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishWait)
	go func() {
		defer cancel()
		if err := s.events.PaymentDecided(pubCtx, req, resp); err != nil {
			s.metrics.EventPublishFails.Inc()
		}
	}()
}
