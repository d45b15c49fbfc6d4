package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/payments/internal/agent"
	"github.com/paynow/paynow/services/payments/internal/idempotency"
)

type fakeDecider struct {
	calls    int
	failures int
	resp     *agent.Response
}

func (f *fakeDecider) Decide(ctx context.Context, req agent.Request) (*agent.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return &agent.Response{
			Decision:  agent.DecisionReview,
			Reasons:   []string{agent.ReasonProcessingError},
			RequestID: req.RequestID,
		}, fmt.Errorf("%w: transient", agent.ErrRetryable)
	}
	return f.resp, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, cost int) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type fakeDeduper struct {
	result  idempotency.Result
	err     error
	cached  *agent.Response
	removed []string
}

func (f *fakeDeduper) Check(ctx context.Context, requestID string) (idempotency.Result, error) {
	return f.result, f.err
}

func (f *fakeDeduper) CacheResponse(ctx context.Context, requestID string, resp *agent.Response) error {
	f.cached = resp
	return nil
}

func (f *fakeDeduper) Remove(ctx context.Context, requestID string) error {
	f.removed = append(f.removed, requestID)
	return nil
}

type fakeEvents struct {
	published chan *agent.Response
}

func (f *fakeEvents) PaymentDecided(ctx context.Context, req agent.Request, resp *agent.Response) error {
	if f.published != nil {
		f.published <- resp
	}
	return nil
}

func allowResponse() *agent.Response {
	return &agent.Response{
		Decision:  agent.DecisionAllow,
		Reasons:   []string{agent.ReasonLowRisk},
		RequestID: "req_1",
	}
}

func testRequest() agent.Request {
	return agent.Request{RequestID: "req_1", CustomerID: "c_1", Amount: decimal.NewFromInt(100), Currency: "USD", PayeeID: "p_1"}
}

func newTestService(d *fakeDecider, l *fakeLimiter, i *fakeDeduper, e *fakeEvents) *Service {
	return New(d, l, i, e, NewMetrics(), slog.New(slog.DiscardHandler),
		WithRetryPolicy(2, time.Millisecond))
}

func TestProcessPaymentHappyPath(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse()}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusAbsent}}
	events := &fakeEvents{published: make(chan *agent.Response, 1)}
	svc := newTestService(decider, &fakeLimiter{allowed: true}, deduper, events)

	resp, err := svc.ProcessPayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if resp.Decision != agent.DecisionAllow {
		t.Fatalf("decision = %s", resp.Decision)
	}
	if deduper.cached == nil || deduper.cached.Decision != agent.DecisionAllow {
		t.Fatalf("final response was not cached")
	}
	select {
	case got := <-events.published:
		if got.RequestID != "req_1" {
			t.Fatalf("event for wrong request: %s", got.RequestID)
		}
	case <-time.After(time.Second):
		t.Fatalf("decision event not published")
	}
}

func TestProcessPaymentReturnsCachedResponse(t *testing.T) {
	cached := allowResponse()
	decider := &fakeDecider{resp: allowResponse()}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusCached, Response: cached}}
	limiter := &fakeLimiter{allowed: true}
	svc := newTestService(decider, limiter, deduper, nil)

	resp, err := svc.ProcessPayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if resp != cached {
		t.Fatalf("expected the cached response back")
	}
	if decider.calls != 0 {
		t.Fatalf("cached hit must not reprocess, agent called %d times", decider.calls)
	}
	if limiter.calls != 0 {
		t.Fatalf("cached hit must not consume rate tokens")
	}
}

func TestProcessPaymentRejectsConcurrentDuplicate(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse()}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusInProgress}}
	svc := newTestService(decider, &fakeLimiter{allowed: true}, deduper, nil)

	_, err := svc.ProcessPayment(context.Background(), testRequest())
	if !errors.Is(err, ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
	if decider.calls != 0 {
		t.Fatalf("in-flight duplicate must not reprocess")
	}
}

func TestProcessPaymentRateLimitReleasesClaim(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse()}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusAbsent}}
	svc := newTestService(decider, &fakeLimiter{allowed: false}, deduper, nil)

	_, err := svc.ProcessPayment(context.Background(), testRequest())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(deduper.removed) != 1 || deduper.removed[0] != "req_1" {
		t.Fatalf("denied request must release its claim, removed = %v", deduper.removed)
	}
	if decider.calls != 0 {
		t.Fatalf("denied request must not reach the agent")
	}
}

func TestProcessPaymentRetriesRetryableFailures(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse(), failures: 2}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusAbsent}}
	svc := newTestService(decider, &fakeLimiter{allowed: true}, deduper, nil)

	resp, err := svc.ProcessPayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if resp.Decision != agent.DecisionAllow {
		t.Fatalf("decision = %s, want ALLOW from third attempt", resp.Decision)
	}
	if decider.calls != 3 {
		t.Fatalf("expected 3 attempts, saw %d", decider.calls)
	}
}

func TestProcessPaymentExhaustedRetriesReturnsSafeDefault(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse(), failures: 10}
	deduper := &fakeDeduper{result: idempotency.Result{Status: idempotency.StatusAbsent}}
	svc := newTestService(decider, &fakeLimiter{allowed: true}, deduper, nil)

	resp, err := svc.ProcessPayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("exhausted retries still return the safe default, got %v", err)
	}
	if resp.Decision != agent.DecisionReview {
		t.Fatalf("decision = %s, want REVIEW safe default", resp.Decision)
	}
	if decider.calls != 3 {
		t.Fatalf("expected 1+2 attempts, saw %d", decider.calls)
	}
	if deduper.cached == nil || deduper.cached.Decision != agent.DecisionReview {
		t.Fatalf("safe default must still be cached")
	}
}

func TestProcessPaymentStoreOutageFailsOpen(t *testing.T) {
	decider := &fakeDecider{resp: allowResponse()}
	deduper := &fakeDeduper{
		result: idempotency.Result{Status: idempotency.StatusAbsent},
		err:    errors.New("store down"),
	}
	limiter := &fakeLimiter{allowed: true, err: errors.New("store down")}
	svc := newTestService(decider, limiter, deduper, nil)

	resp, err := svc.ProcessPayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("store outages must not fail the request: %v", err)
	}
	if resp.Decision != agent.DecisionAllow {
		t.Fatalf("decision = %s", resp.Decision)
	}
}
