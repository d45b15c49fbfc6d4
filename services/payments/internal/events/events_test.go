package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/payments/internal/agent"
)

type fakeProducer struct {
	topic string
	key   string
	value any
	err   error
}

func (f *fakeProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	f.topic, f.key, f.value = topic, key, value
	return 0, 0, f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestPaymentDecidedPublishesEnvelope(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, slog.New(slog.DiscardHandler))

	req := agent.Request{RequestID: "req_1", CustomerID: "c_1", Amount: decimal.NewFromInt(100), Currency: "USD", PayeeID: "p_1"}
	resp := &agent.Response{Decision: agent.DecisionAllow, Reasons: []string{agent.ReasonLowRisk}, RequestID: "req_1"}

	if err := p.PaymentDecided(context.Background(), req, resp); err != nil {
		t.Fatalf("PaymentDecided: %v", err)
	}
	if producer.topic != TopicPaymentDecided {
		t.Fatalf("topic = %q", producer.topic)
	}
	if producer.key != "c_1" {
		t.Fatalf("key = %q, events must be keyed by customer", producer.key)
	}

	event, ok := producer.value.(PaymentDecided)
	if !ok {
		t.Fatalf("payload type %T", producer.value)
	}
	if event.Decision != "ALLOW" || event.RequestID != "req_1" || event.CorrelationID != "req_1" {
		t.Fatalf("payload incomplete: %+v", event)
	}
	if !strings.HasPrefix(event.EventID, "evt_") {
		t.Fatalf("event id = %q", event.EventID)
	}
}

func TestPaymentDecidedReportsBrokerFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	p := NewPublisher(producer, slog.New(slog.DiscardHandler))

	err := p.PaymentDecided(context.Background(), agent.Request{CustomerID: "c_1"}, &agent.Response{RequestID: "req_1"})
	if err == nil {
		t.Fatalf("broker failure must be reported for metrics")
	}
}
