// Package events emits payment decision events. Publication is
// best-effort: a broker outage loses analytics, never a decision.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/kafka"
	"github.com/paynow/paynow/services/payments/internal/agent"
)

const (
	// TopicPaymentDecided carries one event per finalized decision.
	TopicPaymentDecided = "payment.decided"

	eventTypeDecided = "payment.decided"
	eventVersion     = 1
)

// PaymentDecided is the payload published after each decision.
type PaymentDecided struct {
	kafka.Envelope
	RequestID  string          `json:"requestId"`
	CustomerID string          `json:"customerId"`
	PayeeID    string          `json:"payeeId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Decision   string          `json:"decision"`
	Reasons    []string        `json:"reasons"`
	DecidedAt  string          `json:"decidedAt"`
}

// Publisher wraps the shared producer with the decision topic.
type Publisher struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

func NewPublisher(producer kafka.Publisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{producer: producer, logger: logger}
}

// PaymentDecided publishes one event keyed by customer so per-customer
// ordering holds. Errors are logged and reported to the caller for
// metrics only; the decision has already been made.
func (p *Publisher) PaymentDecided(ctx context.Context, req agent.Request, resp *agent.Response) error {
	env, err := kafka.NewEnvelope(eventTypeDecided, eventVersion, resp.RequestID)
	if err != nil {
		return err
	}
	event := PaymentDecided{
		Envelope:   env,
		RequestID:  resp.RequestID,
		CustomerID: req.CustomerID,
		PayeeID:    req.PayeeID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Decision:   string(resp.Decision),
		Reasons:    resp.Reasons,
		DecidedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	if _, _, err := p.producer.PublishJSON(ctx, TopicPaymentDecided, req.CustomerID, event); err != nil {
		p.logger.Warn("decision event dropped",
			slog.String("request_id", resp.RequestID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
