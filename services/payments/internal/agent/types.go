package agent

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the terminal outcome of evaluating a payment request.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionReview Decision = "REVIEW"
	DecisionBlock  Decision = "BLOCK"
)

// Reason codes attached to a decision. The list is stable so downstream
// consumers can switch on them.
const (
	ReasonAccountNotActive = "account_not_active"
	ReasonInsufficient     = "insufficient_funds"
	ReasonCriticalRisk     = "critical_risk_level"
	ReasonHighRiskScore    = "high_risk_score"
	ReasonHighAmount       = "high_amount_transaction"
	ReasonVeryHighAmount   = "very_high_amount_transaction"
	ReasonMediumRiskHigh   = "medium_risk_high_amount"
	ReasonLowRisk          = "low_risk_transaction"
	ReasonReserveFailed    = "reserve_failed"
	ReasonProcessingError  = "agent_processing_error"
)

// Request is a payment awaiting a decision.
type Request struct {
	RequestID  string          `json:"requestId"`
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PayeeID    string          `json:"payeeId"`
}

// TraceStep records one step of the decision pipeline for auditability.
type TraceStep struct {
	Step       string `json:"step"`
	Detail     string `json:"detail"`
	Timestamp  string `json:"timestamp"`
	DurationMS int64  `json:"durationMs"`
}

// Response is the decision payload returned to the caller and cached by
// the idempotency layer.
type Response struct {
	Decision   Decision    `json:"decision"`
	Reasons    []string    `json:"reasons"`
	AgentTrace []TraceStep `json:"agentTrace"`
	RequestID  string      `json:"requestId"`
}

func newStep(step, detail string, started time.Time) TraceStep {
	return TraceStep{
		Step:       step,
		Detail:     detail,
		Timestamp:  started.UTC().Format(time.RFC3339Nano),
		DurationMS: time.Since(started).Milliseconds(),
	}
}

func planStep(detail string, started time.Time) TraceStep {
	return newStep("plan", detail, started)
}

func toolStep(name, detail string, started time.Time) TraceStep {
	return newStep("tool:"+name, detail, started)
}

func decisionStep(detail string, started time.Time) TraceStep {
	return newStep("decision", detail, started)
}

func errorStep(detail string, started time.Time) TraceStep {
	return newStep("error", detail, started)
}
