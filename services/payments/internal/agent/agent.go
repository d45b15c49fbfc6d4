// Package agent decides whether a payment is allowed, reviewed, or
// blocked. It fans out to the balance and risk tools concurrently,
// applies the decision policy, places a hold on approval, opens a case
// otherwise, and records every step in a trace returned to the caller.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/payments/internal/tools"
)

// ErrRetryable marks an orchestration failure that may succeed on a
// retry. Retries are safe because the idempotency layer and the
// reservation token uniqueness make reprocessing side-effect free.
var ErrRetryable = errors.New("decision retryable")

// AccountsTool is the balance and reservation surface the agent needs.
type AccountsTool interface {
	GetBalance(ctx context.Context, customerID string) (*tools.BalanceInfo, error)
	Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) error
}

// RiskTool scores a payment.
type RiskTool interface {
	GetSignals(ctx context.Context, customerID string, amount decimal.Decimal) (*tools.RiskSignals, error)
}

// CaseTool opens review and block cases.
type CaseTool interface {
	CreateCase(ctx context.Context, req tools.CaseRequest) (*tools.CaseResult, error)
}

// Agent orchestrates one decision per call. It holds no per-request
// state, so a single instance serves all requests.
type Agent struct {
	accounts AccountsTool
	risk     RiskTool
	cases    CaseTool
	policy   Policy
	logger   *slog.Logger
}

func New(accounts AccountsTool, risk RiskTool, cases CaseTool, policy Policy, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{accounts: accounts, risk: risk, cases: cases, policy: policy, logger: logger}
}

type balanceResult struct {
	info    *tools.BalanceInfo
	err     error
	started time.Time
}

type riskResult struct {
	signals *tools.RiskSignals
	err     error
	started time.Time
}

// Decide runs the full decision pipeline. The returned response is
// always usable; a non-nil error additionally signals that the caller
// may retry the whole call (wrapped with ErrRetryable when so).
func (a *Agent) Decide(ctx context.Context, req Request) (resp *Response, err error) {
	trace := make([]TraceStep, 0, 8)

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("decision pipeline panic",
				slog.String("request_id", req.RequestID),
				slog.Any("panic", r),
			)
			trace = append(trace, errorStep(fmt.Sprintf("pipeline failure: %v", r), time.Now()))
			resp = a.safeDefault(req, trace)
			err = fmt.Errorf("%w: panic: %v", ErrRetryable, r)
		}
	}()

	started := time.Now()
	trace = append(trace, planStep(
		fmt.Sprintf("evaluate payment of %s %s from customer to payee %s",
			formatAmount(req.Amount), req.Currency, req.PayeeID),
		started,
	))

	balanceCh := make(chan balanceResult, 1)
	riskCh := make(chan riskResult, 1)
	go func() {
		s := time.Now()
		info, err := a.accounts.GetBalance(ctx, req.CustomerID)
		balanceCh <- balanceResult{info: info, err: err, started: s}
	}()
	go func() {
		s := time.Now()
		signals, err := a.risk.GetSignals(ctx, req.CustomerID, req.Amount)
		riskCh <- riskResult{signals: signals, err: err, started: s}
	}()

	// Join barrier: both lookups must finish before the policy runs.
	bal := <-balanceCh
	rk := <-riskCh

	if bal.err != nil {
		trace = append(trace, errorStep("balance lookup failed: "+bal.err.Error(), bal.started))
		return a.safeDefault(req, trace), a.classifyToolError("balance", bal.err)
	}
	trace = append(trace, toolStep("balance",
		fmt.Sprintf("balance %s available %s status %s",
			formatAmount(bal.info.Balance), formatAmount(bal.info.AvailableBalance), bal.info.AccountStatus),
		bal.started,
	))

	if rk.err != nil {
		trace = append(trace, errorStep("risk lookup failed: "+rk.err.Error(), rk.started))
		return a.safeDefault(req, trace), a.classifyToolError("risk", rk.err)
	}
	trace = append(trace, toolStep("risk",
		fmt.Sprintf("score %d level %s factors %d", rk.signals.RiskScore, rk.signals.RiskLevel, len(rk.signals.RiskFactors)),
		rk.started,
	))

	decision, reasons := a.policy.Evaluate(req, bal.info, rk.signals)

	if decision == DecisionAllow {
		reserveStarted := time.Now()
		if rerr := a.accounts.Reserve(ctx, req.CustomerID, req.Amount, req.RequestID); rerr != nil {
			// Approval must never be reported without a hold in place.
			a.logger.Warn("reservation failed, downgrading to block",
				slog.String("request_id", req.RequestID),
				slog.String("error", rerr.Error()),
			)
			trace = append(trace, errorStep("reservation failed: "+rerr.Error(), reserveStarted))
			decision = DecisionBlock
			reasons = append(reasons, ReasonReserveFailed)
		} else {
			trace = append(trace, toolStep("reserve",
				fmt.Sprintf("held %s %s under token %s", formatAmount(req.Amount), req.Currency, req.RequestID),
				reserveStarted,
			))
		}
	}

	if decision != DecisionAllow {
		caseStarted := time.Now()
		result, cerr := a.cases.CreateCase(ctx, tools.CaseRequest{
			CustomerID: req.CustomerID,
			Amount:     req.Amount,
			Currency:   req.Currency,
			PayeeID:    req.PayeeID,
			CaseType:   string(decision),
			Reasons:    reasons,
			RiskScore:  rk.signals.RiskScore,
			RequestID:  req.RequestID,
		})
		if cerr != nil {
			trace = append(trace, errorStep("case creation failed: "+cerr.Error(), caseStarted))
			return a.safeDefault(req, trace), a.classifyToolError("cases", cerr)
		}
		trace = append(trace, toolStep("cases",
			fmt.Sprintf("opened %s case %s", decision, result.CaseID),
			caseStarted,
		))
	}

	trace = append(trace, decisionStep(
		fmt.Sprintf("%s with %d reason(s)", decision, len(reasons)),
		time.Now(),
	))

	return &Response{
		Decision:   decision,
		Reasons:    reasons,
		AgentTrace: trace,
		RequestID:  req.RequestID,
	}, nil
}

// safeDefault is the decision produced when the pipeline cannot finish:
// never ALLOW without a hold, never a silent BLOCK.
func (a *Agent) safeDefault(req Request, trace []TraceStep) *Response {
	return &Response{
		Decision:   DecisionReview,
		Reasons:    []string{ReasonProcessingError},
		AgentTrace: trace,
		RequestID:  req.RequestID,
	}
}

// classifyToolError decides retryability. Dependency outages are worth
// retrying; a missing account is not going to appear on the next try.
func (a *Agent) classifyToolError(tool string, err error) error {
	if errors.Is(err, tools.ErrAccountNotFound) {
		return nil
	}
	return fmt.Errorf("%w: %s tool: %w", ErrRetryable, tool, err)
}

func formatAmount(v decimal.Decimal) string {
	return v.StringFixed(2)
}
