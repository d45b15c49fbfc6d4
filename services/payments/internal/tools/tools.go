// Package tools holds the collaborator-facing adapters the decision
// pipeline fans out to: account balances, risk signals, case creation.
// Each adapter owns its retry policy and maps transport failures to
// typed errors.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/serviceauth"
)

var (
	// ErrAccountNotFound maps a 404 from the accounts service.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds maps a reserve rejection. The accounts service
	// tags the message rather than using a dedicated status, so detection
	// is by body content.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDependency wraps collaborator failures that survived the retry
	// budget. Callers may retry the whole decision.
	ErrDependency = errors.New("collaborator unavailable")
)

const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// BalanceInfo is the accounts service's view of one customer. Monetary
// fields decode into decimals so downstream comparisons are exact.
type BalanceInfo struct {
	CustomerID       string          `json:"customerId"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Currency         string          `json:"currency"`
	AccountStatus    string          `json:"accountStatus"`
}

// RiskFactor is one weighted signal contributing to a risk score.
type RiskFactor struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Weight int    `json:"weight"`
}

// RiskSignals is the risk service's assessment of one payment.
type RiskSignals struct {
	CustomerID  string       `json:"customerId"`
	RiskScore   int          `json:"riskScore"`
	RiskLevel   string       `json:"riskLevel"`
	RiskFactors []RiskFactor `json:"riskFactors"`
}

// CaseRequest opens a manual review or block case.
type CaseRequest struct {
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PayeeID    string          `json:"payeeId"`
	CaseType   string          `json:"caseType"`
	Reasons    []string        `json:"reasons"`
	RiskScore  int             `json:"riskScore"`
	RequestID  string          `json:"requestId"`
}

// CaseResult identifies the opened (or pre-existing) case.
type CaseResult struct {
	CaseID string `json:"caseId"`
	Status string `json:"status"`
}

// Options tune the shared transport behavior of all adapters.
type Options struct {
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
	ServiceKey string
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type client struct {
	base string
	http *http.Client
	opts Options
}

func newClient(baseURL string, opts Options) client {
	opts = opts.withDefaults()
	return client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}
}

// permanentError marks a response the retry loop must not repeat.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// do runs one HTTP call with bounded retries and fixed backoff. Network
// errors and 5xx responses are retried; 4xx responses are handed to the
// per-adapter classifier and never retried.
func (c client) do(ctx context.Context, method, path string, body []byte, classify func(status int, body []byte) error, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrDependency, ctx.Err())
			case <-time.After(c.opts.Backoff):
			}
			c.opts.Logger.Warn("retrying collaborator call",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
			)
		}

		err := c.once(ctx, method, path, body, classify, out)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %s %s after %d attempts: %w", ErrDependency, method, path, c.opts.Attempts, lastErr)
}

func (c client) once(ctx context.Context, method, path string, body []byte, classify func(status int, body []byte) error, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return permanentError{err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	serviceauth.Attach(req, c.opts.ServiceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return permanentError{err: fmt.Errorf("decode %s %s response: %w", method, path, err)}
		}
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	default:
		if classify != nil {
			if cerr := classify(resp.StatusCode, respBody); cerr != nil {
				return permanentError{err: cerr}
			}
		}
		return permanentError{err: fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}
}
