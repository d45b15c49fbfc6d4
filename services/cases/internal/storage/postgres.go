// Package storage persists review and block cases. Creation is
// idempotent on the originating request token: a replay returns the
// case opened by the first attempt.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

var ErrCaseNotFound = errors.New("case not found")

type Case struct {
	ID         int64
	CaseID     string
	RequestID  string
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
	PayeeID    string
	CaseType   string
	Reasons    []string
	RiskScore  int
	Status     string
	CreatedAt  time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewCaseID mints a case identifier.
func NewCaseID() string {
	return "case_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create opens a case, or returns the existing one when the request
// token has been seen before. The second return reports whether a new
// row was created.
func (s *Store) Create(ctx context.Context, c Case) (*Case, bool, error) {
	c.CaseID = NewCaseID()
	c.Status = "OPEN"

	const ins = `
		INSERT INTO cases (case_id, request_id, customer_id, amount, currency, payee_id, case_type, reasons, risk_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, ins,
		c.CaseID, c.RequestID, c.CustomerID, c.Amount, c.Currency, c.PayeeID,
		c.CaseType, c.Reasons, c.RiskScore, c.Status,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			existing, ferr := s.GetByRequestID(ctx, c.RequestID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert case for %s: %w", c.RequestID, err)
	}
	return &c, true, nil
}

// GetByRequestID looks a case up by its originating request token.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (*Case, error) {
	const q = `
		SELECT id, case_id, request_id, customer_id, amount, currency, payee_id, case_type, reasons, risk_score, status, created_at
		FROM cases WHERE request_id = $1`

	var c Case
	err := s.pool.QueryRow(ctx, q, requestID).Scan(
		&c.ID, &c.CaseID, &c.RequestID, &c.CustomerID, &c.Amount, &c.Currency,
		&c.PayeeID, &c.CaseType, &c.Reasons, &c.RiskScore, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", ErrCaseNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("query case for %s: %w", requestID, err)
	}
	return &c, nil
}

// GetByCaseID looks a case up by its public identifier.
func (s *Store) GetByCaseID(ctx context.Context, caseID string) (*Case, error) {
	const q = `
		SELECT id, case_id, request_id, customer_id, amount, currency, payee_id, case_type, reasons, risk_score, status, created_at
		FROM cases WHERE case_id = $1`

	var c Case
	err := s.pool.QueryRow(ctx, q, caseID).Scan(
		&c.ID, &c.CaseID, &c.RequestID, &c.CustomerID, &c.Amount, &c.Currency,
		&c.PayeeID, &c.CaseType, &c.Reasons, &c.RiskScore, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("query case %s: %w", caseID, err)
	}
	return &c, nil
}
