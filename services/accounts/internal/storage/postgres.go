// Package storage is the reservation ledger: accounts plus a journal of
// holds, with serializable hold/commit/release against available
// balance. The account row is the unit of exclusivity; every mutation
// locks it for the span of its read-then-write sequence.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	defaultHoldTTL = 30 * time.Minute

	// serialization_failure and unique_violation.
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"

	txRetries = 3
)

type Store struct {
	pool    *pgxpool.Pool
	holdTTL time.Duration
	logger  *slog.Logger
}

type Option func(*Store)

// WithHoldTTL overrides how long a reservation stays PENDING before it
// is considered expired.
func WithHoldTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{pool: pool, holdTTL: defaultHoldTTL, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inSerializableTx runs fn in a serializable transaction, retrying a
// bounded number of times when the database aborts on a serialization
// conflict.
func (s *Store) inSerializableTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("serialization conflict persisted after %d attempts: %w", txRetries, lastErr)
}

// GetBalance returns the account's balance and available balance. Only
// PENDING holds that have not passed their expiry count against it.
func (s *Store) GetBalance(ctx context.Context, customerID string) (*BalanceSummary, error) {
	const q = `
		SELECT a.customer_id, a.balance, a.currency, a.status,
		       COALESCE((
		           SELECT SUM(r.amount) FROM reservations r
		           WHERE r.customer_id = a.customer_id
		             AND r.status = 'PENDING'
		             AND r.expires_at > now()
		       ), 0) AS held
		FROM accounts a
		WHERE a.customer_id = $1`

	var out BalanceSummary
	var held decimal.Decimal
	err := s.pool.QueryRow(ctx, q, customerID).Scan(
		&out.CustomerID, &out.Balance, &out.Currency, &out.Status, &held)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("query balance for %s: %w", customerID, err)
	}
	out.Available = out.Balance.Sub(held)
	return &out, nil
}

// Reserve places a hold. Idempotent on the request token: replaying a
// token that already has a reservation returns it without side effects.
func (s *Store) Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) (*Reservation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientFunds)
	}

	var res *Reservation
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if existing, err := findReservation(ctx, tx, requestID, false); err == nil {
			res = existing
			return nil
		} else if !errors.Is(err, ErrReservationNotFound) {
			return err
		}

		acct, err := lockAccount(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if acct.Status != AccountActive {
			return fmt.Errorf("%w: %s is %s", ErrAccountNotActive, customerID, acct.Status)
		}

		// Overdue holds stop counting before availability is computed.
		if _, err := expireOverdueForCustomer(ctx, tx, customerID); err != nil {
			return err
		}

		held, err := sumPendingHolds(ctx, tx, customerID)
		if err != nil {
			return err
		}
		available := acct.Balance.Sub(held)
		if amount.GreaterThan(available) {
			return fmt.Errorf("%w: available %s below requested %s",
				ErrInsufficientFunds, available.StringFixed(2), amount.StringFixed(2))
		}

		const ins = `
			INSERT INTO reservations (customer_id, amount, request_id, status, created_at, expires_at)
			VALUES ($1, $2, $3, 'PENDING', now(), $4)
			RETURNING id, customer_id, amount, request_id, status, created_at, expires_at, completed_at`

		var r Reservation
		err = tx.QueryRow(ctx, ins, customerID, amount, requestID, time.Now().Add(s.holdTTL)).Scan(
			&r.ID, &r.CustomerID, &r.Amount, &r.RequestID, &r.Status, &r.CreatedAt, &r.ExpiresAt, &r.CompletedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				// Lost a race on the same token; the winner's reservation
				// is the answer.
				existing, ferr := findReservation(ctx, tx, requestID, false)
				if ferr != nil {
					return ferr
				}
				res = existing
				return nil
			}
			return fmt.Errorf("insert reservation %s: %w", requestID, err)
		}
		res = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Commit debits the account by the reservation amount and finalizes the
// hold. Requires a live PENDING reservation.
func (s *Store) Commit(ctx context.Context, requestID string) (*Reservation, error) {
	var res *Reservation
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		r, err := findReservation(ctx, tx, requestID, true)
		if err != nil {
			return err
		}
		if err := ensurePending(ctx, tx, r); err != nil {
			return err
		}

		if _, err := lockAccount(ctx, tx, r.CustomerID); err != nil {
			return err
		}
		const debit = `UPDATE accounts SET balance = balance - $1, updated_at = now() WHERE customer_id = $2`
		if _, err := tx.Exec(ctx, debit, r.Amount, r.CustomerID); err != nil {
			return fmt.Errorf("debit account %s: %w", r.CustomerID, err)
		}

		updated, err := finalizeReservation(ctx, tx, r.ID, ReservationCommitted)
		if err != nil {
			return err
		}
		res = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Release drops a PENDING hold without touching the balance. Releasing
// a reservation that is already terminal is a no-op, so compensating
// calls after an uncertain outcome are always safe.
func (s *Store) Release(ctx context.Context, requestID string) (*Reservation, error) {
	var res *Reservation
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		r, err := findReservation(ctx, tx, requestID, true)
		if err != nil {
			return err
		}
		if r.Status != ReservationPending {
			s.logger.Info("release on non-pending reservation ignored",
				slog.String("request_id", requestID),
				slog.String("status", string(r.Status)),
			)
			res = r
			return nil
		}
		if !r.ExpiresAt.After(time.Now()) {
			// An overdue hold lapses as EXPIRED even when the caller asked
			// for a release; the terminal state records what happened.
			updated, err := finalizeReservation(ctx, tx, r.ID, ReservationExpired)
			if err != nil {
				return err
			}
			s.logger.Info("release on overdue reservation recorded as expiry",
				slog.String("request_id", requestID),
			)
			res = updated
			return nil
		}

		updated, err := finalizeReservation(ctx, tx, r.ID, ReservationReleased)
		if err != nil {
			return err
		}
		res = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ExpireOverdue marks all overdue PENDING reservations EXPIRED. Run
// periodically by the sweeper; the transactional paths also expire
// lazily, so the sweeper only bounds how long stale rows linger.
func (s *Store) ExpireOverdue(ctx context.Context) (int64, error) {
	const q = `
		UPDATE reservations SET status = 'EXPIRED', completed_at = now()
		WHERE status = 'PENDING' AND expires_at <= now()`
	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("expire overdue reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateAccount inserts a new account. Used by seeding and tests.
func (s *Store) CreateAccount(ctx context.Context, customerID string, balance decimal.Decimal, currency string) (*Account, error) {
	const q = `
		INSERT INTO accounts (customer_id, balance, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'ACTIVE', now(), now())
		RETURNING id, customer_id, balance, currency, status, created_at, updated_at`
	var a Account
	err := s.pool.QueryRow(ctx, q, customerID, balance, currency).Scan(
		&a.ID, &a.CustomerID, &a.Balance, &a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", customerID, err)
	}
	return &a, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, customerID string) (*Account, error) {
	const q = `
		SELECT id, customer_id, balance, currency, status, created_at, updated_at
		FROM accounts WHERE customer_id = $1 FOR UPDATE`
	var a Account
	err := tx.QueryRow(ctx, q, customerID).Scan(
		&a.ID, &a.CustomerID, &a.Balance, &a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", customerID, err)
	}
	return &a, nil
}

func findReservation(ctx context.Context, tx pgx.Tx, requestID string, forUpdate bool) (*Reservation, error) {
	q := `
		SELECT id, customer_id, amount, request_id, status, created_at, expires_at, completed_at
		FROM reservations WHERE request_id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var r Reservation
	err := tx.QueryRow(ctx, q, requestID).Scan(
		&r.ID, &r.CustomerID, &r.Amount, &r.RequestID, &r.Status, &r.CreatedAt, &r.ExpiresAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation %s: %w", requestID, err)
	}
	return &r, nil
}

// ensurePending re-validates liveness: a PENDING reservation past its
// expiry is expired in place, then rejected.
func ensurePending(ctx context.Context, tx pgx.Tx, r *Reservation) error {
	if r.Status == ReservationPending && !r.ExpiresAt.After(time.Now()) {
		if _, err := finalizeReservation(ctx, tx, r.ID, ReservationExpired); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s expired", ErrReservationNotPending, r.RequestID)
	}
	if r.Status != ReservationPending {
		return fmt.Errorf("%w: %s is %s", ErrReservationNotPending, r.RequestID, r.Status)
	}
	return nil
}

func sumPendingHolds(ctx context.Context, tx pgx.Tx, customerID string) (decimal.Decimal, error) {
	const q = `
		SELECT COALESCE(SUM(amount), 0) FROM reservations
		WHERE customer_id = $1 AND status = 'PENDING'`
	var held decimal.Decimal
	if err := tx.QueryRow(ctx, q, customerID).Scan(&held); err != nil {
		return decimal.Zero, fmt.Errorf("sum pending holds for %s: %w", customerID, err)
	}
	return held, nil
}

func expireOverdueForCustomer(ctx context.Context, tx pgx.Tx, customerID string) (int64, error) {
	const q = `
		UPDATE reservations SET status = 'EXPIRED', completed_at = now()
		WHERE customer_id = $1 AND status = 'PENDING' AND expires_at <= now()`
	tag, err := tx.Exec(ctx, q, customerID)
	if err != nil {
		return 0, fmt.Errorf("expire overdue holds for %s: %w", customerID, err)
	}
	return tag.RowsAffected(), nil
}

func finalizeReservation(ctx context.Context, tx pgx.Tx, id int64, status ReservationStatus) (*Reservation, error) {
	const q = `
		UPDATE reservations SET status = $1, completed_at = now()
		WHERE id = $2
		RETURNING id, customer_id, amount, request_id, status, created_at, expires_at, completed_at`
	var r Reservation
	err := tx.QueryRow(ctx, q, status, id).Scan(
		&r.ID, &r.CustomerID, &r.Amount, &r.RequestID, &r.Status, &r.CreatedAt, &r.ExpiresAt, &r.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize reservation %d as %s: %w", id, status, err)
	}
	return &r, nil
}
