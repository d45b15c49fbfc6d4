// Package service fronts the reservation ledger with metrics and the
// background expiry sweeper.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/accounts/internal/storage"
)

// Ledger is the storage surface the service uses.
type Ledger interface {
	GetBalance(ctx context.Context, customerID string) (*storage.BalanceSummary, error)
	Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) (*storage.Reservation, error)
	Commit(ctx context.Context, requestID string) (*storage.Reservation, error)
	Release(ctx context.Context, requestID string) (*storage.Reservation, error)
	ExpireOverdue(ctx context.Context) (int64, error)
}

type Service struct {
	ledger  Ledger
	metrics *Metrics
	logger  *slog.Logger
}

func New(ledger Ledger, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, metrics: metrics, logger: logger}
}

func (s *Service) GetBalance(ctx context.Context, customerID string) (*storage.BalanceSummary, error) {
	return s.ledger.GetBalance(ctx, customerID)
}

func (s *Service) Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) (*storage.Reservation, error) {
	r, err := s.ledger.Reserve(ctx, customerID, amount, requestID)
	s.metrics.ReservationOps.WithLabelValues("reserve", outcome(err)).Inc()
	return r, err
}

func (s *Service) Commit(ctx context.Context, requestID string) (*storage.Reservation, error) {
	r, err := s.ledger.Commit(ctx, requestID)
	s.metrics.ReservationOps.WithLabelValues("commit", outcome(err)).Inc()
	return r, err
}

func (s *Service) Release(ctx context.Context, requestID string) (*storage.Reservation, error) {
	r, err := s.ledger.Release(ctx, requestID)
	s.metrics.ReservationOps.WithLabelValues("release", outcome(err)).Inc()
	return r, err
}

// RunSweeper expires overdue holds on a fixed interval until ctx ends.
// The transactional paths already expire lazily; the sweeper bounds how
// long dead rows distort ad-hoc queries.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ledger.ExpireOverdue(ctx)
			if err != nil {
				s.metrics.SweeperFailures.Inc()
				s.logger.Warn("reservation sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.metrics.ExpiredSwept.Add(float64(n))
				s.logger.Info("expired overdue reservations", slog.Int64("count", n))
			}
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, storage.ErrAccountNotFound), errors.Is(err, storage.ErrReservationNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrAccountNotActive):
		return "not_active"
	case errors.Is(err, storage.ErrReservationNotPending):
		return "not_pending"
	default:
		return "error"
	}
}
