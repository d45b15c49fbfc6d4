package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/testutil"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	pool := testutil.SetupAccountsDB(t)
	return NewStore(pool, slog.New(slog.DiscardHandler), opts...)
}

func seedAccount(t *testing.T, s *Store, customerID string, balance float64) {
	t.Helper()
	if _, err := s.CreateAccount(context.Background(), customerID, decimal.NewFromFloat(balance), "USD"); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestReserveAndBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	r, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if r.Status != ReservationPending {
		t.Fatalf("status = %s, want PENDING", r.Status)
	}

	summary, err := s.GetBalance(ctx, "c_1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !summary.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance = %s, reserve must not debit", summary.Balance)
	}
	if !summary.Available.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("available = %s, want 900", summary.Available)
	}
}

func TestReserveIsIdempotentOnToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	first, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	second, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1")
	if err != nil {
		t.Fatalf("replayed Reserve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a second reservation: %d vs %d", first.ID, second.ID)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Available.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("available = %s, replay must not double-hold", summary.Available)
	}
}

func TestReserveRejectsOverdraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 100)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(80), "req_1"); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	_, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(30), "req_2")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestReserveUnknownAndInactiveAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Reserve(ctx, "c_ghost", decimal.NewFromInt(10), "req_1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	seedAccount(t, s, "c_frozen", 1000)
	if _, err := s.pool.Exec(ctx, `UPDATE accounts SET status = 'SUSPENDED' WHERE customer_id = 'c_frozen'`); err != nil {
		t.Fatalf("suspend account: %v", err)
	}
	if _, err := s.Reserve(ctx, "c_frozen", decimal.NewFromInt(10), "req_2"); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestCommitDebitsBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	r, err := s.Commit(ctx, "req_1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if r.Status != ReservationCommitted || r.CompletedAt == nil {
		t.Fatalf("reservation after commit: %+v", r)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Balance.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %s, want 900 after commit", summary.Balance)
	}
	if !summary.Available.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("available = %s, hold must be gone", summary.Available)
	}
}

func TestReleaseLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := s.Release(ctx, "req_1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Commit after release must fail: terminal states never regress.
	if _, err := s.Commit(ctx, "req_1"); !errors.Is(err, ErrReservationNotPending) {
		t.Fatalf("expected ErrReservationNotPending, got %v", err)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Balance.Equal(decimal.NewFromInt(1000)) || !summary.Available.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("release must not touch balances: %+v", summary)
	}
}

func TestReleaseAfterCommitIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := s.Commit(ctx, "req_1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, err := s.Release(ctx, "req_1")
	if err != nil {
		t.Fatalf("compensating release must not error: %v", err)
	}
	if r.Status != ReservationCommitted {
		t.Fatalf("no-op release changed status to %s", r.Status)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Balance.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %s, release must not refund a commit", summary.Balance)
	}
}

func TestCommitExpiredReservationFails(t *testing.T) {
	s := newTestStore(t, WithHoldTTL(time.Millisecond))
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := s.Commit(ctx, "req_1"); !errors.Is(err, ErrReservationNotPending) {
		t.Fatalf("expected ErrReservationNotPending for expired hold, got %v", err)
	}

	// The expired hold no longer counts against availability.
	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Available.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("available = %s, expired hold still counted", summary.Available)
	}
}

func TestReleaseOverdueReservationExpiresIt(t *testing.T) {
	s := newTestStore(t, WithHoldTTL(time.Millisecond))
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(100), "req_1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	r, err := s.Release(ctx, "req_1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if r.Status != ReservationExpired {
		t.Fatalf("overdue hold released as %s, want EXPIRED", r.Status)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if !summary.Available.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("available = %s after expiry", summary.Available)
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	s := newTestStore(t, WithHoldTTL(time.Millisecond))
	ctx := context.Background()
	seedAccount(t, s, "c_1", 1000)

	for i := 0; i < 3; i++ {
		if _, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(10), fmt.Sprintf("req_%d", i)); err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
	}
	time.Sleep(20 * time.Millisecond)

	n, err := s.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if n != 3 {
		t.Fatalf("swept %d reservations, want 3", n)
	}
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "c_1", 100)

	// Ten concurrent holds of 30 against a balance of 100: at most
	// three can win, regardless of interleaving.
	const workers = 10
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Reserve(ctx, "c_1", decimal.NewFromInt(30), fmt.Sprintf("req_%d", i))
			if err == nil {
				succeeded <- struct{}{}
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(succeeded)

	wins := len(succeeded)
	if wins > 3 {
		t.Fatalf("%d concurrent holds won, jointly overdrawing the account", wins)
	}

	summary, _ := s.GetBalance(ctx, "c_1")
	if summary.Available.IsNegative() {
		t.Fatalf("available went negative: %s", summary.Available)
	}
}
