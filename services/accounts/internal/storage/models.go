package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountNotActive      = errors.New("account not active")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrReservationNotPending = errors.New("reservation not pending")
)

type Account struct {
	ID         int64
	CustomerID string
	Balance    decimal.Decimal
	Currency   string
	Status     AccountStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reservation is one hold against an account. RequestID is unique for
// all time: a token maps to at most one reservation, ever.
type Reservation struct {
	ID          int64
	CustomerID  string
	Amount      decimal.Decimal
	RequestID   string
	Status      ReservationStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// BalanceSummary is the externally visible view of an account: balance
// and balance net of live pending holds.
type BalanceSummary struct {
	CustomerID string
	Balance    decimal.Decimal
	Available  decimal.Decimal
	Currency   string
	Status     AccountStatus
}
