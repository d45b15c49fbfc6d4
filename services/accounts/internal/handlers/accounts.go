// Package handlers exposes the ledger HTTP surface consumed by the
// payments service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/serviceauth"
	"github.com/paynow/paynow/services/accounts/internal/storage"
)

// LedgerService is the service surface the handlers need.
type LedgerService interface {
	GetBalance(ctx context.Context, customerID string) (*storage.BalanceSummary, error)
	Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) (*storage.Reservation, error)
	Commit(ctx context.Context, requestID string) (*storage.Reservation, error)
	Release(ctx context.Context, requestID string) (*storage.Reservation, error)
}

type Handler struct {
	svc    LedgerService
	logger *slog.Logger
}

func NewHandler(svc LedgerService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the ledger routes behind the service credential.
func (h *Handler) Register(r gin.IRouter, serviceKey string) {
	g := r.Group("/", serviceauth.Middleware(serviceKey))
	g.GET("/accounts/:customerId/balance", h.balance)
	g.POST("/accounts/:customerId/reserve", h.reserve)
	g.POST("/reservations/:requestId/commit", h.commit)
	g.POST("/reservations/:requestId/release", h.release)
}

type balanceResponse struct {
	CustomerID       string  `json:"customerId"`
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"availableBalance"`
	Currency         string  `json:"currency"`
	AccountStatus    string  `json:"accountStatus"`
}

type reservationResponse struct {
	RequestID  string  `json:"requestId"`
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
	Status     string  `json:"status"`
	ExpiresAt  string  `json:"expiresAt"`
}

func toReservationResponse(r *storage.Reservation) reservationResponse {
	return reservationResponse{
		RequestID:  r.RequestID,
		CustomerID: r.CustomerID,
		Amount:     r.Amount.InexactFloat64(),
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *Handler) balance(c *gin.Context) {
	summary, err := h.svc.GetBalance(c.Request.Context(), c.Param("customerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		CustomerID:       summary.CustomerID,
		Balance:          summary.Balance.InexactFloat64(),
		AvailableBalance: summary.Available.InexactFloat64(),
		Currency:         summary.Currency,
		AccountStatus:    string(summary.Status),
	})
}

func (h *Handler) reserve(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be a positive number")
		return
	}
	requestID := c.Query("requestId")
	if requestID == "" {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "requestId is required")
		return
	}

	r, err := h.svc.Reserve(c.Request.Context(), c.Param("customerId"), amount, requestID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(r))
}

func (h *Handler) commit(c *gin.Context) {
	r, err := h.svc.Commit(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(r))
}

func (h *Handler) release(c *gin.Context) {
	r, err := h.svc.Release(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(r))
}

// writeError maps ledger errors to codes callers can dispatch on. The
// INSUFFICIENT_FUNDS tag in particular is part of the wire contract.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		httpmiddleware.Error(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
	case errors.Is(err, storage.ErrAccountNotActive):
		httpmiddleware.Error(c, http.StatusConflict, "ACCOUNT_NOT_ACTIVE", err.Error())
	case errors.Is(err, storage.ErrInsufficientFunds):
		httpmiddleware.Error(c, http.StatusConflict, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, storage.ErrReservationNotFound):
		httpmiddleware.Error(c, http.StatusNotFound, "RESERVATION_NOT_FOUND", err.Error())
	case errors.Is(err, storage.ErrReservationNotPending):
		httpmiddleware.Error(c, http.StatusConflict, "RESERVATION_NOT_PENDING", err.Error())
	default:
		h.logger.Error("ledger operation failed", slog.String("error", err.Error()))
		httpmiddleware.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ledger operation failed")
	}
}
