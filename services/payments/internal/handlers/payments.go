// Package handlers exposes the payments HTTP surface: a single decision
// endpoint plus health and metrics.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/services/payments/internal/agent"
	"github.com/paynow/paynow/services/payments/internal/service"
)

// decideRequest is the inbound decision payload. The idempotency key
// doubles as the request token used for reservation and case dedup.
// Amount is validated by hand: validator tags do not see into decimals.
type decideRequest struct {
	CustomerID     string          `json:"customerId" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" binding:"required,len=3"`
	PayeeID        string          `json:"payeeId" binding:"required"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// PaymentProcessor is the service surface the handler needs.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// Handler serves the decision endpoint.
type Handler struct {
	svc    PaymentProcessor
	logger *slog.Logger
}

func NewHandler(svc PaymentProcessor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the decision route on the given group.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/payments/decide", h.decide)
}

func (h *Handler) decide(c *gin.Context) {
	var body decideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if !body.Amount.IsPositive() {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be greater than zero")
		return
	}

	requestID := body.IdempotencyKey
	if requestID == "" {
		// Without a caller-supplied key the correlation token stands in;
		// dedup then only covers transport-level retries of this hop.
		requestID = httpmiddleware.RequestIDFromContext(c)
	}

	resp, err := h.svc.ProcessPayment(c.Request.Context(), agent.Request{
		RequestID:  requestID,
		CustomerID: body.CustomerID,
		Amount:     body.Amount,
		Currency:   body.Currency,
		PayeeID:    body.PayeeID,
	})
	switch {
	case errors.Is(err, service.ErrRateLimited):
		httpmiddleware.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests for customer")
		return
	case errors.Is(err, service.ErrDuplicateInFlight):
		httpmiddleware.Error(c, http.StatusConflict, "DUPLICATE_REQUEST", "a request with this idempotency key is in flight")
		return
	case err != nil:
		h.logger.Error("decision request failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		httpmiddleware.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "payment decision failed")
		return
	}

	c.JSON(http.StatusOK, resp)
}
