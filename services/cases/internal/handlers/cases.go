// Package handlers exposes case creation and lookup.
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
	"github.com/paynow/paynow/services/cases/internal/storage"
)

// CaseService is the service surface the handlers need.
type CaseService interface {
	Open(ctx context.Context, c storage.Case) (*storage.Case, error)
	Get(ctx context.Context, caseID string) (*storage.Case, error)
}

type createRequest struct {
	CustomerID string          `json:"customerId" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" binding:"required,len=3"`
	PayeeID    string          `json:"payeeId" binding:"required"`
	CaseType   string          `json:"caseType" binding:"required,oneof=REVIEW BLOCK"`
	Reasons    []string        `json:"reasons"`
	RiskScore  int             `json:"riskScore" binding:"gte=0,lte=100"`
	RequestID  string          `json:"requestId" binding:"required"`
}

type caseResponse struct {
	CaseID     string   `json:"caseId"`
	Status     string   `json:"status"`
	CaseType   string   `json:"caseType"`
	CustomerID string   `json:"customerId"`
	Reasons    []string `json:"reasons"`
	CreatedAt  string   `json:"createdAt"`
}

type Handler struct {
	svc    CaseService
	logger *slog.Logger
}

func NewHandler(svc CaseService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r gin.IRouter, serviceKey string) {
	g := r.Group("/", serviceauth.Middleware(serviceKey))
	g.POST("/cases", h.create)
	g.GET("/cases/:caseId", h.get)
}

func (h *Handler) create(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if !body.Amount.IsPositive() {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be greater than zero")
		return
	}

	opened, err := h.svc.Open(c.Request.Context(), storage.Case{
		RequestID:  body.RequestID,
		CustomerID: body.CustomerID,
		Amount:     body.Amount,
		Currency:   body.Currency,
		PayeeID:    body.PayeeID,
		CaseType:   body.CaseType,
		Reasons:    body.Reasons,
		RiskScore:  body.RiskScore,
	})
	if err != nil {
		h.logger.Error("case creation failed",
			slog.String("request_id", body.RequestID),
			slog.String("error", err.Error()),
		)
		httpmiddleware.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "case creation failed")
		return
	}
	c.JSON(http.StatusOK, toResponse(opened))
}

func (h *Handler) get(c *gin.Context) {
	found, err := h.svc.Get(c.Request.Context(), c.Param("caseId"))
	if err != nil {
		if errors.Is(err, storage.ErrCaseNotFound) {
			httpmiddleware.Error(c, http.StatusNotFound, "CASE_NOT_FOUND", err.Error())
			return
		}
		httpmiddleware.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "case lookup failed")
		return
	}
	c.JSON(http.StatusOK, toResponse(found))
}

func toResponse(c *storage.Case) caseResponse {
	return caseResponse{
		CaseID:     c.CaseID,
		Status:     c.Status,
		CaseType:   c.CaseType,
		CustomerID: c.CustomerID,
		Reasons:    c.Reasons,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
