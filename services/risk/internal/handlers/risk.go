// Package handlers exposes the risk signals endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/serviceauth"
	"github.com/paynow/paynow/services/risk/internal/service"
)

type Handler struct {
	scorer *service.Scorer
}

func NewHandler(scorer *service.Scorer) *Handler {
	return &Handler{scorer: scorer}
}

func (h *Handler) Register(r gin.IRouter, serviceKey string) {
	g := r.Group("/", serviceauth.Middleware(serviceKey))
	g.GET("/risk/:customerId/signals", h.signals)
}

func (h *Handler) signals(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil || !amount.IsPositive() {
		httpmiddleware.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be a positive number")
		return
	}
	c.JSON(http.StatusOK, h.scorer.Assess(c.Param("customerId"), amount))
}
