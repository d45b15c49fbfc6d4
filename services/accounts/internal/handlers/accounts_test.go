package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/serviceauth"
	"github.com/paynow/paynow/services/accounts/internal/storage"
)

type fakeLedger struct {
	balance    *storage.BalanceSummary
	balanceErr error
	res        *storage.Reservation
	resErr     error
}

func (f *fakeLedger) GetBalance(ctx context.Context, customerID string) (*storage.BalanceSummary, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) (*storage.Reservation, error) {
	return f.res, f.resErr
}

func (f *fakeLedger) Commit(ctx context.Context, requestID string) (*storage.Reservation, error) {
	return f.res, f.resErr
}

func (f *fakeLedger) Release(ctx context.Context, requestID string) (*storage.Reservation, error) {
	return f.res, f.resErr
}

const testKey = "test-service-key"

func newTestRouter(ledger LedgerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	NewHandler(ledger, slog.New(slog.DiscardHandler)).Register(r, testKey)
	return r
}

func doRequest(r *gin.Engine, method, path string, withKey bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if withKey {
		req.Header.Set(serviceauth.Header, testKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func pendingReservation() *storage.Reservation {
	return &storage.Reservation{
		ID:         1,
		CustomerID: "c_1",
		Amount:     decimal.NewFromInt(100),
		RequestID:  "req_1",
		Status:     storage.ReservationPending,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}
}

func TestBalanceEndpoint(t *testing.T) {
	r := newTestRouter(&fakeLedger{balance: &storage.BalanceSummary{
		CustomerID: "c_1",
		Balance:    decimal.NewFromInt(1000),
		Available:  decimal.NewFromInt(900),
		Currency:   "USD",
		Status:     storage.AccountActive,
	}})

	w := doRequest(r, http.MethodGet, "/accounts/c_1/balance", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["availableBalance"] != 900.0 || body["accountStatus"] != "ACTIVE" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBalanceRequiresServiceKey(t *testing.T) {
	r := newTestRouter(&fakeLedger{})

	w := doRequest(r, http.MethodGet, "/accounts/c_1/balance", false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without key", w.Code)
	}
}

func TestBalanceUnknownAccountIs404(t *testing.T) {
	r := newTestRouter(&fakeLedger{balanceErr: storage.ErrAccountNotFound})

	w := doRequest(r, http.MethodGet, "/accounts/c_ghost/balance", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body httpmiddleware.ErrorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "ACCOUNT_NOT_FOUND" {
		t.Fatalf("error code = %q", body.Error)
	}
}

func TestReserveEndpoint(t *testing.T) {
	r := newTestRouter(&fakeLedger{res: pendingReservation()})

	w := doRequest(r, http.MethodPost, "/accounts/c_1/reserve?amount=100&requestId=req_1", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "PENDING" || body["requestId"] != "req_1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReserveValidatesQuery(t *testing.T) {
	r := newTestRouter(&fakeLedger{res: pendingReservation()})

	for _, path := range []string{
		"/accounts/c_1/reserve?amount=-5&requestId=req_1",
		"/accounts/c_1/reserve?amount=abc&requestId=req_1",
		"/accounts/c_1/reserve?amount=100",
	} {
		if w := doRequest(r, http.MethodPost, path, true); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestReserveInsufficientFundsIsTagged(t *testing.T) {
	r := newTestRouter(&fakeLedger{resErr: storage.ErrInsufficientFunds})

	w := doRequest(r, http.MethodPost, "/accounts/c_1/reserve?amount=100&requestId=req_1", true)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	// Callers detect this rejection by the tag, not the status.
	if !strings.Contains(w.Body.String(), "INSUFFICIENT_FUNDS") {
		t.Fatalf("body missing INSUFFICIENT_FUNDS tag: %s", w.Body.String())
	}
}

func TestCommitAndReleaseErrorMapping(t *testing.T) {
	r := newTestRouter(&fakeLedger{resErr: storage.ErrReservationNotPending})
	if w := doRequest(r, http.MethodPost, "/reservations/req_1/commit", true); w.Code != http.StatusConflict {
		t.Fatalf("commit status = %d, want 409", w.Code)
	}

	r = newTestRouter(&fakeLedger{resErr: storage.ErrReservationNotFound})
	if w := doRequest(r, http.MethodPost, "/reservations/req_1/release", true); w.Code != http.StatusNotFound {
		t.Fatalf("release status = %d, want 404", w.Code)
	}
}
