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

	"github.com/paynow/paynow/libs/httpmiddleware"
	"github.com/paynow/paynow/libs/serviceauth"
	"github.com/paynow/paynow/services/cases/internal/storage"
)

const testKey = "test-service-key"

type fakeService struct {
	opened *storage.Case
	got    *storage.Case
	getErr error
}

func (f *fakeService) Open(ctx context.Context, c storage.Case) (*storage.Case, error) {
	f.got = &c
	out := c
	out.CaseID = "case_a1b2c3d4e5f6"
	out.Status = "OPEN"
	out.CreatedAt = time.Now()
	f.opened = &out
	return &out, nil
}

func (f *fakeService) Get(ctx context.Context, caseID string) (*storage.Case, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.opened, nil
}

func newTestRouter(svc CaseService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	NewHandler(svc, slog.New(slog.DiscardHandler)).Register(r, testKey)
	return r
}

func TestCreateCase(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	body := `{"customerId":"c_1","amount":1500,"currency":"USD","payeeId":"p_1","caseType":"BLOCK","reasons":["very_high_amount_transaction"],"riskScore":42,"requestId":"req_1"}`
	req := httptest.NewRequest(http.MethodPost, "/cases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(serviceauth.Header, testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["caseId"] != "case_a1b2c3d4e5f6" || resp["status"] != "OPEN" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if svc.got.RequestID != "req_1" || svc.got.CaseType != "BLOCK" {
		t.Fatalf("service received: %+v", svc.got)
	}
}

func TestCreateCaseValidation(t *testing.T) {
	r := newTestRouter(&fakeService{})

	for _, body := range []string{
		`{}`,
		`{"customerId":"c_1","amount":100,"currency":"USD","payeeId":"p_1","caseType":"OTHER","requestId":"req_1"}`,
		`{"customerId":"c_1","amount":100,"currency":"USD","payeeId":"p_1","caseType":"REVIEW","riskScore":500,"requestId":"req_1"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/cases", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(serviceauth.Header, testKey)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestGetCaseNotFound(t *testing.T) {
	r := newTestRouter(&fakeService{getErr: storage.ErrCaseNotFound})

	req := httptest.NewRequest(http.MethodGet, "/cases/case_missing", nil)
	req.Header.Set(serviceauth.Header, testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
