package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.SetupCasesDB(t))
}

func sampleCase(requestID string) Case {
	return Case{
		RequestID:  requestID,
		CustomerID: "c_1",
		Amount:     decimal.NewFromInt(1500),
		Currency:   "USD",
		PayeeID:    "p_1",
		CaseType:   "BLOCK",
		Reasons:    []string{"very_high_amount_transaction"},
		RiskScore:  42,
	}
}

func TestCreateAssignsCaseID(t *testing.T) {
	s := newTestStore(t)

	c, created, err := s.Create(context.Background(), sampleCase("req_1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Fatalf("first create should report a new case")
	}
	if !strings.HasPrefix(c.CaseID, "case_") || len(c.CaseID) != len("case_")+12 {
		t.Fatalf("case id format: %q", c.CaseID)
	}
	if c.Status != "OPEN" {
		t.Fatalf("status = %q", c.Status)
	}
}

func TestCreateDedupesOnRequestID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _, err := s.Create(ctx, sampleCase("req_1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, created, err := s.Create(ctx, sampleCase("req_1"))
	if err != nil {
		t.Fatalf("replayed Create: %v", err)
	}
	if created {
		t.Fatalf("replay must not create a second case")
	}
	if second.CaseID != first.CaseID {
		t.Fatalf("replay returned a different case: %s vs %s", second.CaseID, first.CaseID)
	}
}

func TestLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, _, err := s.Create(ctx, sampleCase("req_1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byReq, err := s.GetByRequestID(ctx, "req_1")
	if err != nil || byReq.CaseID != c.CaseID {
		t.Fatalf("GetByRequestID: %v %+v", err, byReq)
	}
	byCase, err := s.GetByCaseID(ctx, c.CaseID)
	if err != nil || byCase.RequestID != "req_1" {
		t.Fatalf("GetByCaseID: %v %+v", err, byCase)
	}
	if len(byCase.Reasons) != 1 || byCase.Reasons[0] != "very_high_amount_transaction" {
		t.Fatalf("reasons round-trip: %v", byCase.Reasons)
	}

	if _, err := s.GetByRequestID(ctx, "req_ghost"); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}
