// Package service scores payments. The heuristic is a stand-in for a
// real model: deterministic in its inputs so callers can be tested
// against it, but shaped like production output (score, band, weighted
// factors).
package service

import (
	"fmt"
	"hash/fnv"

	"github.com/shopspring/decimal"
)

type Factor struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Weight int    `json:"weight"`
}

type Assessment struct {
	CustomerID  string   `json:"customerId"`
	RiskScore   int      `json:"riskScore"`
	RiskLevel   string   `json:"riskLevel"`
	RiskFactors []Factor `json:"riskFactors"`
}

type Scorer struct {
	HighAmount     decimal.Decimal
	VeryHighAmount decimal.Decimal
}

func NewScorer() *Scorer {
	return &Scorer{
		HighAmount:     decimal.NewFromInt(500),
		VeryHighAmount: decimal.NewFromInt(1000),
	}
}

// Assess produces a deterministic risk assessment. The customer hash
// stands in for account history; the amount terms mirror how real
// models weight transaction size.
func (s *Scorer) Assess(customerID string, amount decimal.Decimal) Assessment {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	seed := h.Sum32()

	score := 10 + int(seed%31)
	var factors []Factor

	if seed%23 == 0 {
		score += 25
		factors = append(factors, Factor{
			Type:   "fraud_history",
			Value:  "prior confirmed fraud report",
			Weight: 9,
		})
	}
	if seed%11 == 0 {
		score += 15
		factors = append(factors, Factor{
			Type:   "dispute_history",
			Value:  "chargeback disputes on record",
			Weight: 8,
		})
	}
	if seed%7 == 0 {
		score += 10
		factors = append(factors, Factor{
			Type:   "new_payee",
			Value:  "no prior transfers to this payee",
			Weight: 5,
		})
	}

	if amount.GreaterThan(s.VeryHighAmount) {
		score += 30
		factors = append(factors, Factor{
			Type:   "very_high_amount",
			Value:  fmt.Sprintf("amount %s above %s", amount.StringFixed(2), s.VeryHighAmount.StringFixed(2)),
			Weight: 9,
		})
	} else if amount.GreaterThan(s.HighAmount) {
		score += 15
		factors = append(factors, Factor{
			Type:   "high_amount",
			Value:  fmt.Sprintf("amount %s above %s", amount.StringFixed(2), s.HighAmount.StringFixed(2)),
			Weight: 6,
		})
	}

	if score > 100 {
		score = 100
	}

	return Assessment{
		CustomerID:  customerID,
		RiskScore:   score,
		RiskLevel:   band(score),
		RiskFactors: factors,
	}
}

func band(score int) string {
	switch {
	case score >= 80:
		return "CRITICAL"
	case score >= 60:
		return "HIGH"
	case score >= 40:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
