package agent

import (
	"github.com/shopspring/decimal"

	"github.com/paynow/paynow/services/payments/internal/tools"
)

// Policy holds the decision thresholds. The defaults mirror production
// behavior; they are configuration so business can tune them without a
// code change.
type Policy struct {
	HighAmount     decimal.Decimal
	VeryHighAmount decimal.Decimal
	HighRiskScore  int
	ReasonWeight   int
}

func DefaultPolicy() Policy {
	return Policy{
		HighAmount:     decimal.NewFromInt(500),
		VeryHighAmount: decimal.NewFromInt(1000),
		HighRiskScore:  80,
		ReasonWeight:   8,
	}
}

// Evaluate is a pure function of balance, risk signals, and the request
// amount. It never blocks and never looks at the clock, so the same
// inputs always produce the same decision.
func (p Policy) Evaluate(req Request, balance *tools.BalanceInfo, risk *tools.RiskSignals) (Decision, []string) {
	if balance.AccountStatus != "ACTIVE" {
		return DecisionBlock, []string{ReasonAccountNotActive}
	}
	if req.Amount.GreaterThan(balance.AvailableBalance) {
		return DecisionBlock, []string{ReasonInsufficient}
	}

	var reasons []string
	highRisk := false

	if risk.RiskLevel == "CRITICAL" {
		highRisk = true
		reasons = append(reasons, ReasonCriticalRisk)
	}
	if risk.RiskScore > p.HighRiskScore {
		highRisk = true
		reasons = append(reasons, ReasonHighRiskScore)
	}
	for _, f := range risk.RiskFactors {
		if f.Weight >= p.ReasonWeight {
			highRisk = true
			reasons = append(reasons, "risk_factor_"+f.Type)
		}
	}

	highAmount := req.Amount.GreaterThan(p.HighAmount)
	veryHighAmount := req.Amount.GreaterThan(p.VeryHighAmount)
	if highAmount {
		reasons = append(reasons, ReasonHighAmount)
	}
	if veryHighAmount {
		reasons = append(reasons, ReasonVeryHighAmount)
		highRisk = true
	}

	// Blocking requires high risk plus an escalator: a very high amount
	// or a CRITICAL level. High-weight factors alone stop at REVIEW.
	switch {
	case highRisk && (veryHighAmount || risk.RiskLevel == "CRITICAL"):
		return DecisionBlock, reasons
	case highRisk:
		return DecisionReview, reasons
	case highAmount && risk.RiskLevel == "MEDIUM":
		return DecisionReview, append(reasons, ReasonMediumRiskHigh)
	default:
		if len(reasons) == 0 {
			reasons = append(reasons, ReasonLowRisk)
		}
		return DecisionAllow, reasons
	}
}
