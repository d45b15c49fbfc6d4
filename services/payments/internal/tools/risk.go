package tools

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// RiskClient talks to the risk service for per-payment signals.
type RiskClient struct {
	client
}

func NewRiskClient(baseURL string, opts Options) *RiskClient {
	return &RiskClient{client: newClient(baseURL, opts)}
}

// GetSignals scores the customer for a payment of the given amount.
func (c *RiskClient) GetSignals(ctx context.Context, customerID string, amount decimal.Decimal) (*RiskSignals, error) {
	var signals RiskSignals
	q := url.Values{"amount": {amount.String()}}
	path := "/risk/" + url.PathEscape(customerID) + "/signals?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &signals); err != nil {
		return nil, err
	}
	return &signals, nil
}
