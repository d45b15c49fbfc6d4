package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// AccountsClient talks to the accounts service for balances and holds.
type AccountsClient struct {
	client
}

func NewAccountsClient(baseURL string, opts Options) *AccountsClient {
	return &AccountsClient{client: newClient(baseURL, opts)}
}

// GetBalance fetches the customer's balance and available balance.
func (c *AccountsClient) GetBalance(ctx context.Context, customerID string) (*BalanceInfo, error) {
	var info BalanceInfo
	classify := func(status int, _ []byte) error {
		if status == http.StatusNotFound {
			return fmt.Errorf("%w: customer %s", ErrAccountNotFound, customerID)
		}
		return nil
	}
	path := "/accounts/" + url.PathEscape(customerID) + "/balance"
	if err := c.do(ctx, http.MethodGet, path, nil, classify, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reserve places a hold for amount under the given request token. The
// call is idempotent on the token so a transport-level retry of an
// already-placed hold succeeds.
func (c *AccountsClient) Reserve(ctx context.Context, customerID string, amount decimal.Decimal, requestID string) error {
	classify := func(status int, body []byte) error {
		if strings.Contains(string(body), "INSUFFICIENT_FUNDS") {
			return fmt.Errorf("%w: customer %s amount %s", ErrInsufficientFunds, customerID, amount.String())
		}
		if status == http.StatusNotFound {
			return fmt.Errorf("%w: customer %s", ErrAccountNotFound, customerID)
		}
		return nil
	}
	q := url.Values{
		"amount":    {amount.String()},
		"requestId": {requestID},
	}
	path := "/accounts/" + url.PathEscape(customerID) + "/reserve?" + q.Encode()
	return c.do(ctx, http.MethodPost, path, nil, classify, nil)
}
