package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CasesClient talks to the case-management service.
type CasesClient struct {
	client
}

func NewCasesClient(baseURL string, opts Options) *CasesClient {
	return &CasesClient{client: newClient(baseURL, opts)}
}

// CreateCase opens a review or block case. The cases service dedupes on
// the request token, so replays return the original case id.
func (c *CasesClient) CreateCase(ctx context.Context, req CaseRequest) (*CaseResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal case request: %w", err)
	}
	var result CaseResult
	if err := c.do(ctx, http.MethodPost, "/cases", body, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
