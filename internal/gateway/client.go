package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/constants"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/httpclient"
)

// Client talks to the payment provider's HTTP API.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.NewClient(nil, constants.DefaultRequestInterval),
	}
}

type executeRequest struct {
	PayoutID    string          `json:"payout_id"`
	RecipientID string          `json:"recipient_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
}

type executeResponse struct {
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Execute posts the payout to the provider. The payout ID doubles as the
// provider-side idempotency key, so a retried call cannot pay twice.
func (c *Client) Execute(ctx context.Context, payout *domain.Payout) (Result, error) {
	body, err := json.Marshal(executeRequest{
		PayoutID:    payout.ID,
		RecipientID: payout.RecipientID,
		Currency:    payout.Currency,
		Amount:      payout.NetAmount,
		Method:      string(payout.Method),
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payout.ID)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Result{}, &domain.ExternalError{Op: "payment execute", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &domain.ExternalError{
			Op:        "payment execute",
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, &domain.ExternalError{Op: "payment execute", Err: err}
	}
	return Result{Accepted: out.Accepted, Reference: out.Reference, Reason: out.Reason}, nil
}
