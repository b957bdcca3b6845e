package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonearm/royaltyd/internal/constants"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/httpclient"
)

// Client fetches rates from an external exchange-rate service over HTTP.
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

type rateResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Date string          `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Rate queries GET /rates?from=&to=&date=. Transport failures and service
// errors surface as retryable external errors; a missing pair is not
// retryable.
func (c *Client) Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	u := fmt.Sprintf("%s/rates?%s", c.baseURL, url.Values{
		"from": {from},
		"to":   {to},
		"date": {date.UTC().Format("2006-01-02")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return decimal.Zero, &domain.ExternalError{Op: "fx rate " + from + "/" + to, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, &domain.ExternalError{
			Op:  "fx rate " + from + "/" + to,
			Err: &RateUnavailableError{From: from, To: to},
		}
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, &domain.ExternalError{
			Op:        "fx rate " + from + "/" + to,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, &domain.ExternalError{Op: "fx rate " + from + "/" + to, Err: err}
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, &domain.ExternalError{
			Op:  "fx rate " + from + "/" + to,
			Err: fmt.Errorf("non-positive rate %s", body.Rate),
		}
	}
	return body.Rate, nil
}
