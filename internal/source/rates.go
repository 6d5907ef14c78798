package source

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RateSnapshot is one fetched copy of the exchange-rate table.
type RateSnapshot struct {
	Base      string
	Rates     map[string]float64
	UpdatedAt time.Time
}

// Rate returns the rate for code and whether the snapshot has it.
func (s *RateSnapshot) Rate(code string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	r, ok := s.Rates[code]
	return r, ok
}

// RatesClient fetches exchange rates.
type RatesClient struct {
	url    string
	client *http.Client
}

// NewRatesClient creates a new exchange-rate client.
func NewRatesClient(url string, timeout time.Duration) *RatesClient {
	return &RatesClient{url: url, client: newHTTPClient(timeout)}
}

// FetchExchangeRates performs one request and returns the rate snapshot.
func (c *RatesClient) FetchExchangeRates(ctx context.Context) (*RateSnapshot, error) {
	var result struct {
		Result             string             `json:"result"`
		BaseCode           string             `json:"base_code"`
		TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
		Rates              map[string]float64 `json:"rates"`
	}
	if err := getJSON(ctx, c.client, NameExchangeRates, c.url, &result); err != nil {
		return nil, err
	}

	if result.Result != "" && result.Result != "success" {
		return nil, &Error{Source: NameExchangeRates, Err: fmt.Errorf("provider result %q", result.Result)}
	}
	if result.Rates == nil {
		return nil, &Error{Source: NameExchangeRates, Err: fmt.Errorf("response has no rates")}
	}

	snap := &RateSnapshot{
		Base:  result.BaseCode,
		Rates: result.Rates,
	}
	if result.TimeLastUpdateUnix > 0 {
		snap.UpdatedAt = time.Unix(result.TimeLastUpdateUnix, 0).UTC()
	}
	return snap, nil
}
