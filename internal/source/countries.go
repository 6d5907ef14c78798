package source

import (
	"context"
	"net/http"
	"time"
)

// Currency is one entry of a country's currency list.
type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// CountryFact is a country as reported by the facts provider.
// Population is a pointer so a missing value can be told apart from zero.
type CountryFact struct {
	Name       string     `json:"name"`
	Capital    string     `json:"capital"`
	Region     string     `json:"region"`
	Population *int64     `json:"population"`
	Flag       string     `json:"flag"`
	Currencies []Currency `json:"currencies"`
}

// CountryClient fetches country facts.
type CountryClient struct {
	url    string
	client *http.Client
}

// NewCountryClient creates a new country facts client.
func NewCountryClient(url string, timeout time.Duration) *CountryClient {
	return &CountryClient{url: url, client: newHTTPClient(timeout)}
}

// FetchCountryFacts performs one request and returns the decoded facts in
// upstream order.
func (c *CountryClient) FetchCountryFacts(ctx context.Context) ([]CountryFact, error) {
	var facts []CountryFact
	if err := getJSON(ctx, c.client, NameCountries, c.url, &facts); err != nil {
		return nil, err
	}
	return facts, nil
}
