// Package source fetches the two upstream feeds a refresh depends on:
// country facts and currency exchange rates.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	NameCountries     = "countries"
	NameExchangeRates = "exchange_rates"
)

// ErrSourceUnavailable is returned for any network, status or decode failure.
var ErrSourceUnavailable = errors.New("external source unavailable")

// Error identifies which feed failed. It matches ErrSourceUnavailable with errors.Is.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// SourceName returns the failing feed name if err came from this package.
func SourceName(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Source
	}
	return ""
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs one GET and decodes the body into dest. Every failure is
// reported as an *Error for the named source.
func getJSON(ctx context.Context, client *http.Client, name, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Source: name, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "countrysync/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Source: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{Source: name, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Source: name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
