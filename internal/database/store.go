package database

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a get or delete target does not exist.
var ErrNotFound = errors.New("country not found")

// NameKey returns the key a country name is stored and matched under. It is
// a full Unicode lower-casing, so "Åland Islands" and "åland islands" share a
// key on every backend.
func NameKey(name string) string {
	return strings.ToLower(name)
}

// Store is the persistence handle shared by the refresh pipeline, the report
// generator and the read endpoints. Both the SQLite DB and the postgres
// backend implement it.
type Store interface {
	// UpsertCountry inserts c or overwrites every non-key field of the row
	// with the same case-insensitive name, and returns the persisted row.
	UpsertCountry(ctx context.Context, c Country) (*Country, error)
	ListCountries(ctx context.Context, f Filter) ([]Country, error)
	GetCountryByName(ctx context.Context, name string) (*Country, error)
	// DeleteCountryByName removes the row and returns it as it was.
	DeleteCountryByName(ctx context.Context, name string) (*Country, error)
	GetStatus(ctx context.Context) (*Status, error)
	// TopByGDP returns up to limit rows with a non-null estimated_gdp,
	// highest first.
	TopByGDP(ctx context.Context, limit int) ([]GDPEntry, error)
	Close() error
}

// Filter narrows ListCountries. Region and Currency are matched exactly, so
// callers pass values already normalized (Title-Case region, upper-case code).
type Filter struct {
	Region      *string
	Currency    *string
	SortGDPDesc bool
}
