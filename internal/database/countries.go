package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const countryColumns = `id, name, capital, region, population, currency_code,
	exchange_rate, estimated_gdp, flag_url, last_refreshed_at`

// UpsertCountry inserts or updates a country keyed by case-insensitive name.
// The stored spelling of name and the row id are never changed by an update.
func (db *DB) UpsertCountry(ctx context.Context, c Country) (*Country, error) {
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO countries
			(name, name_key, capital, region, population, currency_code, exchange_rate, estimated_gdp, flag_url, last_refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_key) DO UPDATE SET
			capital = excluded.capital,
			region = excluded.region,
			population = excluded.population,
			currency_code = excluded.currency_code,
			exchange_rate = excluded.exchange_rate,
			estimated_gdp = excluded.estimated_gdp,
			flag_url = excluded.flag_url,
			last_refreshed_at = excluded.last_refreshed_at
		RETURNING `+countryColumns,
		c.Name, NameKey(c.Name), c.Capital, c.Region, c.Population, c.CurrencyCode,
		c.ExchangeRate, c.EstimatedGDP, c.FlagURL, formatTime(c.LastRefreshedAt),
	)
	out, err := scanCountry(row)
	if err != nil {
		return nil, fmt.Errorf("upserting %q: %w", c.Name, err)
	}
	return out, nil
}

// ListCountries returns the rows matching f, in id order unless f asks for
// GDP order (nulls last).
func (db *DB) ListCountries(ctx context.Context, f Filter) ([]Country, error) {
	query := "SELECT " + countryColumns + " FROM countries WHERE 1=1"
	var args []any
	if f.Region != nil {
		query += " AND region = ?"
		args = append(args, *f.Region)
	}
	if f.Currency != nil {
		query += " AND currency_code = ?"
		args = append(args, *f.Currency)
	}
	if f.SortGDPDesc {
		query += " ORDER BY estimated_gdp IS NULL, estimated_gdp DESC, id"
	} else {
		query += " ORDER BY id"
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCountries(rows)
}

// GetCountryByName returns the country with the given name, compared
// case-insensitively through name_key.
func (db *DB) GetCountryByName(ctx context.Context, name string) (*Country, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+countryColumns+" FROM countries WHERE name_key = ?", NameKey(name))
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// DeleteCountryByName deletes the country with the given name and returns it.
func (db *DB) DeleteCountryByName(ctx context.Context, name string) (*Country, error) {
	row := db.conn.QueryRowContext(ctx,
		"DELETE FROM countries WHERE name_key = ? RETURNING "+countryColumns, NameKey(name))
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetStatus returns the row count and the latest refresh timestamp.
func (db *DB) GetStatus(ctx context.Context) (*Status, error) {
	var s Status
	var last sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(last_refreshed_at) FROM countries",
	).Scan(&s.TotalCountries, &last)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t, err := parseTime(last.String)
		if err != nil {
			return nil, err
		}
		s.LastRefreshedAt = &t
	}
	return &s, nil
}

// TopByGDP returns the limit countries with the highest estimated GDP.
func (db *DB) TopByGDP(ctx context.Context, limit int) ([]GDPEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, estimated_gdp FROM countries
		WHERE estimated_gdp IS NOT NULL
		ORDER BY estimated_gdp DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GDPEntry
	for rows.Next() {
		var e GDPEntry
		if err := rows.Scan(&e.Name, &e.EstimatedGDP); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCountries(rows *sql.Rows) ([]Country, error) {
	countries := []Country{}
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		countries = append(countries, *c)
	}
	return countries, rows.Err()
}

func scanCountry(row rowScanner) (*Country, error) {
	var c Country
	var refreshed string
	if err := row.Scan(&c.ID, &c.Name, &c.Capital, &c.Region, &c.Population, &c.CurrencyCode,
		&c.ExchangeRate, &c.EstimatedGDP, &c.FlagURL, &refreshed); err != nil {
		return nil, err
	}
	t, err := parseTime(refreshed)
	if err != nil {
		return nil, err
	}
	c.LastRefreshedAt = t
	return &c, nil
}
