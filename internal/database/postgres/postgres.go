// Package postgres is the PostgreSQL implementation of database.Store,
// built on a pgx connection pool with golang-migrate schema migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/CountrySync/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements database.Store on a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// Open connects to dsn, applies pending migrations and returns the store.
// maxConns bounds the pool; zero keeps the pgx default.
func Open(ctx context.Context, dsn string, maxConns int, logger *logrus.Logger) (*Store, error) {
	if err := Migrate(dsn, logger); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	logger.WithField("max_conns", poolCfg.MaxConns).Info("connected to postgres")
	return &Store{pool: pool}, nil
}

// Migrate applies the embedded SQL migrations using the pgx5 driver.
func Migrate(dsn string, logger *logrus.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	return nil
}

// migrateURL rewrites a postgres:// DSN to the pgx5:// scheme golang-migrate
// registers for its pgx driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const countryColumns = `id, name, capital, region, population, currency_code,
	exchange_rate, estimated_gdp, flag_url, last_refreshed_at`

// UpsertCountry inserts or updates a country keyed by database.NameKey.
func (s *Store) UpsertCountry(ctx context.Context, c database.Country) (*database.Country, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO countries
			(name, name_key, capital, region, population, currency_code, exchange_rate, estimated_gdp, flag_url, last_refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name_key) DO UPDATE SET
			capital = EXCLUDED.capital,
			region = EXCLUDED.region,
			population = EXCLUDED.population,
			currency_code = EXCLUDED.currency_code,
			exchange_rate = EXCLUDED.exchange_rate,
			estimated_gdp = EXCLUDED.estimated_gdp,
			flag_url = EXCLUDED.flag_url,
			last_refreshed_at = EXCLUDED.last_refreshed_at
		RETURNING `+countryColumns,
		c.Name, database.NameKey(c.Name), c.Capital, c.Region, c.Population, c.CurrencyCode,
		c.ExchangeRate, c.EstimatedGDP, c.FlagURL, c.LastRefreshedAt.UTC(),
	)
	out, err := scanCountry(row)
	if err != nil {
		return nil, fmt.Errorf("upserting %q: %w", c.Name, err)
	}
	return out, nil
}

// ListCountries returns rows matching f, by id or by GDP with nulls last.
func (s *Store) ListCountries(ctx context.Context, f database.Filter) ([]database.Country, error) {
	query := "SELECT " + countryColumns + " FROM countries WHERE TRUE"
	var args []any
	if f.Region != nil {
		args = append(args, *f.Region)
		query += fmt.Sprintf(" AND region = $%d", len(args))
	}
	if f.Currency != nil {
		args = append(args, *f.Currency)
		query += fmt.Sprintf(" AND currency_code = $%d", len(args))
	}
	if f.SortGDPDesc {
		query += " ORDER BY estimated_gdp DESC NULLS LAST, id"
	} else {
		query += " ORDER BY id"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := []database.Country{}
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		countries = append(countries, *c)
	}
	return countries, rows.Err()
}

// GetCountryByName looks a country up by case-insensitive name.
func (s *Store) GetCountryByName(ctx context.Context, name string) (*database.Country, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+countryColumns+" FROM countries WHERE name_key = $1", database.NameKey(name))
	return notFound(scanCountry(row))
}

// DeleteCountryByName deletes a country by case-insensitive name and returns it.
func (s *Store) DeleteCountryByName(ctx context.Context, name string) (*database.Country, error) {
	row := s.pool.QueryRow(ctx,
		"DELETE FROM countries WHERE name_key = $1 RETURNING "+countryColumns, database.NameKey(name))
	return notFound(scanCountry(row))
}

// GetStatus returns the row count and the latest refresh timestamp.
func (s *Store) GetStatus(ctx context.Context) (*database.Status, error) {
	var st database.Status
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*)::int, MAX(last_refreshed_at) FROM countries",
	).Scan(&st.TotalCountries, &st.LastRefreshedAt)
	if err != nil {
		return nil, err
	}
	if st.LastRefreshedAt != nil {
		t := st.LastRefreshedAt.UTC()
		st.LastRefreshedAt = &t
	}
	return &st, nil
}

// TopByGDP returns up to limit countries with the highest non-null GDP.
func (s *Store) TopByGDP(ctx context.Context, limit int) ([]database.GDPEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, estimated_gdp FROM countries
		WHERE estimated_gdp IS NOT NULL
		ORDER BY estimated_gdp DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []database.GDPEntry
	for rows.Next() {
		var e database.GDPEntry
		if err := rows.Scan(&e.Name, &e.EstimatedGDP); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanCountry(row pgx.Row) (*database.Country, error) {
	var c database.Country
	if err := row.Scan(&c.ID, &c.Name, &c.Capital, &c.Region, &c.Population, &c.CurrencyCode,
		&c.ExchangeRate, &c.EstimatedGDP, &c.FlagURL, &c.LastRefreshedAt); err != nil {
		return nil, err
	}
	c.LastRefreshedAt = c.LastRefreshedAt.UTC()
	return &c, nil
}

func notFound(c *database.Country, err error) (*database.Country, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	return c, err
}
