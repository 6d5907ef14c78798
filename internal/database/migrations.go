package database

import (
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "countries table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS countries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL COLLATE NOCASE UNIQUE,
    capital TEXT,
    region TEXT,
    population INTEGER NOT NULL CHECK (population >= 0),
    currency_code TEXT NOT NULL,
    exchange_rate REAL,
    estimated_gdp REAL,
    flag_url TEXT,
    last_refreshed_at TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "filter indexes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_countries_region ON countries(region);
CREATE INDEX IF NOT EXISTS idx_countries_currency ON countries(currency_code);
CREATE INDEX IF NOT EXISTS idx_countries_gdp ON countries(estimated_gdp);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "unicode name key",
		Up:          migrateNameKey,
	},
}

// migrateNameKey rebuilds countries with a name_key column filled from
// NameKey. COLLATE NOCASE only folds ASCII, so uniqueness moves to name_key.
// Rows whose names collide under the new key keep the lowest id.
func migrateNameKey(tx *sql.Tx) error {
	_, err := tx.Exec(`
CREATE TABLE countries_v3 (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL UNIQUE,
    capital TEXT,
    region TEXT,
    population INTEGER NOT NULL CHECK (population >= 0),
    currency_code TEXT NOT NULL,
    exchange_rate REAL,
    estimated_gdp REAL,
    flag_url TEXT,
    last_refreshed_at TEXT NOT NULL
);
`)
	if err != nil {
		return err
	}

	type row struct {
		id   int64
		name string
	}
	rows, err := tx.Query("SELECT id, name FROM countries ORDER BY id")
	if err != nil {
		return err
	}
	var existing []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.name); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, r := range existing {
		key := NameKey(r.name)
		if seen[key] {
			continue
		}
		seen[key] = true
		_, err := tx.Exec(`
INSERT INTO countries_v3
    (id, name, name_key, capital, region, population, currency_code,
     exchange_rate, estimated_gdp, flag_url, last_refreshed_at)
SELECT id, name, ?, capital, region, population, currency_code,
       exchange_rate, estimated_gdp, flag_url, last_refreshed_at
FROM countries WHERE id = ?`, key, r.id)
		if err != nil {
			return fmt.Errorf("copying country %d: %w", r.id, err)
		}
	}

	_, err = tx.Exec(`
DROP TABLE countries;
ALTER TABLE countries_v3 RENAME TO countries;
CREATE INDEX IF NOT EXISTS idx_countries_region ON countries(region);
CREATE INDEX IF NOT EXISTS idx_countries_currency ON countries(currency_code);
CREATE INDEX IF NOT EXISTS idx_countries_gdp ON countries(estimated_gdp);
`)
	return err
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
