package database

import "time"

// Country is one persisted row of the countries table.
type Country struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Capital         *string   `json:"capital"`
	Region          *string   `json:"region"`
	Population      int64     `json:"population"`
	CurrencyCode    string    `json:"currency_code"`
	ExchangeRate    *float64  `json:"exchange_rate"`
	EstimatedGDP    *float64  `json:"estimated_gdp"`
	FlagURL         *string   `json:"flag_url"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// Status holds table-level figures.
type Status struct {
	TotalCountries  int        `json:"totalCountries"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt"`
}

// GDPEntry is one line of the top-by-GDP ranking.
type GDPEntry struct {
	Name         string
	EstimatedGDP float64
}
