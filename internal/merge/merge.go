// Package merge joins country facts with an exchange-rate snapshot and
// derives the estimated GDP of each country.
package merge

import (
	"time"

	"github.com/TobiSchelling/CountrySync/internal/source"
)

// NoCurrency is the currency code recorded for countries without currency data.
const NoCurrency = "N/A"

// Record is one merged country, the unit handed to validation and persistence.
type Record struct {
	Name            string   `validate:"required"`
	Capital         *string
	Region          *string
	Population      *int64   `validate:"required,gte=0"`
	CurrencyCode    string   `validate:"required"`
	ExchangeRate    *float64
	EstimatedGDP    *float64
	FlagURL         *string
	LastRefreshedAt time.Time
}

// Merger builds records from a fact list and a rate snapshot.
type Merger struct {
	multiplier Multiplier
}

// NewMerger creates a merger using m for the GDP estimate.
func NewMerger(m Multiplier) *Merger {
	return &Merger{multiplier: m}
}

// Merge returns one record per fact, in input order.
func (mg *Merger) Merge(facts []source.CountryFact, snap *source.RateSnapshot, refreshedAt time.Time) []Record {
	records := make([]Record, 0, len(facts))
	for _, f := range facts {
		records = append(records, mg.mergeOne(f, snap, refreshedAt))
	}
	return records
}

func (mg *Merger) mergeOne(f source.CountryFact, snap *source.RateSnapshot, refreshedAt time.Time) Record {
	code := NoCurrency
	if len(f.Currencies) > 0 {
		if c := NormalizeCurrency(f.Currencies[0].Code); c != "" {
			code = c
		}
	}

	rec := Record{
		Name:            trimmed(f.Name),
		Capital:         optional(f.Capital),
		Population:      f.Population,
		CurrencyCode:    code,
		FlagURL:         optional(f.Flag),
		LastRefreshedAt: refreshedAt,
	}
	if region := NormalizeRegion(f.Region); region != "" {
		rec.Region = &region
	}

	rate, ok := snap.Rate(code)
	if code == NoCurrency {
		ok = false
	}
	if ok {
		rec.ExchangeRate = &rate
	}
	if f.Population != nil {
		rec.EstimatedGDP = EstimateGDP(*f.Population, rate, ok, mg.multiplier)
	}
	return rec
}

func trimmed(s string) string {
	if p := optional(s); p != nil {
		return *p
	}
	return ""
}
