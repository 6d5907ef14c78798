package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/CountrySync/internal/config"
	"github.com/TobiSchelling/CountrySync/internal/database"
	"github.com/TobiSchelling/CountrySync/internal/logging"
	"github.com/TobiSchelling/CountrySync/internal/merge"
	"github.com/TobiSchelling/CountrySync/internal/report"
	"github.com/TobiSchelling/CountrySync/internal/source"
)

type fakeCountries struct {
	facts []source.CountryFact
	err   error
	calls atomic.Int32
}

func (f *fakeCountries) FetchCountryFacts(ctx context.Context) ([]source.CountryFact, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.facts, nil
}

type fakeRates struct {
	snap     *source.RateSnapshot
	err      error
	failures int32
	calls    atomic.Int32
}

func (f *fakeRates) FetchExchangeRates(ctx context.Context) (*source.RateSnapshot, error) {
	n := f.calls.Add(1)
	if f.err != nil && n <= f.failures {
		return nil, f.err
	}
	return f.snap, nil
}

type failingStore struct {
	database.Store
	failName string
}

func (s *failingStore) UpsertCountry(ctx context.Context, c database.Country) (*database.Country, error) {
	if c.Name == s.failName {
		return nil, errors.New("disk full")
	}
	return s.Store.UpsertCountry(ctx, c)
}

type failingReporter struct{}

func (failingReporter) Generate(context.Context, time.Time) error {
	return errors.New("cache dir not writable")
}

func int64p(v int64) *int64 { return &v }

var started = time.Date(2025, 10, 22, 18, 0, 0, 0, time.UTC)

type harness struct {
	p         *Pipeline
	db        *database.DB
	countries *fakeCountries
	rates     *fakeRates
	reporter  *report.Generator
}

func newHarness(t *testing.T, facts []source.CountryFact, rates map[string]float64) *harness {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	gen := report.NewGenerator(db, filepath.Join(t.TempDir(), "cache"), 800, 400, logger)

	cfg := config.Default()
	cfg.Refresh.Workers = 4
	p := New(cfg, db, gen, logger)

	h := &harness{
		p:         p,
		db:        db,
		countries: &fakeCountries{facts: facts},
		rates:     &fakeRates{snap: &source.RateSnapshot{Base: "USD", Rates: rates}},
		reporter:  gen,
	}
	p.countries = h.countries
	p.rates = h.rates
	p.retryDelay = 0
	p.now = func() time.Time { return started }
	return h
}

func wakanda() []source.CountryFact {
	return []source.CountryFact{{
		Name:       "Wakanda",
		Population: int64p(1000),
		Currencies: []source.Currency{{Code: "WKD"}},
	}}
}

func TestRefreshWakandaWithRate(t *testing.T) {
	h := newHarness(t, wakanda(), map[string]float64{"WKD": 2.0})

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 || res.Stage != StageDone {
		t.Fatalf("expected 1 persisted and done, got %+v", res)
	}
	if res.RunID == "" {
		t.Error("expected run id")
	}

	c, err := h.db.GetCountryByName(context.Background(), "wakanda")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.CurrencyCode != "WKD" || c.ExchangeRate == nil || *c.ExchangeRate != 2.0 {
		t.Errorf("unexpected currency fields %+v", c)
	}
	if c.EstimatedGDP == nil {
		t.Fatal("expected estimated gdp")
	}
	gdp := *c.EstimatedGDP
	if math.IsNaN(gdp) || math.IsInf(gdp, 0) || gdp < 1000*1000/2.0 || gdp > 1000*2000/2.0 {
		t.Errorf("gdp %v outside [%v, %v]", gdp, 1000*1000/2.0, 1000*2000/2.0)
	}
	if !c.LastRefreshedAt.Equal(started) {
		t.Errorf("expected refreshed at %v, got %v", started, c.LastRefreshedAt)
	}
	if _, err := os.Stat(h.reporter.ImagePath()); err != nil {
		t.Errorf("expected summary image: %v", err)
	}
}

func TestRefreshWakandaWithoutRate(t *testing.T) {
	h := newHarness(t, wakanda(), map[string]float64{"USD": 1})

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("expected record to persist without a rate, got total %d", res.Total)
	}

	c, err := h.db.GetCountryByName(context.Background(), "Wakanda")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.ExchangeRate != nil || c.EstimatedGDP != nil {
		t.Errorf("expected null rate and gdp, got %v / %v", c.ExchangeRate, c.EstimatedGDP)
	}
}

func TestRefreshSkipsInvalidKeepsSiblings(t *testing.T) {
	facts := []source.CountryFact{
		{Name: "Ghana", Population: int64p(31072940), Currencies: []source.Currency{{Code: "GHS"}}},
		{Name: "NoPopulation", Currencies: []source.Currency{{Code: "USD"}}},
		{Name: "", Population: int64p(5)},
		{Name: "Nigeria", Population: int64p(206139589), Currencies: []source.Currency{{Code: "NGN"}}},
	}
	h := newHarness(t, facts, map[string]float64{"GHS": 12, "NGN": 1600, "USD": 1})

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fetched != 4 || res.Total != 2 || res.Invalid != 2 || res.Failed != 0 {
		t.Errorf("unexpected counts %+v", res)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("expected 2 skipped records, got %d", len(res.Skipped))
	}
	if _, err := h.db.GetCountryByName(context.Background(), "NoPopulation"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected record without population not to be stored, got %v", err)
	}
}

func TestRefreshAllInvalid(t *testing.T) {
	facts := []source.CountryFact{
		{Name: "A", Currencies: []source.Currency{{Code: "USD"}}},
		{Name: "B"},
	}
	h := newHarness(t, facts, map[string]float64{"USD": 1})

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res.Total != 0 || res.Stage != StageDone {
		t.Errorf("expected done with total 0, got %+v", res)
	}
	if _, err := os.Stat(h.reporter.ImagePath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no summary image, stat returned %v", err)
	}
}

func TestRefreshRatesFailureLeavesStoreUnchanged(t *testing.T) {
	h := newHarness(t, wakanda(), nil)
	h.rates.err = &source.Error{Source: source.NameExchangeRates, Err: errors.New("connection refused")}
	h.rates.failures = 100

	res, err := h.p.Refresh(context.Background())
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if source.SourceName(err) != source.NameExchangeRates {
		t.Errorf("expected failing source %q, got %q", source.NameExchangeRates, source.SourceName(err))
	}
	if res.Stage != StageFailed || res.Total != 0 {
		t.Errorf("expected failed run, got %+v", res)
	}

	status, err := h.db.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TotalCountries != 0 {
		t.Errorf("expected empty store, got %d rows", status.TotalCountries)
	}
}

func TestRefreshCountriesFailure(t *testing.T) {
	h := newHarness(t, nil, map[string]float64{"USD": 1})
	h.countries.err = &source.Error{Source: source.NameCountries, Err: errors.New("status 502")}

	if _, err := h.p.Refresh(context.Background()); !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestRefreshRetriesFetch(t *testing.T) {
	h := newHarness(t, wakanda(), map[string]float64{"WKD": 2})
	h.p.attempts = 3
	h.rates.err = &source.Error{Source: source.NameExchangeRates, Err: errors.New("timeout")}
	h.rates.failures = 2

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Total != 1 {
		t.Errorf("expected 1 persisted, got %d", res.Total)
	}
	if got := h.rates.calls.Load(); got != 3 {
		t.Errorf("expected 3 rate fetches, got %d", got)
	}
}

func TestRefreshTwiceOneRowDifferentEstimate(t *testing.T) {
	h := newHarness(t, wakanda(), map[string]float64{"WKD": 2})
	ctx := context.Background()

	h.p.merger = merge.NewMerger(merge.FixedMultiplier(1000))
	if _, err := h.p.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	first, _ := h.db.GetCountryByName(ctx, "Wakanda")

	h.p.merger = merge.NewMerger(merge.FixedMultiplier(2000))
	if _, err := h.p.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second, _ := h.db.GetCountryByName(ctx, "Wakanda")

	status, _ := h.db.GetStatus(ctx)
	if status.TotalCountries != 1 {
		t.Errorf("expected exactly one row after two refreshes, got %d", status.TotalCountries)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same row, got ids %d and %d", first.ID, second.ID)
	}
	// The estimate is not idempotent: a new multiplier means a new value.
	if *first.EstimatedGDP == *second.EstimatedGDP {
		t.Errorf("expected estimated gdp to change between refreshes, both %v", *first.EstimatedGDP)
	}
}

func TestRefreshPersistenceFailureIsCounted(t *testing.T) {
	facts := []source.CountryFact{
		{Name: "Ghana", Population: int64p(1), Currencies: []source.Currency{{Code: "GHS"}}},
		{Name: "Nigeria", Population: int64p(1), Currencies: []source.Currency{{Code: "NGN"}}},
	}
	h := newHarness(t, facts, map[string]float64{})
	h.p.store = &failingStore{Store: h.db, failName: "Nigeria"}

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 || res.Failed != 1 {
		t.Errorf("expected 1 persisted and 1 failed, got %+v", res)
	}
	if len(res.Skipped) != 1 || !errors.Is(res.Skipped[0].Err, ErrPersistenceFailed) {
		t.Errorf("expected ErrPersistenceFailed for skipped record, got %+v", res.Skipped)
	}
}

func TestRefreshReportFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, wakanda(), map[string]float64{"WKD": 2})
	h.p.reporter = failingReporter{}

	res, err := h.p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected success despite report failure, got %v", err)
	}
	last := res.Steps[len(res.Steps)-1]
	if last.Name != "Report" || last.Err == nil {
		t.Errorf("expected failed report step, got %+v", last)
	}
	if res.Total != 1 {
		t.Errorf("expected 1 persisted, got %d", res.Total)
	}
}
