package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func fptr(f float64) *float64 { return &f }

var ts = time.Date(2025, 10, 22, 18, 30, 0, 0, time.UTC)

func country(name, region, code string, gdp *float64) Country {
	return Country{
		Name:            name,
		Capital:         ptr(name + " City"),
		Region:          ptr(region),
		Population:      1000,
		CurrencyCode:    code,
		ExchangeRate:    fptr(2),
		EstimatedGDP:    gdp,
		LastRefreshedAt: ts,
	}
}

func TestUpsertInsertsCountry(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	c, err := db.UpsertCountry(ctx, country("Ghana", "Africa", "GHS", fptr(500)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID == 0 {
		t.Error("expected non-zero id")
	}
	if c.Capital == nil || *c.Capital != "Ghana City" {
		t.Errorf("unexpected capital %v", c.Capital)
	}
	if !c.LastRefreshedAt.Equal(ts) {
		t.Errorf("expected refreshed at %v, got %v", ts, c.LastRefreshedAt)
	}
	if c.FlagURL != nil {
		t.Errorf("expected nil flag url, got %q", *c.FlagURL)
	}
}

func TestUpsertSameNameOverwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.UpsertCountry(ctx, country("Ghana", "Africa", "GHS", fptr(500)))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := country("GHANA", "Africa", "USD", nil)
	second.Population = 2000
	second.LastRefreshedAt = ts.Add(time.Hour)
	got, err := db.UpsertCountry(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if got.ID != first.ID {
		t.Errorf("expected id %d to be kept, got %d", first.ID, got.ID)
	}
	if got.Name != "Ghana" {
		t.Errorf("expected stored spelling 'Ghana', got %q", got.Name)
	}
	if got.Population != 2000 || got.CurrencyCode != "USD" || got.EstimatedGDP != nil {
		t.Errorf("expected non-key fields overwritten, got %+v", got)
	}

	all, err := db.ListCountries(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly 1 row, got %d", len(all))
	}
}

func TestUpsertStoresZeroRate(t *testing.T) {
	db := openTestDB(t)
	c := country("Zed", "Europe", "ZZZ", nil)
	c.ExchangeRate = fptr(0)

	got, err := db.UpsertCountry(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ExchangeRate == nil || *got.ExchangeRate != 0 {
		t.Errorf("expected stored zero rate, got %v", got.ExchangeRate)
	}
}

func TestUpsertConcurrent(t *testing.T) {
	db := openTestDB(t)
	db.SetMaxConns(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every name is written twice.
			name := fmt.Sprintf("Country %d", i%20)
			if _, err := db.UpsertCountry(ctx, country(name, "Asia", "JPY", fptr(float64(i)))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}

	status, err := db.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TotalCountries != 20 {
		t.Errorf("expected 20 rows, got %d", status.TotalCountries)
	}
}

func TestListCountriesFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.UpsertCountry(ctx, country("France", "Europe", "EUR", fptr(300)))
	db.UpsertCountry(ctx, country("Germany", "Europe", "EUR", nil))
	db.UpsertCountry(ctx, country("Nigeria", "Africa", "NGN", fptr(900)))
	db.UpsertCountry(ctx, country("Sweden", "Europe", "SEK", fptr(100)))

	europe, err := db.ListCountries(ctx, Filter{Region: ptr("Europe")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(europe) != 3 {
		t.Errorf("expected 3 European countries, got %d", len(europe))
	}

	eur, err := db.ListCountries(ctx, Filter{Region: ptr("Europe"), Currency: ptr("EUR")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eur) != 2 || eur[0].Name != "France" || eur[1].Name != "Germany" {
		t.Errorf("expected France, Germany in id order, got %+v", eur)
	}

	none, err := db.ListCountries(ctx, Filter{Region: ptr("Oceania")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestListCountriesSortGDPNullsLast(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.UpsertCountry(ctx, country("A", "Europe", "EUR", nil))
	db.UpsertCountry(ctx, country("B", "Europe", "EUR", fptr(10)))
	db.UpsertCountry(ctx, country("C", "Europe", "EUR", fptr(30)))

	got, err := db.ListCountries(ctx, Filter{SortGDPDesc: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	if fmt.Sprint(names) != "[C B A]" {
		t.Errorf("expected [C B A], got %v", names)
	}
}

func TestGetCountryByNameCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.UpsertCountry(ctx, country("Nigeria", "Africa", "NGN", nil))

	c, err := db.GetCountryByName(ctx, "nIGERIA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "Nigeria" {
		t.Errorf("expected Nigeria, got %q", c.Name)
	}

	if _, err := db.GetCountryByName(ctx, "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCountryByName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.UpsertCountry(ctx, country("Nigeria", "Africa", "NGN", nil))
	db.UpsertCountry(ctx, country("Ghana", "Africa", "GHS", nil))

	deleted, err := db.DeleteCountryByName(ctx, "NIGERIA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.Name != "Nigeria" {
		t.Errorf("expected deleted row Nigeria, got %q", deleted.Name)
	}

	if _, err := db.DeleteCountryByName(ctx, "Nigeria"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	status, _ := db.GetStatus(ctx)
	if status.TotalCountries != 1 {
		t.Errorf("expected 1 remaining row, got %d", status.TotalCountries)
	}
}

func TestGetStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	empty, err := db.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if empty.TotalCountries != 0 || empty.LastRefreshedAt != nil {
		t.Errorf("expected empty status, got %+v", empty)
	}

	older := country("A", "Europe", "EUR", nil)
	newer := country("B", "Europe", "EUR", nil)
	newer.LastRefreshedAt = ts.Add(90 * time.Minute)
	db.UpsertCountry(ctx, newer)
	db.UpsertCountry(ctx, older)

	s, err := db.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.TotalCountries != 2 {
		t.Errorf("expected 2, got %d", s.TotalCountries)
	}
	if s.LastRefreshedAt == nil || !s.LastRefreshedAt.Equal(newer.LastRefreshedAt) {
		t.Errorf("expected last refreshed %v, got %v", newer.LastRefreshedAt, s.LastRefreshedAt)
	}
}

func TestTopByGDP(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		db.UpsertCountry(ctx, country(fmt.Sprintf("C%d", i), "Asia", "JPY", fptr(float64(i*100))))
	}
	db.UpsertCountry(ctx, country("NoGDP", "Asia", "JPY", nil))

	top, err := db.TopByGDP(ctx, 5)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(top))
	}
	if top[0].Name != "C7" || top[0].EstimatedGDP != 700 || top[4].Name != "C3" {
		t.Errorf("unexpected ranking %+v", top)
	}
}

func TestNameMatchingFoldsNonASCII(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	names := []string{"Åland Islands", "Curaçao", "Côte d'Ivoire"}
	for _, n := range names {
		if _, err := db.UpsertCountry(ctx, country(n, "Europe", "EUR", nil)); err != nil {
			t.Fatalf("upsert %s: %v", n, err)
		}
	}

	again, err := db.UpsertCountry(ctx, country("CURAÇAO", "Americas", "ANG", nil))
	if err != nil {
		t.Fatalf("upsert upper-case: %v", err)
	}
	if again.Name != "Curaçao" || again.CurrencyCode != "ANG" {
		t.Errorf("expected Curaçao row overwritten in place, got %+v", again)
	}

	all, err := db.ListCountries(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(names) {
		t.Errorf("expected %d rows, got %d", len(names), len(all))
	}

	got, err := db.GetCountryByName(ctx, "åland islands")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Åland Islands" {
		t.Errorf("expected Åland Islands, got %q", got.Name)
	}

	deleted, err := db.DeleteCountryByName(ctx, "CÔTE D'IVOIRE")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Name != "Côte d'Ivoire" {
		t.Errorf("unexpected deleted row %+v", deleted)
	}
	if _, err := db.GetCountryByName(ctx, "côte d'ivoire"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
