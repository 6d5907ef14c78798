// Package pipeline runs a refresh: fetch both upstream feeds, merge them,
// validate and upsert every record, then regenerate the summary image.
//
// A refresh is idempotent per record (the same name always lands on the same
// row) but not in its derived values: estimated_gdp is drawn with a random
// multiplier, so two refreshes of identical upstream data store different
// estimates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/CountrySync/internal/config"
	"github.com/TobiSchelling/CountrySync/internal/database"
	"github.com/TobiSchelling/CountrySync/internal/merge"
	"github.com/TobiSchelling/CountrySync/internal/source"
	"github.com/TobiSchelling/CountrySync/internal/validate"
)

// ErrPersistenceFailed wraps a single record's store error.
var ErrPersistenceFailed = errors.New("persistence failed")

// Stage is a refresh state.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageMerging    Stage = "merging"
	StagePersisting Stage = "validating_persisting"
	StageReporting  Stage = "reporting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// CountryFetcher supplies country facts.
type CountryFetcher interface {
	FetchCountryFacts(ctx context.Context) ([]source.CountryFact, error)
}

// RatesFetcher supplies an exchange-rate snapshot.
type RatesFetcher interface {
	FetchExchangeRates(ctx context.Context) (*source.RateSnapshot, error)
}

// Reporter regenerates the summary after records are persisted.
type Reporter interface {
	Generate(ctx context.Context, ts time.Time) error
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Skipped is a record that was not persisted.
type Skipped struct {
	Name string
	Err  error
}

// Result holds the results of a refresh run. Total counts records persisted
// by this run only.
type Result struct {
	RunID           string
	Stage           Stage
	Message         string
	Fetched         int
	Total           int
	Invalid         int
	Failed          int
	LastRefreshedAt time.Time
	Steps           []StepResult
	Skipped         []Skipped
}

// Pipeline orchestrates refresh runs. Runs on one Pipeline are serialized.
type Pipeline struct {
	countries  CountryFetcher
	rates      RatesFetcher
	store      database.Store
	merger     *merge.Merger
	validator  *validate.Validator
	reporter   Reporter
	logger     *logrus.Logger
	workers    int
	attempts   int
	retryDelay time.Duration
	now        func() time.Time

	mu sync.Mutex
}

// New creates a pipeline wired to the configured upstream feeds.
func New(cfg *config.Config, store database.Store, reporter Reporter, logger *logrus.Logger) *Pipeline {
	src := cfg.Sources
	return &Pipeline{
		countries: source.NewCountryClient(src.CountriesURL, src.Timeout),
		rates:     source.NewRatesClient(src.RatesURL, src.Timeout),
		store:     store,
		merger: merge.NewMerger(merge.RandomMultiplier{
			Min: cfg.Estimator.MinMultiplier,
			Max: cfg.Estimator.MaxMultiplier,
		}),
		validator:  validate.New(),
		reporter:   reporter,
		logger:     logger,
		workers:    cfg.Refresh.Workers,
		attempts:   src.Attempts,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
}

// Refresh runs one full refresh. It returns an error wrapping
// source.ErrSourceUnavailable when either feed cannot be fetched, in which
// case nothing is written. Per-record failures never fail the run.
func (p *Pipeline) Refresh(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.now().UTC()
	r := &Result{
		RunID:           uuid.NewString(),
		Stage:           StageFetching,
		LastRefreshedAt: started,
	}
	log := p.logger.WithField("run_id", r.RunID)
	log.Info("refresh started")

	defer func() {
		refreshDuration.Observe(time.Since(started).Seconds())
	}()

	// Fetching
	facts, snap, err := p.fetch(ctx, log)
	if err != nil {
		r.Stage = StageFailed
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Err: err})
		refreshTotal.WithLabelValues("source_unavailable").Inc()
		log.WithFields(logrus.Fields{
			"stage":  StageFetching,
			"source": source.SourceName(err),
			"error":  err,
		}).Error("refresh aborted")
		return r, err
	}
	r.Fetched = len(facts)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d countries and %d exchange rates", len(facts), len(snap.Rates)),
	})
	log.WithFields(logrus.Fields{
		"count":         len(facts),
		"rates_updated": snap.UpdatedAt,
	}).Info("sources fetched")

	// Merging
	r.Stage = StageMerging
	records := p.merger.Merge(facts, snap, started)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("Merged %d records", len(records)),
	})

	// Validating & persisting
	r.Stage = StagePersisting
	p.persist(ctx, records, r, log)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("Persisted %d records, %d invalid, %d failed", r.Total, r.Invalid, r.Failed),
	})
	refreshRecordsTotal.WithLabelValues("persisted").Add(float64(r.Total))
	refreshRecordsTotal.WithLabelValues("invalid").Add(float64(r.Invalid))
	refreshRecordsTotal.WithLabelValues("failed").Add(float64(r.Failed))

	// Reporting
	r.Stage = StageReporting
	step := StepResult{Name: "Report", Summary: "Summary image regenerated"}
	if p.reporter == nil {
		step.Summary = "No report generator configured"
	} else if err := p.reporter.Generate(ctx, started); err != nil {
		step = StepResult{Name: "Report", Err: err}
		log.WithFields(logrus.Fields{"stage": StageReporting, "error": err}).Error("report generation failed")
	}
	r.Steps = append(r.Steps, step)

	r.Stage = StageDone
	r.Message = "Countries refreshed successfully"
	refreshTotal.WithLabelValues("success").Inc()
	log.WithFields(logrus.Fields{
		"count":   r.Total,
		"invalid": r.Invalid,
		"failed":  r.Failed,
	}).Info("refresh finished")
	return r, nil
}

// fetch runs both upstream fetches concurrently. The first failure cancels
// the other.
func (p *Pipeline) fetch(ctx context.Context, log *logrus.Entry) ([]source.CountryFact, *source.RateSnapshot, error) {
	var (
		facts []source.CountryFact
		snap  *source.RateSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.retry(gctx, log, source.NameCountries, func(ctx context.Context) error {
			var err error
			facts, err = p.countries.FetchCountryFacts(ctx)
			return err
		})
	})
	g.Go(func() error {
		return p.retry(gctx, log, source.NameExchangeRates, func(ctx context.Context) error {
			var err error
			snap, err = p.rates.FetchExchangeRates(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return facts, snap, nil
}

// retry calls fn up to p.attempts times, waiting retryDelay times the attempt
// number between calls.
func (p *Pipeline) retry(ctx context.Context, log *logrus.Entry, name string, fn func(context.Context) error) error {
	attempts := max(p.attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		err = fn(ctx)
		sourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.WithFields(logrus.Fields{
			"source":  name,
			"attempt": attempt,
			"error":   err,
		}).Warn("fetch failed, retrying")

		select {
		case <-ctx.Done():
			return &source.Error{Source: name, Err: ctx.Err()}
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		}
	}
	return err
}

// persist validates and upserts records with at most p.workers concurrent
// writes. Failures are folded into r, never returned.
func (p *Pipeline) persist(ctx context.Context, records []merge.Record, r *Result, log *logrus.Entry) {
	var mu sync.Mutex
	skip := func(name string, err error, invalid bool) {
		mu.Lock()
		defer mu.Unlock()
		if invalid {
			r.Invalid++
		} else {
			r.Failed++
		}
		r.Skipped = append(r.Skipped, Skipped{Name: name, Err: err})
	}

	var g errgroup.Group
	g.SetLimit(max(p.workers, 1))
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			entry := log.WithFields(logrus.Fields{"stage": StagePersisting, "country": rec.Name})

			if err := p.validator.Validate(rec); err != nil {
				entry.WithField("error", err).Warn("record skipped")
				skip(rec.Name, err, true)
				return nil
			}

			if _, err := p.store.UpsertCountry(ctx, toCountry(rec)); err != nil {
				err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
				entry.WithField("error", err).Warn("record not persisted")
				skip(rec.Name, err, false)
				return nil
			}

			mu.Lock()
			r.Total++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// toCountry converts a validated record; Population is non-nil after validation.
func toCountry(rec *merge.Record) database.Country {
	return database.Country{
		Name:            rec.Name,
		Capital:         rec.Capital,
		Region:          rec.Region,
		Population:      *rec.Population,
		CurrencyCode:    rec.CurrencyCode,
		ExchangeRate:    rec.ExchangeRate,
		EstimatedGDP:    rec.EstimatedGDP,
		FlagURL:         rec.FlagURL,
		LastRefreshedAt: rec.LastRefreshedAt,
	}
}
