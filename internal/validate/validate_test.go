package validate

import (
	"errors"
	"testing"

	"github.com/TobiSchelling/CountrySync/internal/merge"
)

func int64p(v int64) *int64 { return &v }

func validRecord() merge.Record {
	return merge.Record{Name: "Ghana", Population: int64p(31072940), CurrencyCode: "GHS"}
}

func TestValidateAcceptsComplete(t *testing.T) {
	rec := validRecord()
	if err := New().Validate(&rec); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestValidateAcceptsZeroPopulationAndNoCurrency(t *testing.T) {
	rec := validRecord()
	rec.Population = int64p(0)
	rec.CurrencyCode = merge.NoCurrency
	if err := New().Validate(&rec); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*merge.Record)
		field string
	}{
		{"empty name", func(r *merge.Record) { r.Name = "" }, "name"},
		{"blank name", func(r *merge.Record) { r.Name = "   " }, "name"},
		{"nil population", func(r *merge.Record) { r.Population = nil }, "population"},
		{"negative population", func(r *merge.Record) { r.Population = int64p(-1) }, "population"},
		{"empty currency", func(r *merge.Record) { r.CurrencyCode = "" }, "currency_code"},
	}

	v := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.edit(&rec)

			err := v.Validate(&rec)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Errorf("expected failure on %q, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestValidateReportsAllFields(t *testing.T) {
	rec := merge.Record{}
	err := New().Validate(&rec)

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Errorf("expected 3 failing fields, got %v", verr.Fields)
	}
}
