// Package validate checks merged records before they are persisted.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/TobiSchelling/CountrySync/internal/merge"
)

// ErrValidationFailed is wrapped by every error Validate returns.
var ErrValidationFailed = errors.New("validation failed")

// Error lists the fields a record failed on, keyed by snake_case field name.
type Error struct {
	Record string
	Fields map[string]string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range fieldOrder {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return fmt.Sprintf("%s: record %q: %s", ErrValidationFailed, e.Record, strings.Join(parts, ", "))
}

func (e *Error) Unwrap() error { return ErrValidationFailed }

var fieldOrder = []string{"name", "population", "currency_code"}

var fieldNames = map[string]string{
	"Name":         "name",
	"Population":   "population",
	"CurrencyCode": "currency_code",
}

// Validator wraps a go-playground validator. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns nil when rec may be persisted. Names are checked after
// trimming so whitespace-only names are rejected.
func (v *Validator) Validate(rec *merge.Record) error {
	fields := map[string]string{}

	if strings.TrimSpace(rec.Name) == "" {
		fields["name"] = "is required"
	}

	if err := v.v.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		for _, fe := range verrs {
			name, ok := fieldNames[fe.StructField()]
			if !ok {
				name = strings.ToLower(fe.StructField())
			}
			fields[name] = message(fe)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &Error{Record: rec.Name, Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
