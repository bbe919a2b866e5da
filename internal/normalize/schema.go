package normalize

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// Parser converts one raw cell into its canonical value.
type Parser func(raw any) (any, error)

// Field maps raw column names onto one canonical field.
//
// Raw lists accepted column names in priority order; the first non-blank one
// wins. A blank or missing value takes Default; a nil Default makes the field
// required, so the row is malformed without it.
type Field struct {
	Raw       []string
	Canonical string
	Default   any
	Parse     Parser
}

// Schema is the normalization table of one raw row shape.
type Schema struct {
	Name   string
	Fields []Field
}

// Values holds the canonical fields of one normalized row.
type Values map[string]any

// Apply normalizes a raw row. The returned error wraps ErrMalformedRecord.
func (s Schema) Apply(row domain.Row) (Values, error) {
	out := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := lookup(row, f.Raw)
		if !ok {
			if f.Default == nil {
				return nil, fmt.Errorf("%w: %s: missing %s", ErrMalformedRecord, s.Name, f.Canonical)
			}
			out[f.Canonical] = f.Default
			continue
		}
		v, err := f.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Canonical, err)
		}
		out[f.Canonical] = v
	}
	return out, nil
}

func lookup(row domain.Row, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := row[name]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

// Date returns a canonical date field.
func (v Values) Date(name string) time.Time {
	t, _ := v[name].(time.Time)
	return t
}

// Label returns a canonical text field.
func (v Values) Label(name string) string {
	s, _ := v[name].(string)
	return s
}

// Amount returns a canonical numeric field.
func (v Values) Amount(name string) decimal.Decimal {
	d, _ := v[name].(decimal.Decimal)
	return d
}

// Count returns a canonical numeric field truncated to an integer.
func (v Values) Count(name string) int64 {
	return v.Amount(name).IntPart()
}

func dateParser(raw any) (any, error) {
	return ParseDate(raw)
}

func amountParser(raw any) (any, error) {
	return ParseAmount(raw)
}

// labelParser keeps the default when the trimmed value is empty.
func labelParser(def string) Parser {
	return func(raw any) (any, error) {
		s, err := ParseLabel(raw)
		if err != nil || s == "" {
			return def, nil
		}
		return s, nil
	}
}

func dateField(raw ...string) Field {
	return Field{Raw: raw, Canonical: "date", Parse: dateParser}
}

func amountField(canonical string, raw ...string) Field {
	return Field{Raw: raw, Canonical: canonical, Default: decimal.Zero, Parse: amountParser}
}

func labelField(canonical, def string, raw ...string) Field {
	return Field{Raw: raw, Canonical: canonical, Default: def, Parse: labelParser(def)}
}
