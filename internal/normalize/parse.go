// Package normalize reconciles raw row shapes into canonical values through
// small declarative field tables shared by every ingestion source.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// ErrMalformedRecord marks a row whose date or numeric field cannot be parsed.
// Such rows are dropped by the caller, never the whole batch.
var ErrMalformedRecord = errors.New("malformed record")

// dateLayouts are tried in order; the first one that parses wins.
var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate parses a raw date value and returns it as a calendar date.
func ParseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero date", ErrMalformedRecord)
		}
		return domain.ToDate(v), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil date", ErrMalformedRecord)
		}
		return ParseDate(*v)
	case []byte:
		return ParseDate(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, fmt.Errorf("%w: empty date", ErrMalformedRecord)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return domain.ToDate(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrMalformedRecord, s)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported date type %T", ErrMalformedRecord, raw)
	}
}

// float64Valuer is satisfied by json.Number and similar decoder number types.
type float64Valuer interface {
	Float64() (float64, error)
}

// ParseAmount parses a raw numeric value exactly. Currency symbols and
// thousands separators are tolerated in text input.
func ParseAmount(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("%w: non-finite amount", ErrMalformedRecord)
		}
		return decimal.NewFromFloat(v), nil
	case float32:
		return ParseAmount(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(v, 10))
	case bool:
		if v {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case []byte:
		return ParseAmount(string(v))
	case string:
		s := strings.TrimSpace(v)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimPrefix(s, "$")
		if strings.HasPrefix(s, "-$") {
			s = "-" + s[2:]
		}
		if s == "" {
			return decimal.Zero, fmt.Errorf("%w: empty amount", ErrMalformedRecord)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: unparseable amount %q", ErrMalformedRecord, s)
		}
		return d, nil
	case float64Valuer:
		f, err := v.Float64()
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return ParseAmount(f)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported amount type %T", ErrMalformedRecord, raw)
	}
}

// ParseLabel renders a raw categorical value as trimmed text.
func ParseLabel(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case []byte:
		return strings.TrimSpace(string(v)), nil
	case fmt.Stringer:
		return strings.TrimSpace(v.String()), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return strings.TrimSpace(fmt.Sprint(v)), nil
	}
}

// ToFloat coerces a raw value to a number; anything non-numeric becomes 0.
func ToFloat(raw any) float64 {
	if raw == nil {
		return 0
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// isBlank reports whether a raw value counts as absent.
func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return strings.TrimSpace(string(v)) == ""
	}
	return false
}
