package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// ParseGranularity accepts day, week or month (case-insensitive). An empty
// string selects month, the dashboard default.
func ParseGranularity(s string) (domain.Granularity, error) {
	switch g := domain.Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return domain.GranularityMonth, nil
	case domain.GranularityDay, domain.GranularityWeek, domain.GranularityMonth:
		return g, nil
	default:
		return "", fmt.Errorf("unsupported granularity %q", s)
	}
}

// BucketStart aligns a date to the start of its period. Weeks start on
// Monday. Unknown granularities are treated as day.
func BucketStart(t time.Time, g domain.Granularity) time.Time {
	d := domain.ToDate(t)
	switch g {
	case domain.GranularityWeek:
		wd := int(d.Weekday())
		if wd == 0 {
			return d.AddDate(0, 0, -6)
		}
		return d.AddDate(0, 0, -(wd - 1))
	case domain.GranularityMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// NextBucket advances an aligned bucket by exactly one period.
func NextBucket(b time.Time, g domain.Granularity) time.Time {
	switch g {
	case domain.GranularityWeek:
		return b.AddDate(0, 0, 7)
	case domain.GranularityMonth:
		return time.Date(b.Year(), b.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return b.AddDate(0, 0, 1)
	}
}

// Range is an inclusive, bucket-aligned date span.
type Range struct {
	Start time.Time
	End   time.Time
}

// ComputeRange derives the active range from observed dates. Zero dates are
// ignored; with nothing left the trailing default window ending at now is
// used: 7 days, 12 weeks or 12 months.
func ComputeRange(g domain.Granularity, dates []time.Time, now time.Time) Range {
	var lo, hi time.Time
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		if lo.IsZero() || d.Before(lo) {
			lo = d
		}
		if hi.IsZero() || d.After(hi) {
			hi = d
		}
	}
	if !lo.IsZero() {
		return Range{Start: BucketStart(lo, g), End: BucketStart(hi, g)}
	}

	anchor := domain.ToDate(now)
	var start time.Time
	switch g {
	case domain.GranularityWeek:
		start = BucketStart(anchor, g).AddDate(0, 0, -7*12)
	case domain.GranularityMonth:
		start = time.Date(anchor.Year(), anchor.Month()-11, 1, 0, 0, 0, 0, time.UTC)
	default:
		start = anchor.AddDate(0, 0, -6)
	}
	return Range{Start: BucketStart(start, g), End: BucketStart(anchor, g)}
}

// Buckets lists every bucket from BucketStart(start) through end. The result
// always holds at least one bucket, even when end precedes start.
func Buckets(start, end time.Time, g domain.Granularity) []time.Time {
	cursor := BucketStart(start, g)
	out := []time.Time{cursor}
	for {
		cursor = NextBucket(cursor, g)
		if cursor.After(end) {
			return out
		}
		out = append(out, cursor)
	}
}
