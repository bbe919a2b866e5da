// Package stats provides pure functions for period bucketing and series aggregation.
// Nothing here touches I/O or shared state, so every result is a function of its inputs.
package stats

import (
	"time"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/normalize"
)

// Point is one dated observation of a named series.
// A zero Date marks a record whose date failed to parse.
type Point struct {
	Date   time.Time
	Series string
	Value  float64
}

// LabelFunc renders the display label of a bucket.
type LabelFunc func(bucket time.Time, g domain.Granularity) string

// Options narrows or configures an aggregation. Zero values mean: range from
// the data, now from the wall clock, default labels.
type Options struct {
	Start time.Time
	End   time.Time
	Now   time.Time
	Label LabelFunc
}

// DefaultLabel formats day and week buckets as "Jan 2" and months as "Jan 2006".
func DefaultLabel(b time.Time, g domain.Granularity) string {
	if g == domain.GranularityMonth {
		return b.Format("Jan 2006")
	}
	return b.Format("Jan 2")
}

// Aggregate buckets points by period and sums them per series.
//
// Points with a zero date are discarded. Series appear in first-seen order and
// only if observed. Points whose bucket lies outside the range are excluded.
// The result always has at least one bucket. With no dated points and no
// explicit range it spans the whole trailing window ending at Now (7 days,
// 13 weeks or 12 months), with every series value zero.
func Aggregate(points []Point, g domain.Granularity, opts Options) *domain.AggregationResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	label := opts.Label
	if label == nil {
		label = DefaultLabel
	}

	dates := make([]time.Time, 0, len(points))
	order := make([]string, 0)
	seen := make(map[string]bool)
	for _, p := range points {
		if p.Date.IsZero() {
			continue
		}
		dates = append(dates, p.Date)
		name := seriesName(p.Series)
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}

	rng := ComputeRange(g, dates, now)
	if !opts.Start.IsZero() {
		rng.Start = BucketStart(opts.Start, g)
	}
	if !opts.End.IsZero() {
		rng.End = BucketStart(opts.End, g)
	}

	buckets := Buckets(rng.Start, rng.End, g)
	index := make(map[string]int, len(buckets))
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		index[domain.DateKey(b)] = i
		labels[i] = label(b, g)
	}

	series := make(map[string][]float64, len(order))
	for _, name := range order {
		series[name] = make([]float64, len(buckets))
	}

	for _, p := range points {
		if p.Date.IsZero() {
			continue
		}
		i, ok := index[domain.DateKey(BucketStart(p.Date, g))]
		if !ok {
			continue
		}
		series[seriesName(p.Series)][i] += p.Value
	}

	return &domain.AggregationResult{
		Granularity: g,
		Labels:      labels,
		Buckets:     buckets,
		SeriesOrder: order,
		Series:      series,
	}
}

func seriesName(s string) string {
	if s == "" {
		return domain.DefaultSeries
	}
	return s
}

// AggregateRows aggregates string-keyed rows. Dates are parsed from dateField,
// values coerced from valueField (non-numeric counts as 0), and series names
// read from seriesField, which may be empty for a single "Value" series.
func AggregateRows(rows []domain.Row, g domain.Granularity, dateField, valueField, seriesField string, opts Options) *domain.AggregationResult {
	return Aggregate(PointsFromRows(rows, dateField, valueField, seriesField), g, opts)
}

// PointsFromRows extracts points from raw rows. Rows with unparseable dates
// keep a zero Date and are discarded by Aggregate.
func PointsFromRows(rows []domain.Row, dateField, valueField, seriesField string) []Point {
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		var p Point
		if d, err := normalize.ParseDate(row[dateField]); err == nil {
			p.Date = d
		}
		p.Value = normalize.ToFloat(row[valueField])
		if seriesField != "" {
			if s, err := normalize.ParseLabel(row[seriesField]); err == nil && row[seriesField] != nil {
				p.Series = s
			}
		}
		points = append(points, p)
	}
	return points
}

// RevenuePoints keys revenue by type.
func RevenuePoints(records []domain.RevenueRecord) []Point {
	points := make([]Point, len(records))
	for i, r := range records {
		points[i] = Point{Date: r.Date, Series: r.Type, Value: r.Amount}
	}
	return points
}

// ExpensePoints keys expenses by category.
func ExpensePoints(records []domain.ExpenseRecord) []Point {
	points := make([]Point, len(records))
	for i, r := range records {
		points[i] = Point{Date: r.Date, Series: r.Category, Value: r.Amount}
	}
	return points
}

// MetricPoints keys metric records by metric name.
func MetricPoints(records []domain.MetricRecord) []Point {
	points := make([]Point, len(records))
	for i, r := range records {
		points[i] = Point{Date: r.Date, Series: r.Metric, Value: r.Value}
	}
	return points
}

// SumSeries returns the total of every series element.
func SumSeries(res *domain.AggregationResult) float64 {
	var total float64
	for _, values := range res.Series {
		for _, v := range values {
			total += v
		}
	}
	return total
}
