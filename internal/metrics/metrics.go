// Package metrics derives dashboard scalars and series from a canonical dataset.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/stats"
)

// Trailing window lengths in days, anchor day included.
const (
	CashWindowDays    = 90
	RunRateWindowDays = 30
)

// MixEntry is one label's total in a breakdown.
type MixEntry struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// MarginSeries returns revenue minus expense per calendar date, in date
// order. A date present on only one side still yields a record.
func MarginSeries(revenue []domain.RevenueRecord, expenses []domain.ExpenseRecord) []domain.MetricRecord {
	byDate := make(map[time.Time]decimal.Decimal)
	for _, r := range revenue {
		if r.Date.IsZero() {
			continue
		}
		d := domain.ToDate(r.Date)
		byDate[d] = byDate[d].Add(decimal.NewFromFloat(r.Amount))
	}
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		d := domain.ToDate(e.Date)
		byDate[d] = byDate[d].Sub(decimal.NewFromFloat(e.Amount))
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]domain.MetricRecord, len(dates))
	for i, d := range dates {
		out[i] = domain.MetricRecord{Date: d, Metric: domain.MetricMargin, Value: byDate[d].InexactFloat64()}
	}
	return out
}

// Anchor is the latest revenue or expense date, or now when the dataset has
// no dates at all.
func Anchor(ds *domain.Dataset, now time.Time) time.Time {
	var latest time.Time
	for _, r := range ds.Revenue {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	for _, e := range ds.Expenses {
		if e.Date.After(latest) {
			latest = e.Date
		}
	}
	if latest.IsZero() {
		return domain.ToDate(now)
	}
	return domain.ToDate(latest)
}

func inWindow(d, anchor time.Time, days int) bool {
	if d.IsZero() {
		return false
	}
	d = domain.ToDate(d)
	return !d.After(anchor) && !d.Before(anchor.AddDate(0, 0, -(days-1)))
}

// CashSnapshot is revenue minus expenses over the trailing 90 days.
func CashSnapshot(ds *domain.Dataset, now time.Time) float64 {
	anchor := Anchor(ds, now)
	total := decimal.Zero
	for _, r := range ds.Revenue {
		if inWindow(r.Date, anchor, CashWindowDays) {
			total = total.Add(decimal.NewFromFloat(r.Amount))
		}
	}
	for _, e := range ds.Expenses {
		if inWindow(e.Date, anchor, CashWindowDays) {
			total = total.Sub(decimal.NewFromFloat(e.Amount))
		}
	}
	return total.InexactFloat64()
}

// RunRate is total expense over the trailing 30 days.
func RunRate(ds *domain.Dataset, now time.Time) float64 {
	anchor := Anchor(ds, now)
	total := decimal.Zero
	for _, e := range ds.Expenses {
		if inWindow(e.Date, anchor, RunRateWindowDays) {
			total = total.Add(decimal.NewFromFloat(e.Amount))
		}
	}
	return total.InexactFloat64()
}

// RevenueMix totals revenue by type, in first-seen order.
func RevenueMix(revenue []domain.RevenueRecord) []MixEntry {
	m := newMix()
	for _, r := range revenue {
		m.add(r.Type, r.Amount)
	}
	return m.entries()
}

// ExpenseMix totals expenses by category, in first-seen order.
func ExpenseMix(expenses []domain.ExpenseRecord) []MixEntry {
	m := newMix()
	for _, e := range expenses {
		m.add(e.Category, e.Amount)
	}
	return m.entries()
}

type mix struct {
	order  []string
	totals map[string]decimal.Decimal
}

func newMix() *mix {
	return &mix{totals: make(map[string]decimal.Decimal)}
}

func (m *mix) add(label string, amount float64) {
	if _, ok := m.totals[label]; !ok {
		m.order = append(m.order, label)
	}
	m.totals[label] = m.totals[label].Add(decimal.NewFromFloat(amount))
}

func (m *mix) entries() []MixEntry {
	out := make([]MixEntry, len(m.order))
	for i, label := range m.order {
		out[i] = MixEntry{Label: label, Amount: m.totals[label].InexactFloat64()}
	}
	return out
}

// Overview bundles the headline numbers of the dashboard.
type Overview struct {
	CashSnapshot float64                   `json:"cashSnapshot"`
	RunRate      float64                   `json:"runRate"`
	Anchor       time.Time                 `json:"anchor"`
	Margin       *domain.AggregationResult `json:"margin"`
}

// BuildOverview computes the overview for one granularity.
func BuildOverview(ds *domain.Dataset, g domain.Granularity, now time.Time) Overview {
	return Overview{
		CashSnapshot: CashSnapshot(ds, now),
		RunRate:      RunRate(ds, now),
		Anchor:       Anchor(ds, now),
		Margin: stats.Aggregate(
			stats.MetricPoints(MarginSeries(ds.Revenue, ds.Expenses)), g, stats.Options{Now: now}),
	}
}
