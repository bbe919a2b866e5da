package domain

import (
	"time"
)

// DateLayout is the canonical calendar-date key used by every source and bucket.
const DateLayout = "2006-01-02"

// Fallback labels applied when a raw row omits its categorical field.
const (
	DefaultRevenueType     = "Claims"
	DefaultExpenseCategory = "Expense"
	DefaultPhysician       = "Unassigned"
	DefaultProcedure       = "Unspecified CPT"
	DefaultSeries          = "Value"
)

// Metric names carried by MetricRecord series.
const (
	MetricMargin      = "Margin"
	MetricCapacity    = "Capacity"
	MetricUtilization = "Utilization"
)

// Row is a string-keyed row mapping as returned by the query executor and
// the snapshot reader.
type Row map[string]any

// Granularity is the bucketing unit of an aggregation.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// RevenueRecord is one revenue observation, already summed per (date, type).
type RevenueRecord struct {
	Date   time.Time `json:"date"`
	Type   string    `json:"type"`
	Amount float64   `json:"amount"`
}

// ExpenseRecord is one general-ledger expense observation per (date, category).
type ExpenseRecord struct {
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
	Amount   float64   `json:"amount"`
}

// MetricRecord is a generic time series point (margin, capacity, utilization).
type MetricRecord struct {
	Date   time.Time `json:"date"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
}

// ProfitabilityRow is revenue and expense attributed to one procedure or physician.
type ProfitabilityRow struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
	Expense float64 `json:"expense"`
	Visits  int64   `json:"visits"`
}

// Margin is computed on demand and never stored.
func (r ProfitabilityRow) Margin() float64 {
	return r.Revenue - r.Expense
}

// ProfitabilityMode selects one side of a ProfitabilityView.
type ProfitabilityMode string

const (
	ProfitabilityByProcedure ProfitabilityMode = "procedure"
	ProfitabilityByPhysician ProfitabilityMode = "physician"
)

// ProfitabilityView always carries both breakdowns, each possibly empty.
type ProfitabilityView struct {
	Procedure []ProfitabilityRow `json:"procedure"`
	Physician []ProfitabilityRow `json:"physician"`
}

// NewProfitabilityView builds a view whose slices are never nil.
func NewProfitabilityView(procedure, physician []ProfitabilityRow) ProfitabilityView {
	if procedure == nil {
		procedure = []ProfitabilityRow{}
	}
	if physician == nil {
		physician = []ProfitabilityRow{}
	}
	return ProfitabilityView{Procedure: procedure, Physician: physician}
}

// Rows returns the breakdown for mode. Unknown modes fall back to procedure.
func (v ProfitabilityView) Rows(mode ProfitabilityMode) []ProfitabilityRow {
	if mode == ProfitabilityByPhysician {
		return v.Physician
	}
	return v.Procedure
}

// Dataset is one ingestion cycle's canonical output. It is replaced
// wholesale on every successful ingestion and never mutated afterwards.
type Dataset struct {
	CycleID           string            `json:"cycleId"`
	Source            string            `json:"source"`
	LoadedAt          time.Time         `json:"loadedAt"`
	Revenue           []RevenueRecord   `json:"revenue"`
	Expenses          []ExpenseRecord   `json:"expenses"`
	OptimizationTrend []MetricRecord    `json:"optimizationTrend"`
	Profitability     ProfitabilityView `json:"profitability"`
}

// EmptyDataset is the initial state before any ingestion succeeded.
func EmptyDataset() *Dataset {
	return &Dataset{
		Revenue:           []RevenueRecord{},
		Expenses:          []ExpenseRecord{},
		OptimizationTrend: []MetricRecord{},
		Profitability:     NewProfitabilityView(nil, nil),
	}
}

// AggregationResult is a bucketed, multi-series table. Index i of Labels,
// Buckets and every Series slice refers to the same period.
type AggregationResult struct {
	Granularity Granularity          `json:"granularity"`
	Labels      []string             `json:"labels"`
	Buckets     []time.Time          `json:"buckets"`
	SeriesOrder []string             `json:"seriesOrder"`
	Series      map[string][]float64 `json:"series"`
}

// Len is the bucket count.
func (a *AggregationResult) Len() int {
	return len(a.Buckets)
}

// ToDate drops the time-of-day component, keeping the calendar fields of t.
func ToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey formats t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
