package ingest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// DefaultTopProcedures is the procedure breakdown length when none is configured.
const DefaultTopProcedures = 10

var hundred = decimal.NewFromInt(100)

// AverageExpensePerVisit is total expense divided by total visits, or zero
// when there were no visits.
func AverageExpensePerVisit(totalExpense decimal.Decimal, totalVisits int64) decimal.Decimal {
	if totalVisits <= 0 {
		return decimal.Zero
	}
	return totalExpense.Div(decimal.NewFromInt(totalVisits))
}

// EstimateExpense attributes expense to an entity from its visit count.
func EstimateExpense(avgPerVisit decimal.Decimal, visits int64) decimal.Decimal {
	return avgPerVisit.Mul(decimal.NewFromInt(visits))
}

type dateLabel struct {
	date  time.Time
	label string
}

// dateLabelSums collapses duplicate (date, label) keys by summation.
type dateLabelSums map[dateLabel]decimal.Decimal

func (s dateLabelSums) add(d time.Time, label string, amount decimal.Decimal) {
	k := dateLabel{date: d, label: label}
	s[k] = s[k].Add(amount)
}

func (s dateLabelSums) sortedKeys() []dateLabel {
	keys := make([]dateLabel, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].date.Equal(keys[j].date) {
			return keys[i].date.Before(keys[j].date)
		}
		return keys[i].label < keys[j].label
	})
	return keys
}

type entity struct {
	revenue decimal.Decimal
	visits  int64
}

type usage struct {
	visits   decimal.Decimal
	payments decimal.Decimal
}

// builder accumulates normalized values from either strategy and emits the
// canonical dataset. Both strategies share it so their output is identical
// for equivalent source rows.
type builder struct {
	topN int

	revenue     dateLabelSums
	expenses    dateLabelSums
	procedures  map[string]*entity
	physicians  map[string]*entity
	direct      map[string]decimal.Decimal
	utilization map[time.Time]*usage

	malformed int
}

func newBuilder(topN int) *builder {
	if topN <= 0 {
		topN = DefaultTopProcedures
	}
	return &builder{
		topN:        topN,
		revenue:     dateLabelSums{},
		expenses:    dateLabelSums{},
		procedures:  map[string]*entity{},
		physicians:  map[string]*entity{},
		direct:      map[string]decimal.Decimal{},
		utilization: map[time.Time]*usage{},
	}
}

func (b *builder) addRevenue(d time.Time, typ string, amount decimal.Decimal) {
	b.revenue.add(d, typ, amount)
}

func (b *builder) addExpense(d time.Time, category string, amount decimal.Decimal) {
	b.expenses.add(d, category, amount)
}

func (b *builder) addProcedure(name string, revenue decimal.Decimal, visits int64) {
	addEntity(b.procedures, name, revenue, visits)
}

func (b *builder) addPhysician(name string, revenue decimal.Decimal, visits int64) {
	addEntity(b.physicians, name, revenue, visits)
}

// addPhysicianExpense records directly attributed expense, which overrides
// the per-visit estimate for that physician.
func (b *builder) addPhysicianExpense(name string, amount decimal.Decimal) {
	b.direct[name] = b.direct[name].Add(amount)
	if _, ok := b.physicians[name]; !ok {
		b.physicians[name] = &entity{}
	}
}

func (b *builder) addUtilization(d time.Time, visits, payments decimal.Decimal) {
	u, ok := b.utilization[d]
	if !ok {
		u = &usage{}
		b.utilization[d] = u
	}
	u.visits = u.visits.Add(visits)
	u.payments = u.payments.Add(payments)
}

func addEntity(m map[string]*entity, name string, revenue decimal.Decimal, visits int64) {
	e, ok := m[name]
	if !ok {
		e = &entity{}
		m[name] = e
	}
	e.revenue = e.revenue.Add(revenue)
	e.visits += visits
}

func (b *builder) dataset() *domain.Dataset {
	ds := domain.EmptyDataset()

	totalExpense := decimal.Zero
	for _, k := range b.revenue.sortedKeys() {
		ds.Revenue = append(ds.Revenue, domain.RevenueRecord{
			Date: k.date, Type: k.label, Amount: b.revenue[k].InexactFloat64(),
		})
	}
	for _, k := range b.expenses.sortedKeys() {
		amount := b.expenses[k]
		totalExpense = totalExpense.Add(amount)
		ds.Expenses = append(ds.Expenses, domain.ExpenseRecord{
			Date: k.date, Category: k.label, Amount: amount.InexactFloat64(),
		})
	}

	days := make([]time.Time, 0, len(b.utilization))
	for d := range b.utilization {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var totalVisits int64
	for _, d := range days {
		u := b.utilization[d]
		totalVisits += u.visits.IntPart()
		rate := decimal.Zero
		if u.visits.IsPositive() {
			rate = u.payments.Div(u.visits).Mul(hundred)
		}
		ds.OptimizationTrend = append(ds.OptimizationTrend,
			domain.MetricRecord{Date: d, Metric: domain.MetricCapacity, Value: u.visits.InexactFloat64()},
			domain.MetricRecord{Date: d, Metric: domain.MetricUtilization, Value: rate.InexactFloat64()},
		)
	}

	avg := AverageExpensePerVisit(totalExpense, totalVisits)
	procedures := b.rows(b.procedures, avg, nil)
	if len(procedures) > b.topN {
		procedures = procedures[:b.topN]
	}
	ds.Profitability = domain.NewProfitabilityView(procedures, b.rows(b.physicians, avg, b.direct))
	return ds
}

// rows emits entity rows by revenue descending, ties broken by name so the
// order does not depend on how a source grouped its rows.
func (b *builder) rows(m map[string]*entity, avg decimal.Decimal, direct map[string]decimal.Decimal) []domain.ProfitabilityRow {
	rows := make([]domain.ProfitabilityRow, 0, len(m))
	revenue := make(map[string]decimal.Decimal, len(m))
	for name, e := range m {
		expense, ok := direct[name]
		if !ok {
			expense = EstimateExpense(avg, e.visits)
		}
		revenue[name] = e.revenue
		rows = append(rows, domain.ProfitabilityRow{
			Name:    name,
			Revenue: e.revenue.InexactFloat64(),
			Expense: expense.InexactFloat64(),
			Visits:  e.visits,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := revenue[rows[i].Name].Cmp(revenue[rows[j].Name]); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
