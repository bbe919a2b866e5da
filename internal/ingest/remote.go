package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/normalize"
)

// Names of the primary-strategy queries.
const (
	QueryRevenue          = "revenue_by_date_type"
	QueryExpense          = "expense_by_date_category"
	QueryTopProcedures    = "top_procedures"
	QueryPhysicianRevenue = "revenue_by_physician"
	QueryPhysicianExpense = "expense_by_physician"
	QueryUtilization      = "daily_utilization"
)

// LimitPlaceholder is replaced with the top-N procedure count in query text.
const LimitPlaceholder = "{limit}"

var queryOrder = []string{
	QueryRevenue,
	QueryExpense,
	QueryTopProcedures,
	QueryPhysicianRevenue,
	QueryPhysicianExpense,
	QueryUtilization,
}

// DefaultQueries returns the query text for a service exposing the claims and
// ledger_entries tables.
func DefaultQueries() map[string]string {
	return map[string]string{
		QueryRevenue: `SELECT service_date AS date, claim_type AS type, SUM(paid_amount) AS amount
FROM claims GROUP BY service_date, claim_type ORDER BY service_date`,
		QueryExpense: `SELECT posted_date AS date, category, SUM(amount) AS amount
FROM ledger_entries GROUP BY posted_date, category ORDER BY posted_date`,
		QueryTopProcedures: `SELECT COALESCE(NULLIF(procedure_name, ''), NULLIF(cpt_code, '')) AS name,
SUM(paid_amount) AS revenue, COUNT(*) AS visits
FROM claims GROUP BY COALESCE(NULLIF(procedure_name, ''), NULLIF(cpt_code, ''))
ORDER BY revenue DESC, name ASC LIMIT {limit}`,
		QueryPhysicianRevenue: `SELECT physician, SUM(paid_amount) AS revenue, COUNT(*) AS visits
FROM claims GROUP BY physician`,
		QueryPhysicianExpense: `SELECT physician, SUM(amount) AS expense
FROM ledger_entries WHERE physician IS NOT NULL AND physician <> '' GROUP BY physician`,
		QueryUtilization: `SELECT service_date AS date, COUNT(*) AS visits,
SUM(CASE WHEN paid_amount > 0 THEN 1 ELSE 0 END) AS payments
FROM claims GROUP BY service_date ORDER BY service_date`,
	}
}

// RemoteSource is the primary strategy: six queries against the remote
// service, issued concurrently. Any single failure fails the strategy.
type RemoteSource struct {
	exec    QueryExecutor
	queries map[string]string
	topN    int
	logger  *zap.Logger
}

// NewRemoteSource creates the primary strategy. Entries in queries override
// DefaultQueries by name.
func NewRemoteSource(exec QueryExecutor, queries map[string]string, topN int, logger *zap.Logger) *RemoteSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	merged := DefaultQueries()
	for name, q := range queries {
		if strings.TrimSpace(q) != "" {
			merged[name] = q
		}
	}
	if topN <= 0 {
		topN = DefaultTopProcedures
	}
	return &RemoteSource{exec: exec, queries: merged, topN: topN, logger: logger.Named("remote")}
}

// Name implements Source.
func (s *RemoteSource) Name() string {
	return "remote"
}

// Load implements Source.
func (s *RemoteSource) Load(ctx context.Context) Outcome {
	if s.exec == nil {
		return Failed(fmt.Errorf("no query executor"))
	}

	results := make([][]domain.Row, len(queryOrder))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range queryOrder {
		i, name := i, name
		q := strings.ReplaceAll(s.queries[name], LimitPlaceholder, strconv.Itoa(s.topN))
		g.Go(func() error {
			rows, err := s.exec.Query(gctx, q)
			if err != nil {
				return fmt.Errorf("query %s: %w", name, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Failed(err)
	}

	b := newBuilder(s.topN)
	s.apply(b, normalize.RevenueQuery, results[0], func(v normalize.Values) {
		b.addRevenue(v.Date(normalize.FieldDate), v.Label(normalize.FieldType), v.Amount(normalize.FieldAmount))
	})
	s.apply(b, normalize.ExpenseQuery, results[1], func(v normalize.Values) {
		b.addExpense(v.Date(normalize.FieldDate), v.Label(normalize.FieldCategory), v.Amount(normalize.FieldAmount))
	})
	s.apply(b, normalize.ProcedureQuery, results[2], func(v normalize.Values) {
		b.addProcedure(v.Label(normalize.FieldName), v.Amount(normalize.FieldRevenue), v.Count(normalize.FieldVisits))
	})
	s.apply(b, normalize.PhysicianRevenueQuery, results[3], func(v normalize.Values) {
		b.addPhysician(v.Label(normalize.FieldName), v.Amount(normalize.FieldRevenue), v.Count(normalize.FieldVisits))
	})
	s.apply(b, normalize.PhysicianExpenseQuery, results[4], func(v normalize.Values) {
		b.addPhysicianExpense(v.Label(normalize.FieldName), v.Amount(normalize.FieldExpense))
	})
	s.apply(b, normalize.UtilizationQuery, results[5], func(v normalize.Values) {
		b.addUtilization(v.Date(normalize.FieldDate), v.Amount(normalize.FieldVisits), v.Amount(normalize.FieldPayments))
	})

	if b.malformed > 0 {
		s.logger.Warn("dropped malformed rows", zap.Int("count", b.malformed))
	}
	return Ingested(b.dataset())
}

func (s *RemoteSource) apply(b *builder, schema normalize.Schema, rows []domain.Row, fn func(normalize.Values)) {
	for _, row := range rows {
		v, err := schema.Apply(row)
		if err != nil {
			b.malformed++
			s.logger.Debug("skip row", zap.String("query", schema.Name), zap.Error(err))
			continue
		}
		fn(v)
	}
}
