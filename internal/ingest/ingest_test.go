package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/normalize"
	"github.com/awsl-project/clinicpulse/internal/query"
	"github.com/awsl-project/clinicpulse/internal/snapshot"
)

// fakeExecutor answers each query name with canned rows.
type fakeExecutor struct {
	rows  map[string][]domain.Row
	fail  string
	calls atomic.Int32
}

func (f *fakeExecutor) Query(_ context.Context, q string) ([]domain.Row, error) {
	f.calls.Add(1)
	if q == f.fail {
		return nil, errors.New("connection reset")
	}
	return f.rows[q], nil
}

// namedQueries makes every query's text equal to its name.
func namedQueries() map[string]string {
	m := make(map[string]string, len(queryOrder))
	for _, name := range queryOrder {
		m[name] = name
	}
	return m
}

type fakeSource struct {
	name string
	out  Outcome
	hits int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Load(context.Context) Outcome {
	s.hits++
	return s.out
}

func TestAverageExpensePerVisit(t *testing.T) {
	tests := []struct {
		name    string
		expense string
		visits  int64
		want    string
	}{
		{"even", "500", 20, "25"},
		{"no visits", "500", 0, "0"},
		{"no expense", "0", 7, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AverageExpensePerVisit(decimal.RequireFromString(tt.expense), tt.visits)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("AverageExpensePerVisit = %s, want %s", got, tt.want)
			}
		})
	}

	if got := EstimateExpense(decimal.NewFromInt(25), 10); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("EstimateExpense(25, 10) = %s, want 250", got)
	}
}

func TestBuilder_Estimation(t *testing.T) {
	b := newBuilder(0)
	d := mustDate(t, "2024-01-02")
	b.addExpense(d, "Rent", decimal.NewFromInt(500))
	b.addUtilization(d, decimal.NewFromInt(20), decimal.NewFromInt(15))
	b.addPhysician("Dr. X", decimal.NewFromInt(900), 10)
	b.addPhysician("Dr. Y", decimal.NewFromInt(1000), 10)
	b.addPhysicianExpense("Dr. Y", decimal.NewFromInt(40))
	b.addProcedure("99213", decimal.NewFromInt(300), 4)

	ds := b.dataset()
	want := []domain.ProfitabilityRow{
		{Name: "Dr. Y", Revenue: 1000, Expense: 40, Visits: 10},
		{Name: "Dr. X", Revenue: 900, Expense: 250, Visits: 10},
	}
	if !reflect.DeepEqual(ds.Profitability.Physician, want) {
		t.Errorf("Physician = %+v, want %+v", ds.Profitability.Physician, want)
	}
	if got := ds.Profitability.Procedure[0].Expense; got != 100 {
		t.Errorf("procedure expense = %v, want 100", got)
	}

	wantTrend := []domain.MetricRecord{
		{Date: d, Metric: domain.MetricCapacity, Value: 20},
		{Date: d, Metric: domain.MetricUtilization, Value: 75},
	}
	if !reflect.DeepEqual(ds.OptimizationTrend, wantTrend) {
		t.Errorf("OptimizationTrend = %+v, want %+v", ds.OptimizationTrend, wantTrend)
	}
}

func TestBuilder_TopN(t *testing.T) {
	b := newBuilder(2)
	for i, name := range []string{"a", "b", "c", "d"} {
		b.addProcedure(name, decimal.NewFromInt(int64(i*10)), 1)
	}
	b.addProcedure("a", decimal.NewFromInt(5), 1)

	got := b.dataset().Profitability.Procedure
	if len(got) != 2 || got[0].Name != "d" || got[1].Name != "c" {
		t.Errorf("Procedure = %+v, want d then c", got)
	}
}

func TestBuilder_Empty(t *testing.T) {
	ds := newBuilder(0).dataset()
	if ds.Revenue == nil || ds.Expenses == nil || ds.OptimizationTrend == nil {
		t.Error("empty dataset must carry non-nil slices")
	}
	if ds.Profitability.Procedure == nil || ds.Profitability.Physician == nil {
		t.Error("profitability view must carry both keys")
	}
}

func TestRemoteSource_NormalizesAndSums(t *testing.T) {
	exec := &fakeExecutor{rows: map[string][]domain.Row{
		QueryRevenue: {
			{"date": "2024-01-02", "type": "Claims", "amount": 100.0},
			{"date": "2024-01-02T00:00:00Z", "type": "Claims", "amount": "25.5"},
			{"date": "2024-01-02", "amount": 10},
			{"date": "garbage", "type": "Claims", "amount": 1000},
			{"date": "2024-01-01", "type": "Copay"},
		},
		QueryExpense: {
			{"date": "2024-01-02", "category": "", "amount": 40},
		},
		QueryTopProcedures: {
			{"name": nil, "revenue": 10, "visits": 1},
		},
		QueryPhysicianRevenue: {
			{"physician": "", "revenue": 10, "visits": 2},
		},
		QueryUtilization: {
			{"date": "2024-01-02"},
		},
	}}

	src := NewRemoteSource(exec, namedQueries(), 5, zaptest.NewLogger(t))
	out := src.Load(context.Background())
	if !out.OK() {
		t.Fatalf("Load failed: %v", out.Err)
	}
	if got := exec.calls.Load(); got != 6 {
		t.Errorf("issued %d queries, want 6", got)
	}

	ds := out.Dataset
	wantRevenue := []domain.RevenueRecord{
		{Date: mustDate(t, "2024-01-01"), Type: "Copay", Amount: 0},
		{Date: mustDate(t, "2024-01-02"), Type: "Claims", Amount: 135.5},
	}
	if !reflect.DeepEqual(ds.Revenue, wantRevenue) {
		t.Errorf("Revenue = %+v, want %+v", ds.Revenue, wantRevenue)
	}
	if ds.Expenses[0].Category != domain.DefaultExpenseCategory {
		t.Errorf("category = %q, want default", ds.Expenses[0].Category)
	}
	if ds.Profitability.Procedure[0].Name != domain.DefaultProcedure {
		t.Errorf("procedure = %q, want default", ds.Profitability.Procedure[0].Name)
	}
	if ds.Profitability.Physician[0].Name != domain.DefaultPhysician {
		t.Errorf("physician = %q, want default", ds.Profitability.Physician[0].Name)
	}
	// utilization row without numbers: zero visits, zero rate
	if len(ds.OptimizationTrend) != 2 || ds.OptimizationTrend[1].Value != 0 {
		t.Errorf("OptimizationTrend = %+v", ds.OptimizationTrend)
	}
}

func TestRemoteSource_AnyQueryFailureFails(t *testing.T) {
	for _, name := range queryOrder {
		t.Run(name, func(t *testing.T) {
			exec := &fakeExecutor{rows: map[string][]domain.Row{}, fail: name}
			out := NewRemoteSource(exec, namedQueries(), 0, nil).Load(context.Background())
			if out.OK() {
				t.Fatal("expected failure")
			}
			if !errors.Is(out.Err, ErrSourceUnavailable) {
				t.Errorf("err = %v, want ErrSourceUnavailable", out.Err)
			}
			if !strings.Contains(out.Err.Error(), name) {
				t.Errorf("err %q does not name the query", out.Err)
			}
		})
	}
}

func TestRemoteSource_LimitPlaceholder(t *testing.T) {
	src := NewRemoteSource(&fakeExecutor{}, map[string]string{QueryTopProcedures: "TOP {limit}"}, 7, nil)
	if got := strings.ReplaceAll(src.queries[QueryTopProcedures], LimitPlaceholder, "7"); got != "TOP 7" {
		t.Errorf("query = %q", got)
	}
	if src.queries[QueryRevenue] != DefaultQueries()[QueryRevenue] {
		t.Error("unset queries must keep their default text")
	}
}

func TestOrchestrator(t *testing.T) {
	good := func(name string) *fakeSource {
		return &fakeSource{name: name, out: Ingested(domain.EmptyDataset())}
	}
	bad := func(name string) *fakeSource {
		return &fakeSource{name: name, out: Failed(errors.New(name + " down"))}
	}

	t.Run("primary wins", func(t *testing.T) {
		p, f := good("remote"), good("snapshot")
		ds, err := NewOrchestrator(p, f, zaptest.NewLogger(t)).LoadCanonicalDataset(context.Background())
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if ds.Source != "remote" || f.hits != 0 {
			t.Errorf("source = %s, fallback hits = %d", ds.Source, f.hits)
		}
		if ds.CycleID == "" || ds.LoadedAt.IsZero() {
			t.Errorf("cycle metadata not set: %+v", ds)
		}
	})

	t.Run("fallback on primary failure", func(t *testing.T) {
		p, f := bad("remote"), good("snapshot")
		ds, err := NewOrchestrator(p, f, zaptest.NewLogger(t)).LoadCanonicalDataset(context.Background())
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if ds.Source != "snapshot" || p.hits != 1 || f.hits != 1 {
			t.Errorf("source = %s, hits = %d/%d", ds.Source, p.hits, f.hits)
		}
	})

	t.Run("nil primary", func(t *testing.T) {
		ds, err := NewOrchestrator(nil, good("snapshot"), nil).LoadCanonicalDataset(context.Background())
		if err != nil || ds.Source != "snapshot" {
			t.Errorf("ds = %+v, err = %v", ds, err)
		}
	})

	t.Run("total failure", func(t *testing.T) {
		ds, err := NewOrchestrator(bad("remote"), bad("snapshot"), zaptest.NewLogger(t)).LoadCanonicalDataset(context.Background())
		if ds != nil {
			t.Errorf("ds = %+v, want nil", ds)
		}
		if !errors.Is(err, ErrTotalIngestionFailure) {
			t.Fatalf("err = %v, want ErrTotalIngestionFailure", err)
		}
		if !strings.Contains(err.Error(), "remote down") || !strings.Contains(err.Error(), "snapshot down") {
			t.Errorf("err %q should carry both causes", err)
		}
	})

	t.Run("panicking source", func(t *testing.T) {
		_, err := NewOrchestrator(panicSource{}, nil, nil).LoadCanonicalDataset(context.Background())
		if !errors.Is(err, ErrTotalIngestionFailure) {
			t.Errorf("err = %v, want ErrTotalIngestionFailure", err)
		}
	})
}

type panicSource struct{}

func (panicSource) Name() string { return "panic" }

func (panicSource) Load(context.Context) Outcome { panic("boom") }

const claimsCSV = `service_date,claim_type,paid_amount,physician,cpt_code,procedure_name
2024-01-02,Claims,100.5,Dr. A,99213,Office visit
2024-01-02,Claims,50,Dr. B,99214,Extended visit
2024-01-02,Copay,20,Dr. A,99213,Office visit
2024-01-03,,0,,93000,
2024-01-09,Claims,75.25,Dr. B,99214,Extended visit
not-a-date,Claims,30,Dr. A,99213,Office visit
`

const ledgerCSV = `posted_date,category,amount,physician
2024-01-02,Rent,1000,
2024-01-02,Supplies,60.5,Dr. A
2024-01-03,Supplies,40,
2024-01-09,,25,
not-a-date,Supplies,9.5,Dr. A
`

func seedSQLite(t *testing.T, claimRows, ledgerRows string) *query.GormExecutor {
	t.Helper()
	exec, err := query.NewGormExecutor(filepath.Join(t.TempDir(), "clinic.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { exec.Close() })

	db := exec.GormDB()
	stmts := []string{
		`CREATE TABLE claims (service_date TEXT, claim_type TEXT, paid_amount REAL, physician TEXT, cpt_code TEXT, procedure_name TEXT)`,
		`CREATE TABLE ledger_entries (posted_date TEXT, category TEXT, amount REAL, physician TEXT)`,
	}
	for _, line := range strings.Split(strings.TrimSpace(claimRows), "\n")[1:] {
		f := strings.Split(line, ",")
		stmts = append(stmts, `INSERT INTO claims VALUES ('`+f[0]+`','`+f[1]+`',`+f[2]+`,'`+f[3]+`','`+f[4]+`','`+f[5]+`')`)
	}
	for _, line := range strings.Split(strings.TrimSpace(ledgerRows), "\n")[1:] {
		f := strings.Split(line, ",")
		stmts = append(stmts, `INSERT INTO ledger_entries VALUES ('`+f[0]+`','`+f[1]+`',`+f[2]+`,'`+f[3]+`')`)
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return exec
}

func writeSnapshots(t *testing.T, claimRows, ledgerRows string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	claims := filepath.Join(dir, "claims.csv")
	ledger := filepath.Join(dir, "ledger.csv")
	if err := os.WriteFile(claims, []byte(claimRows), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ledger, []byte(ledgerRows), 0o644); err != nil {
		t.Fatal(err)
	}
	return claims, ledger
}

func TestPrimaryAndFallbackProduceSameDataset(t *testing.T) {
	log := zaptest.NewLogger(t)
	claims, ledger := writeSnapshots(t, claimsCSV, ledgerCSV)

	remote := NewRemoteSource(seedSQLite(t, claimsCSV, ledgerCSV), nil, 10, log).Load(context.Background())
	if !remote.OK() {
		t.Fatalf("remote failed: %v", remote.Err)
	}
	local := NewSnapshotSource(snapshot.NewReader(), claims, ledger, 10, log).Load(context.Background())
	if !local.OK() {
		t.Fatalf("snapshot failed: %v", local.Err)
	}

	if !reflect.DeepEqual(remote.Dataset, local.Dataset) {
		t.Errorf("datasets differ\nremote:   %+v\nsnapshot: %+v", remote.Dataset, local.Dataset)
	}

	ds := local.Dataset
	// The undated claim and ledger entry count toward Dr. A but stay out of
	// the time series and the per-visit average.
	wantPhysicians := []domain.ProfitabilityRow{
		{Name: "Dr. A", Revenue: 150.5, Expense: 70, Visits: 3},
		{Name: "Dr. B", Revenue: 125.25, Expense: 450.2, Visits: 2},
		{Name: domain.DefaultPhysician, Revenue: 0, Expense: 225.1, Visits: 1},
	}
	if !reflect.DeepEqual(ds.Profitability.Physician, wantPhysicians) {
		t.Errorf("Physician = %+v, want %+v", ds.Profitability.Physician, wantPhysicians)
	}
	wantProcedures := []string{"Office visit", "Extended visit", "93000"}
	for i, row := range ds.Profitability.Procedure {
		if row.Name != wantProcedures[i] {
			t.Errorf("Procedure[%d] = %q, want %q", i, row.Name, wantProcedures[i])
		}
	}
	wantRevenue := []domain.RevenueRecord{
		{Date: mustDate(t, "2024-01-02"), Type: "Claims", Amount: 150.5},
		{Date: mustDate(t, "2024-01-02"), Type: "Copay", Amount: 20},
		{Date: mustDate(t, "2024-01-03"), Type: domain.DefaultRevenueType, Amount: 0},
		{Date: mustDate(t, "2024-01-09"), Type: "Claims", Amount: 75.25},
	}
	if !reflect.DeepEqual(ds.Revenue, wantRevenue) {
		t.Errorf("Revenue = %+v, want %+v", ds.Revenue, wantRevenue)
	}
	if n := len(ds.Expenses); n != 4 {
		t.Errorf("len(Expenses) = %d, want 4", n)
	}
}

func TestPrimaryAndFallbackAgreeOnTopNTies(t *testing.T) {
	log := zaptest.NewLogger(t)
	claims := `service_date,claim_type,paid_amount,physician,cpt_code,procedure_name
2024-01-02,Claims,50,Dr. A,,Gamma
2024-01-02,Claims,50,Dr. A,,Beta
2024-01-03,Claims,50,Dr. B,,Alpha
2024-01-03,Claims,10,Dr. B,,Delta
`
	ledger := "posted_date,category,amount,physician\n"
	claimsPath, ledgerPath := writeSnapshots(t, claims, ledger)

	remote := NewRemoteSource(seedSQLite(t, claims, ledger), nil, 2, log).Load(context.Background())
	local := NewSnapshotSource(snapshot.NewReader(), claimsPath, ledgerPath, 2, log).Load(context.Background())
	if !remote.OK() || !local.OK() {
		t.Fatalf("remote err = %v, snapshot err = %v", remote.Err, local.Err)
	}

	for name, ds := range map[string]*domain.Dataset{"remote": remote.Dataset, "snapshot": local.Dataset} {
		var got []string
		for _, row := range ds.Profitability.Procedure {
			got = append(got, row.Name)
		}
		if !reflect.DeepEqual(got, []string{"Alpha", "Beta"}) {
			t.Errorf("%s procedures = %v, want [Alpha Beta]", name, got)
		}
	}
	if !reflect.DeepEqual(remote.Dataset, local.Dataset) {
		t.Errorf("datasets differ\nremote:   %+v\nsnapshot: %+v", remote.Dataset, local.Dataset)
	}
}

func TestFallbackTrigger(t *testing.T) {
	claims, ledger := writeSnapshots(t, claimsCSV, ledgerCSV)
	log := zaptest.NewLogger(t)

	exec := &fakeExecutor{rows: map[string][]domain.Row{}, fail: QueryUtilization}
	orch := NewOrchestrator(
		NewRemoteSource(exec, namedQueries(), 10, log),
		NewSnapshotSource(snapshot.NewReader(), claims, ledger, 10, log),
		log,
	)

	ds, err := orch.LoadCanonicalDataset(context.Background())
	if err != nil {
		t.Fatalf("LoadCanonicalDataset: %v", err)
	}
	if ds.Source != "snapshot" {
		t.Errorf("Source = %q, want snapshot", ds.Source)
	}
	if len(ds.Revenue) != 4 || len(ds.Profitability.Physician) != 3 {
		t.Errorf("unexpected dataset shape: %+v", ds)
	}
}

func TestSnapshotSource_MissingFile(t *testing.T) {
	claims, _ := writeSnapshots(t, claimsCSV, ledgerCSV)
	out := NewSnapshotSource(snapshot.NewReader(), claims, filepath.Join(t.TempDir(), "nope.csv"), 0, nil).
		Load(context.Background())
	if out.OK() || !errors.Is(out.Err, ErrSourceUnavailable) {
		t.Errorf("out = %+v, want ErrSourceUnavailable", out)
	}
}

func TestSnapshotSource_DropsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	claims := filepath.Join(dir, "claims.csv")
	ledger := filepath.Join(dir, "ledger.csv")
	os.WriteFile(claims, []byte("service_date,paid_amount\nnot-a-date,10\n2024-02-01,abc\n2024-02-01,5\n"), 0o644)
	os.WriteFile(ledger, []byte("posted_date,amount\n"), 0o644)

	out := NewSnapshotSource(snapshot.NewReader(), claims, ledger, 0, nil).Load(context.Background())
	if !out.OK() {
		t.Fatalf("Load failed: %v", out.Err)
	}
	want := []domain.RevenueRecord{{Date: mustDate(t, "2024-02-01"), Type: domain.DefaultRevenueType, Amount: 5}}
	if !reflect.DeepEqual(out.Dataset.Revenue, want) {
		t.Errorf("Revenue = %+v, want %+v", out.Dataset.Revenue, want)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := normalize.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}
