package normalize

import "github.com/awsl-project/clinicpulse/internal/domain"

// Canonical field names produced by the tables below.
const (
	FieldDate      = "date"
	FieldType      = "type"
	FieldCategory  = "category"
	FieldAmount    = "amount"
	FieldName      = "name"
	FieldRevenue   = "revenue"
	FieldExpense   = "expense"
	FieldVisits    = "visits"
	FieldPayments  = "payments"
	FieldPhysician = "physician"
	FieldProcedure = "procedure"
)

// Remote query result shapes. Rows arrive pre-aggregated by the query service.
var (
	RevenueQuery = Schema{Name: "revenue_by_date_type", Fields: []Field{
		dateField("date"),
		labelField(FieldType, domain.DefaultRevenueType, "type"),
		amountField(FieldAmount, "amount"),
	}}

	ExpenseQuery = Schema{Name: "expense_by_date_category", Fields: []Field{
		dateField("date"),
		labelField(FieldCategory, domain.DefaultExpenseCategory, "category"),
		amountField(FieldAmount, "amount"),
	}}

	ProcedureQuery = Schema{Name: "top_procedures", Fields: []Field{
		labelField(FieldName, domain.DefaultProcedure, "name", "procedure"),
		amountField(FieldRevenue, "revenue"),
		amountField(FieldVisits, "visits"),
	}}

	PhysicianRevenueQuery = Schema{Name: "revenue_by_physician", Fields: []Field{
		labelField(FieldName, domain.DefaultPhysician, "physician", "name"),
		amountField(FieldRevenue, "revenue"),
		amountField(FieldVisits, "visits"),
	}}

	PhysicianExpenseQuery = Schema{Name: "expense_by_physician", Fields: []Field{
		labelField(FieldName, domain.DefaultPhysician, "physician", "name"),
		amountField(FieldExpense, "expense"),
	}}

	UtilizationQuery = Schema{Name: "daily_utilization", Fields: []Field{
		dateField("date"),
		amountField(FieldVisits, "visits"),
		amountField(FieldPayments, "payments"),
	}}
)

// Snapshot row shapes. One row per claim or ledger entry.
//
// The dated tables feed the time series. The entity tables ignore the date so
// a row with a bad date still counts toward procedure and physician totals,
// the same way the undated remote queries count it.
var (
	ClaimsSnapshot = Schema{Name: "claims", Fields: []Field{
		dateField("service_date", "date"),
		labelField(FieldType, domain.DefaultRevenueType, "claim_type", "type"),
		amountField(FieldAmount, "paid_amount", "amount"),
		labelField(FieldPhysician, domain.DefaultPhysician, "physician", "rendering_physician"),
		labelField(FieldProcedure, domain.DefaultProcedure, "procedure_name", "procedure", "cpt_code"),
	}}

	// LedgerSnapshot leaves physician empty for entries not attributable to one.
	LedgerSnapshot = Schema{Name: "ledger", Fields: []Field{
		dateField("posted_date", "entry_date", "date"),
		labelField(FieldCategory, domain.DefaultExpenseCategory, "category", "account"),
		amountField(FieldAmount, "amount"),
		labelField(FieldPhysician, "", "physician"),
	}}

	ClaimEntities = Schema{Name: "claims", Fields: []Field{
		amountField(FieldAmount, "paid_amount", "amount"),
		labelField(FieldPhysician, domain.DefaultPhysician, "physician", "rendering_physician"),
		labelField(FieldProcedure, domain.DefaultProcedure, "procedure_name", "procedure", "cpt_code"),
	}}

	LedgerEntities = Schema{Name: "ledger", Fields: []Field{
		amountField(FieldAmount, "amount"),
		labelField(FieldPhysician, "", "physician"),
	}}
)
