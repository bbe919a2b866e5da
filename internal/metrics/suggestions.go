package metrics

import (
	"fmt"
	"sort"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// Suggestions derives up to three optimization hints from the dataset.
// The result is never nil.
func Suggestions(ds *domain.Dataset) []string {
	out := make([]string, 0, 3)

	if row, ok := highestMargin(ds.Profitability.Procedure); ok {
		out = append(out, fmt.Sprintf("Prioritize %s: highest-margin procedure at %.2f (revenue %.2f, expense %.2f)",
			row.Name, row.Margin(), row.Revenue, row.Expense))
	}

	if row, ok := topRevenue(ds.Profitability.Physician); ok {
		out = append(out, fmt.Sprintf("Protect %s's schedule: top revenue physician at %.2f across %d visits",
			row.Name, row.Revenue, row.Visits))
	}

	if avg, days, ok := AverageUtilization(ds.OptimizationTrend); ok {
		out = append(out, fmt.Sprintf("Average utilization is %.1f%% over %d days; fill open capacity on low-utilization days",
			avg, days))
	}

	return out
}

// highestMargin returns the first row with the largest margin.
func highestMargin(rows []domain.ProfitabilityRow) (domain.ProfitabilityRow, bool) {
	if len(rows) == 0 {
		return domain.ProfitabilityRow{}, false
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Margin() > best.Margin() {
			best = r
		}
	}
	return best, true
}

// topRevenue sorts a copy by revenue descending, keeping input order on ties.
func topRevenue(rows []domain.ProfitabilityRow) (domain.ProfitabilityRow, bool) {
	if len(rows) == 0 {
		return domain.ProfitabilityRow{}, false
	}
	sorted := append([]domain.ProfitabilityRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Revenue > sorted[j].Revenue
	})
	return sorted[0], true
}

// AverageUtilization is the mean of the Utilization series. It reports false
// unless both the Capacity and Utilization series have points.
func AverageUtilization(trend []domain.MetricRecord) (avg float64, points int, ok bool) {
	var capacity int
	var total float64
	for _, m := range trend {
		switch m.Metric {
		case domain.MetricCapacity:
			capacity++
		case domain.MetricUtilization:
			points++
			total += m.Value
		}
	}
	if capacity == 0 || points == 0 {
		return 0, 0, false
	}
	return total / float64(points), points, true
}
