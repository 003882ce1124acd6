package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryTotal is a per-category sum. It is derived on demand and never stored.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
}

// SumTotals adds up the totals of a rollup.
func SumTotals(totals []CategoryTotal) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return sum
}

// SortTotals orders a rollup by descending total, then by category name.
func SortTotals(totals []CategoryTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
}
