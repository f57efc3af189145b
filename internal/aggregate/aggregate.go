// Package aggregate reduces transaction snapshots into dashboard figures.
//
// Every function here is pure: it reads the slice it is given, never keeps
// references to it and returns freshly allocated results. Inputs are expected
// to be validated already (non-negative amounts, known kinds).
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Summary holds the income/expense totals of a set of transactions.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// DayBucket is one day of an expense series.
type DayBucket struct {
	Date    core.Date       `json:"date"`
	Label   string          `json:"label"`
	Expense decimal.Decimal `json:"expense"`
}

// CategoryTotal is one row of a category breakdown.
type CategoryTotal struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}

// Totals sums income and expense amounts. Empty input yields all zeros.
func Totals(ts []core.Transaction) Summary {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range ts {
		switch t.Kind {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}
	return Summary{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

// GrowthRatio returns the percentage change from previous to current.
//
// A zero previous value maps to 100 when current is positive and to 0 when
// both are zero.
func GrowthRatio(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		if current.IsPositive() {
			return 100
		}
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(hundred).InexactFloat64()
}

// DailySeries buckets expense amounts per day for the windowDays days ending
// on today, oldest first. Days without activity are present with zero.
func DailySeries(ts []core.Transaction, windowDays int, today core.Date) []DayBucket {
	if windowDays <= 0 {
		return []DayBucket{}
	}
	start := today.AddDays(-(windowDays - 1))
	buckets := make([]DayBucket, windowDays)
	index := make(map[string]int, windowDays)
	for i := range buckets {
		d := start.AddDays(i)
		buckets[i] = DayBucket{Date: d, Label: d.Format("02 Jan"), Expense: decimal.Zero}
		index[d.String()] = i
	}
	for _, t := range ts {
		if t.Kind != core.Expense {
			continue
		}
		if i, ok := index[t.Date.String()]; ok {
			buckets[i].Expense = buckets[i].Expense.Add(t.Amount)
		}
	}
	return buckets
}

// CategoryBreakdown groups expenses by category name and returns the topN
// largest groups, largest first. Equal totals keep first-seen order.
func CategoryBreakdown(ts []core.Transaction, topN int) []CategoryTotal {
	if topN <= 0 {
		return []CategoryTotal{}
	}
	var groups []CategoryTotal
	pos := make(map[string]int)
	for _, t := range ts {
		if t.Kind != core.Expense {
			continue
		}
		name := t.CategoryName()
		i, ok := pos[name]
		if !ok {
			i = len(groups)
			pos[name] = i
			groups = append(groups, CategoryTotal{Name: name, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(t.Amount)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Total.GreaterThan(groups[b].Total)
	})
	if len(groups) > topN {
		groups = groups[:topN]
	}
	if groups == nil {
		return []CategoryTotal{}
	}
	return groups
}

// Filter returns the transactions whose date falls inside p.
func Filter(ts []core.Transaction, p core.Period) []core.Transaction {
	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		if p.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out
}
