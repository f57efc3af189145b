package aggregate

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// BudgetProgress compares a monthly budget with what was spent.
type BudgetProgress struct {
	Budget    core.Budget     `json:"budget"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Percent   float64         `json:"percent"`
	Over      bool            `json:"over"`
}

// Progress computes usage of b given the expense total for its month.
// Percent is capped at 100; Over flags spending beyond the budget.
func Progress(b core.Budget, spent decimal.Decimal) BudgetProgress {
	p := BudgetProgress{
		Budget:    b,
		Spent:     spent,
		Remaining: b.Amount.Sub(spent),
		Over:      spent.GreaterThan(b.Amount),
	}
	switch {
	case b.Amount.IsZero():
		if spent.IsPositive() {
			p.Percent = 100
		}
	default:
		pct := spent.Div(b.Amount).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		p.Percent = pct.Round(2).InexactFloat64()
	}
	return p
}
