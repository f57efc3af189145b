package http

import (
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// DefaultCurrencySymbol prefixes amounts when no symbol is configured.
const DefaultCurrencySymbol = "€"

func templateFuncs(currency string) template.FuncMap {
	return template.FuncMap{
		"money":      func(d decimal.Decimal) string { return formatMoney(currency, d) },
		"growth":     formatGrowth,
		"barWidth":   barWidth,
		"monthLabel": monthLabel,
	}
}

func formatMoney(symbol string, d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + symbol + core.FormatAmount(d.Abs())
	}
	return symbol + core.FormatAmount(d)
}

func formatGrowth(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

// barWidth scales value against max as a rounded percent. Non-zero values
// get at least 2 so they stay visible.
func barWidth(value, max decimal.Decimal) int {
	if !max.IsPositive() || !value.IsPositive() {
		return 0
	}
	width := int(value.Mul(decimal.NewFromInt(100)).Div(max).Round(0).IntPart())
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

func monthLabel(m core.MonthKey) string {
	return time.Month(m.Month).String() + " " + fmt.Sprint(m.Year)
}
