package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestBuildOrdersNewestFirst(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	ts := []core.Transaction{
		{Amount: decimal.NewFromInt(500), Kind: core.Expense, Category: &core.CategoryRef{Name: "Food"}, Date: core.NewDate(2024, 6, 3), CreatedAt: base},
		{Amount: decimal.NewFromInt(25000), Kind: core.Income, Category: &core.CategoryRef{Name: "Salary"}, Date: core.NewDate(2024, 6, 10), CreatedAt: base},
		{Amount: decimal.RequireFromString("200.5"), Kind: core.Expense, Date: core.NewDate(2024, 6, 10), Note: "taxi", CreatedAt: base.Add(time.Hour)},
	}

	r := Build(core.NewMonthKey(2024, 6), ts)

	if len(r.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(r.Rows))
	}
	want := []Row{
		{Date: "2024-06-10", Category: core.OtherCategory, Kind: "expense", Amount: "200.50", Note: "taxi"},
		{Date: "2024-06-10", Category: "Salary", Kind: "income", Amount: "25000.00"},
		{Date: "2024-06-03", Category: "Food", Kind: "expense", Amount: "500.00"},
	}
	for i := range want {
		if r.Rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, r.Rows[i], want[i])
		}
	}
	if !r.Totals.Balance.Equal(decimal.RequireFromString("24299.5")) {
		t.Errorf("balance = %s", r.Totals.Balance)
	}
	// input untouched
	if ts[0].Category.Name != "Food" {
		t.Error("input reordered")
	}
}

func TestWriteCSV(t *testing.T) {
	r := Build(core.NewMonthKey(2024, 6), []core.Transaction{
		{Amount: decimal.NewFromInt(12), Kind: core.Expense, Date: core.NewDate(2024, 6, 1), Note: "coffee, croissant"},
	})

	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "Date,Category,Kind,Amount,Note" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `2024-06-01,Other,expense,12.00,"coffee, croissant"` {
		t.Errorf("row = %q", lines[1])
	}
	if r.Filename() != "bilancio-2024-06.csv" {
		t.Errorf("filename = %q", r.Filename())
	}
}
