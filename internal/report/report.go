// Package report turns a month of transactions into exportable rows.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
)

// Header is the column order shared by every export format.
var Header = []string{"Date", "Category", "Kind", "Amount", "Note"}

type Row struct {
	Date     string `json:"date"`
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
}

// Report is a month of rows plus its totals.
type Report struct {
	Owner  string            `json:"owner,omitempty"`
	Month  core.MonthKey     `json:"month"`
	Rows   []Row             `json:"rows"`
	Totals aggregate.Summary `json:"totals"`
}

// Build orders ts newest first and renders one row per transaction.
func Build(month core.MonthKey, ts []core.Transaction) Report {
	sorted := make([]core.Transaction, len(ts))
	copy(sorted, ts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date.Time)
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([]Row, 0, len(sorted))
	for _, t := range sorted {
		rows = append(rows, Row{
			Date:     t.Date.String(),
			Category: t.CategoryName(),
			Kind:     string(t.Kind),
			Amount:   t.Amount.StringFixed(2),
			Note:     t.Note,
		})
	}
	return Report{Month: month, Rows: rows, Totals: aggregate.Totals(ts)}
}

// Values returns the header and rows as string records.
func (r Report) Values() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, Header)
	for _, row := range r.Rows {
		out = append(out, []string{row.Date, row.Category, row.Kind, row.Amount, row.Note})
	}
	return out
}

// WriteCSV encodes the report with a header row.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(r.Values()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Filename is the suggested download name, e.g. bilancio-2024-06.csv.
func (r Report) Filename() string {
	return fmt.Sprintf("bilancio-%s.csv", r.Month)
}
