package http

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bilancio/internal/core"
)

// reportMonth accepts "2024-06" and "2024-06.csv". csv reports whether the
// suffix or ?format=csv asked for CSV.
func reportMonth(r *http.Request) (month core.MonthKey, csv bool, err error) {
	raw := chi.URLParam(r, "month")
	raw, csv = strings.CutSuffix(raw, ".csv")
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		csv = true
	}
	month, err = core.ParseMonthKey(raw)
	return month, csv, err
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	month, csv, err := reportMonth(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.svc.Reports.Build(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !csv {
		writeJSON(w, http.StatusOK, rep)
		return
	}

	var buf bytes.Buffer
	if err := rep.WriteCSV(&buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	month, _, err := reportMonth(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	title, err := s.svc.Reports.Export(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sheet": title, "month": month.String()})
}
