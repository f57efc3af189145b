package http

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

const overviewFallback = `<section id="month-overview" class="month-overview"><div class="placeholder">Overview unavailable</div></section>`

// overviewView is what overview.html renders.
type overviewView struct {
	services.Overview
	PrevMonth    core.MonthKey
	NextMonth    core.MonthKey
	MaxDaily     decimal.Decimal
	MaxBreakdown decimal.Decimal
}

func newOverviewView(ov services.Overview) overviewView {
	v := overviewView{Overview: ov, PrevMonth: ov.Month.Previous(), NextMonth: ov.Month.Next()}
	for _, d := range ov.Daily {
		if d.Expense.GreaterThan(v.MaxDaily) {
			v.MaxDaily = d.Expense
		}
	}
	for _, c := range ov.Breakdown {
		if c.Total.GreaterThan(v.MaxBreakdown) {
			v.MaxBreakdown = c.Total
		}
	}
	return v
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonth(r.URL.Query(), s.svc.Dashboard.CurrentMonth())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.svc.Dashboard.Overview(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// handleIndex renders the dashboard page, or the login page without a session.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	r, ok := s.sessionOwner(r)
	if !ok {
		s.render(w, r, "login.html", nil)
		return
	}

	cats, err := s.svc.Categories.List(r.Context(), "")
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Category list error", "error", err)
	}
	month := s.svc.Dashboard.CurrentMonth()
	data := struct {
		Month      core.MonthKey
		Today      string
		Expense    []core.Category
		Income     []core.Category
		SSEEnabled bool
	}{
		Month:      month,
		Today:      s.svc.Dashboard.Today().String(),
		SSEEnabled: s.hub != nil,
	}
	for _, c := range cats {
		if c.Kind == core.Income {
			data.Income = append(data.Income, c)
		} else {
			data.Expense = append(data.Expense, c)
		}
	}
	s.render(w, r, "index.html", data)
}

// handleOverviewPartial renders the monthly overview fragment.
func (s *Server) handleOverviewPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	month, err := ParseMonth(r.URL.Query(), s.svc.Dashboard.CurrentMonth())
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Invalid month parameter",
			"query", r.URL.RawQuery, "corrected_to", s.svc.Dashboard.CurrentMonth().String())
		month = s.svc.Dashboard.CurrentMonth()
	}
	ov, err := s.svc.Dashboard.Overview(r.Context(), month)
	if err != nil {
		writeHTMLError(w, r, err)
		return
	}
	if s.templates == nil {
		_, _ = w.Write([]byte(overviewFallback))
		return
	}
	s.render(w, r, "overview.html", newOverviewView(ov))
}

func (s *Server) handleCreateTransactionForm(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("Invalid form").Write(w)
		return
	}
	tx, err := s.svc.Transactions.Create(r.Context(), newTransactionFrom(body))
	if err != nil {
		writeHTMLError(w, r, err)
		return
	}

	label := "Expense"
	if tx.Kind == core.Income {
		label = "Income"
	}
	msg := label + " of " + formatMoney(s.currency, tx.Amount) + " recorded (" + tx.CategoryName() + ")"
	NewHTMXResponse().
		TriggerTransactionCreated(tx.Date.Month()).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

func (s *Server) handleDeleteTransactionForm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		NotFoundError("Transaction not found").Write(w)
		return
	}
	month, err := ParseMonth(r.URL.Query(), s.svc.Dashboard.CurrentMonth())
	if err != nil {
		month = s.svc.Dashboard.CurrentMonth()
	}
	if err := s.svc.Transactions.Delete(r.Context(), id); err != nil {
		writeHTMLError(w, r, err)
		return
	}
	NewHTMXResponse().
		TriggerTransactionDeleted(month).
		TriggerOverviewRefresh(month).
		TriggerSuccessNotification("Transaction deleted").
		Write(w)
}

// render buffers the template so a failure never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err, "template", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
