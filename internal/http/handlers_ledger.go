package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

const defaultRecentLimit = 20

func newTransactionFrom(body *RequestBodyParser) services.NewTransaction {
	return services.NewTransaction{
		Kind:       body.Get("kind"),
		Amount:     body.Get("amount"),
		CategoryID: body.Get("category_id"),
		Note:       body.Get("note"),
		Date:       body.Get("date"),
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePeriod(r.URL.Query(), s.svc.Dashboard.CurrentMonth())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := s.svc.Transactions.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := ParseLimit(r.URL.Query(), maxRecentLimit)
	if limit == 0 {
		limit = defaultRecentLimit
	}
	ts, err := s.svc.Transactions.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	tx, err := s.svc.Transactions.Create(r.Context(), newTransactionFrom(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, core.ErrNotFound)
		return
	}
	if err := s.svc.Transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.svc.Categories.List(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	c, err := s.svc.Categories.Create(r.Context(), body.Get("name"), body.Get("icon"), body.Get("kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, core.ErrNotFound)
		return
	}
	if err := s.svc.Categories.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Budgets.Get(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	b, err := s.svc.Budgets.Set(r.Context(), month, body.Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.svc.Budgets.Progress(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
