package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"flatmates/internal/balance"
	"flatmates/internal/core"
	applog "flatmates/internal/log"
)

type expenseList struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
	Version  uint64         `json:"version"`
}

// handleListExpenses returns the ledger newest first, filtered by ?q=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	all := s.ledger.All()
	items := balance.Filter(all, r.URL.Query().Get("q"))
	if items == nil {
		items = []core.Expense{}
	}
	NewJSONResponse().Data(expenseList{
		Expenses: items,
		Count:    len(items),
		Version:  s.ledger.Version(),
	}).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r, s.maxBodyBytes)
	if err := p.Parse(); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	req, err := parseAddRequest(p)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	e, err := s.ledger.Add(r.Context(), req)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected expense", applog.FieldError, err)
		ErrorFor(err).Write(w)
		return
	}

	logExpense(r, "Expense created", "create", e)
	w.Header().Set("Location", "/api/expenses/"+e.ID)
	s.respondMutation(w, http.StatusCreated, e)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := NewRequestBodyParser(w, r, s.maxBodyBytes)
	if err := p.Parse(); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	patch, err := parsePatch(p)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	e, err := s.ledger.Edit(r.Context(), id, patch)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	logExpense(r, "Expense edited", "update", e)
	s.respondMutation(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted", applog.FieldExpenseID, id)
	s.respondMutation(w, http.StatusNoContent, nil)
}

// handleClearExpenses empties the ledger. The caller must confirm with
// ?confirm=true since the operation cannot be undone.
func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if !wantsConfirm(r) {
		BadRequestError("clearing the ledger removes every expense; repeat with ?confirm=true").Write(w)
		return
	}
	s.ledger.Clear(r.Context())
	s.respondMutation(w, http.StatusNoContent, nil)
}
