package http

import (
	"net/http"

	"flatmates/internal/core"
	applog "flatmates/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

type readyBody struct {
	Status      string `json:"status"`
	Version     uint64 `json:"version"`
	Error       string `json:"error,omitempty"`
	LastWarning string `json:"lastWarning,omitempty"`
}

// handleReady fails while the backend probe fails. A pending persistence
// warning is reported but does not make the service unready: the ledger
// keeps working from memory.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	body := readyBody{Status: "ready", Version: s.ledger.Version()}
	if warn := s.ledger.LastWarning(); warn != nil {
		body.LastWarning = warn.Error()
	}

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness probe failed", applog.FieldError, err)
			body.Status = "unavailable"
			body.Error = err.Error()
			NewJSONResponse().Status(http.StatusServiceUnavailable).Data(body).Write(w)
			return
		}
	}
	NewJSONResponse().Data(body).Write(w)
}

// respondMutation writes a successful mutation response with the sync
// warning of the commit it produced.
func (s *Server) respondMutation(w http.ResponseWriter, status int, data interface{}) {
	NewJSONResponse().
		Status(status).
		SyncWarning(s.ledger.LastWarning()).
		Data(data).
		Write(w)
}

// logExpense logs a successful mutation with the record's identifying fields.
func logExpense(r *http.Request, msg, op string, e core.Expense) {
	fields := applog.NewFields().
		WithOperation(op).
		WithExpense(e.ID, e.Amount, e.PaidBy.String(), string(e.SplitType))
	applog.FromContext(r.Context()).InfoContext(r.Context(), msg, fields.ToSlice()...)
}
