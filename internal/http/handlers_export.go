package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"flatmates/internal/core"
	"flatmates/internal/export"
	applog "flatmates/internal/log"
)

func (s *Server) exportFilename(ext string) string {
	return fmt.Sprintf("flatmates-export-%s.%s", today(s.now), ext)
}

// handleExportJSON downloads the export bundle.
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	b := export.New(s.ledger.All(), s.now())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, s.exportFilename("json")))
	if err := export.Encode(w, b); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed", applog.FieldError, err)
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, s.exportFilename("csv")))
	if err := export.WriteCSV(w, s.ledger.All()); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed", applog.FieldError, err)
	}
}

type importResult struct {
	Imported int    `json:"imported"`
	Version  uint64 `json:"version"`
}

// handleImport replaces the whole ledger with an uploaded bundle, or with CSV
// rows when the content type is text/csv. Nothing changes unless every
// record is valid.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var (
		expenses []core.Expense
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		expenses, err = export.ReadCSV(body)
	} else {
		var b export.Bundle
		b, err = export.Decode(body)
		expenses = b.Expenses
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if !errors.Is(err, core.ErrValidation) && !errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		ErrorFor(err).Write(w)
		return
	}

	if err := s.ledger.Replace(r.Context(), expenses); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Ledger imported", "count", len(expenses))
	s.respondMutation(w, http.StatusOK, importResult{Imported: len(expenses), Version: s.ledger.Version()})
}
