package http

import (
	"fmt"
	"net/http"

	"flatmates/internal/balance"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	summary := balance.Compute(s.ledger.All())
	s.metrics.ObserveSummary(summary)
	NewJSONResponse().Data(summary).Write(w)
}

// handleStats returns the month view for ?year=&month=&day=, defaulting to
// today. Results are cached per ledger version and reference date.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ref, err := ParseDateParams(r.URL.Query(), today(s.now))
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}

	key := fmt.Sprintf("%d:%s", s.ledger.Version(), ref)
	if stats, ok := s.statsCache.Get(key); ok {
		s.metrics.CacheLookup("stats", true)
		NewJSONResponse().Data(stats).Write(w)
		return
	}
	s.metrics.CacheLookup("stats", false)

	stats := balance.Stats(s.ledger.All(), ref)
	s.statsCache.Set(key, stats)
	NewJSONResponse().Data(stats).Write(w)
}
