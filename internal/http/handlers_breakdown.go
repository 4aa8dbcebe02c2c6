package http

import "net/http"

// handleBreakdown serves the per-type, per-category aggregation for one
// month, optionally restricted to a single account.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	accountID := r.URL.Query().Get("account_id")

	bd, err := s.svc.MonthBreakdown(r.Context(), ownerFrom(r), year, month, accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownJSON(bd))
}
