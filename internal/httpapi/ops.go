package httpapi

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	toJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.deps.Store == nil {
		toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	if err := s.deps.Store.Ready(ctx); err != nil {
		s.log.Warn("readiness check failed", "err", err)
		writeErr(w, http.StatusServiceUnavailable, "store unavailable", "not_ready")
		return
	}
	toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// runRecurring runs one scheduler pass. ?date=YYYY-MM-DD overrides today in
// the ledger timezone.
func (s *Server) runRecurring(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeErr(w, http.StatusNotImplemented, "scheduler disabled", "disabled")
		return
	}
	today := s.deps.Now().In(s.deps.Location)
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, s.deps.Location)
		if err != nil {
			badRequest(w, "date must be YYYY-MM-DD")
			return
		}
		today = d
	}
	report, err := s.deps.Scheduler.RunDue(r.Context(), today)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, report)
}

func (s *Server) recomputeBalances(w http.ResponseWriter, r *http.Request) {
	if s.deps.Balances == nil {
		writeErr(w, http.StatusNotImplemented, "balances disabled", "disabled")
		return
	}
	report, err := s.deps.Balances.RecomputeAll(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, report)
}

func (s *Server) auditBalances(w http.ResponseWriter, r *http.Request) {
	if s.deps.Balances == nil {
		writeErr(w, http.StatusNotImplemented, "balances disabled", "disabled")
		return
	}
	drift, err := s.deps.Balances.Audit(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]any{"drifted": drift, "count": len(drift)})
}

func (s *Server) budgetStatuses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Budgets == nil {
		writeErr(w, http.StatusNotImplemented, "budgets disabled", "disabled")
		return
	}
	statuses, err := s.deps.Budgets.Statuses(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, budgetStatusesResponse{Budgets: statuses})
}
