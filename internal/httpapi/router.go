// Package httpapi wires the operational HTTP surface of the ledger: health,
// readiness, metrics and maintenance triggers. The CRUD API lives elsewhere.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/walletledger/internal/service/balance"
	"github.com/tinoosan/walletledger/internal/service/budget"
)

// Deps are the services behind the maintenance routes. Budgets is optional.
type Deps struct {
	Store     Pinger
	Scheduler RecurringRunner
	Balances  balance.Service
	Budgets   BudgetReporter
	Location  *time.Location
	Now       func() time.Time
}

// Server wires handlers and middleware using Chi.
type Server struct {
	deps Deps
	log  *slog.Logger
	rt   *chi.Mux
}

// New constructs the ops server with routes and middleware.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{deps: deps, rt: r, log: logger}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())

	s.rt.Route("/internal", func(r chi.Router) {
		r.Post("/recurring/run", s.runRecurring)
		r.Post("/balances/recompute", s.recomputeBalances)
		r.Get("/balances/audit", s.auditBalances)
		r.Get("/budgets/status", s.budgetStatuses)
	})
}

// budgetStatusesResponse wraps the dashboard feed.
type budgetStatusesResponse struct {
	Budgets []budget.Status `json:"budgets"`
}
