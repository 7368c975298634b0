package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crewline/crewline/internal/billing"
	"github.com/crewline/crewline/internal/invoicing"
	"github.com/crewline/crewline/internal/summary"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	BillingHandler   *billing.Handler
	InvoicingHandler *invoicing.Handler
	SummaryHandler   *summary.Handler
}

// NewRouter constructs the chi.Router with Crewline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{Config: params.Config}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(api)
		}
		if params.InvoicingHandler != nil {
			params.InvoicingHandler.MountRoutes(api)
		}
		if params.SummaryHandler != nil {
			params.SummaryHandler.MountRoutes(api)
		}
	})

	return r
}
