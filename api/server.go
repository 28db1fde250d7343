/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logging:    zap access log, level by status
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    prometheus request count and latency
  5. CORS:       Cross-origin requests from the dashboard

ROUTE GROUPS:
  /api/students/*         Santri, mutasi, tunggakan
  /api/classes            Kelas
  /api/bill-definitions/* Jenis tagihan, preview, generate
  /api/payments/*         Pembayaran, kwitansi
  /api/ledger/*           Buku kas, entries, transfers
  /api/scenarios/demo     Demo data
  /health, /metrics       Liveness, prometheus

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/pesantren-billing/logging"
)

// RouterConfig holds the router options that come from configuration.
type RouterConfig struct {
	CORSAllowOrigins []string
	MetricsPath      string // empty disables /metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.log))
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if h.metrics != nil && cfg.MetricsPath != "" {
		r.Method(http.MethodGet, cfg.MetricsPath, h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Put("/{id}/class", h.ChangeClass)
			r.Post("/{id}/transfer-out", h.TransferOut)
			r.Get("/{id}/invoices", h.StudentInvoices)
			r.Get("/{id}/arrears", h.StudentArrears)
		})

		r.Route("/classes", func(r chi.Router) {
			r.Get("/", h.ListClasses)
			r.Post("/", h.CreateClass)
		})

		r.Route("/bill-definitions", func(r chi.Router) {
			r.Get("/", h.ListDefinitions)
			r.Post("/", h.CreateDefinition)
			r.Get("/{id}", h.GetDefinition)
			r.Post("/{id}/preview", h.PreviewGeneration)
			r.Post("/{id}/generate", h.Generate)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/full", h.PayFull)
			r.Post("/partial", h.PayPartial)
			r.Get("/{id}/receipt", h.Receipt)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/accounts", h.ListAccounts)
			r.Post("/accounts", h.CreateAccount)
			r.Get("/accounts/{id}/entries", h.AccountEntries)
			r.Post("/entries", h.CreateEntry)
			r.Delete("/entries/{id}", h.DeleteEntry)
			r.Post("/transfers", h.CreateTransfer)
		})

		r.Post("/scenarios/demo", h.LoadDemo)
	})

	return r
}
