package api

import (
	"net/http"
	"time"

	"github.com/example/pos-ledger/internal/api/middleware"
	"github.com/example/pos-ledger/internal/auth"
	"github.com/example/pos-ledger/internal/domain/user"
	"github.com/example/pos-ledger/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, m *metrics.Collector, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Instrument(m))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", metrics.Handler(gatherer))
	r.Post("/auth/login", handlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handlers.CreateOrder)
			r.Get("/", handlers.ListOrders)
			r.Get("/by-number/{number}", handlers.GetOrderByNumber)
			r.Get("/{id}", handlers.GetOrder)
			r.Post("/{id}/confirm", handlers.ConfirmOrder)
			r.Post("/{id}/cancel", handlers.CancelOrder)
			r.Post("/{id}/deliver", handlers.DeliverOrder)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/movements", handlers.RegisterMovement)
			r.Get("/movements", handlers.ListMovements)
			r.Get("/movements/{id}", handlers.GetMovement)
		})

		r.Get("/products/{id}", handlers.GetProduct)
		r.With(middleware.RequireRole(user.RoleAdmin)).Get("/products/{id}/ledger", handlers.VerifyLedger)
	})

	return r
}
