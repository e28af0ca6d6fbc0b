package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/resilient-orders/internal/order-service/infra/httpx/middlewares"
)

// NewRouter mounts the order API. metrics is served on /metrics when not nil;
// mws wrap every route after request ids are assigned.
func NewRouter(handler *Handler, metrics http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(mws...)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handler.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/order", func(r chi.Router) {
		r.Post("/create", handler.CreateOrder)
		r.Get("/circuit-status", handler.GetCircuitStatus)
		r.Post("/circuit/{dependency}/{mode}", handler.SetCircuitMode)
		r.Get("/{orderId}", handler.GetOrderByID)
		r.Get("/{orderId}/journal", handler.GetJournal)
	})
	return r
}
