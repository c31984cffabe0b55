package api

import (
	"log/slog"
	"net/http"

	"project/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recover(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/event", func(r chi.Router) {
		r.Post("/collect", h.CollectEvent)
		r.Post("/batch", h.CollectBatch)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
