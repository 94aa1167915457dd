package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the chi router for every endpoint.
//
// Middleware is applied in the order it's added.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)
	r.Use(RequestLogger(s.logger))

	r.Get("/Items/{itemId}/InstantMix", s.InstantMix)

	r.Route("/AudioMuseAI", func(r chi.Router) {
		r.Get("/info", s.Info)
		r.Get("/health", s.Health)
		for _, rt := range relayRoutes {
			r.Method(rt.method, rt.pattern, s.relayHandler(rt))
		}
		r.Post("/fingerprint/sweep", s.TriggerSweep)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
