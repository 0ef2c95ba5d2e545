package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Read endpoints.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Public,
				))
			}

			r.Get("/reports", s.handleListReports)
			r.Get("/changes", s.handleGetChanges)
		})

		// Ingest endpoints.
		r.Route("/result", func(r chi.Router) {
			r.Use(s.requireAPIKey)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Ingest,
				))
			}

			r.Post("/", s.handleAddResult)
			r.Post("/bulk", s.handleAddResultBulk)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
