package api

import (
	"net/http"
	"strings"
	"time"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAPIKey checks the Bearer token on ingest requests. When no API
// keys are configured, ingestion is open.
func (s *server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.Auth.APIKeys) == 0 {
			next.ServeHTTP(w, r)

			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"api key required"})

			return
		}

		key, err := s.db.VerifyAPIKey(r.Context(), authHeader[7:])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid api key"})

			return
		}

		if err := s.db.TouchAPIKey(
			r.Context(), key.ID, time.Now().UTC(),
		); err != nil {
			s.log.WithError(err).Warn("Failed to update api key usage")
		}

		next.ServeHTTP(w, r)
	})
}
