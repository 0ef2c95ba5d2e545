// Package api exposes the HTTP surface: result ingestion and report
// reads. Admin screens, chart rendering, and HTML views are not part of
// this service.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfwatch/perfwatch/pkg/config"
	"github.com/perfwatch/perfwatch/pkg/ingest"
	"github.com/perfwatch/perfwatch/pkg/report"
	"github.com/perfwatch/perfwatch/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	db         store.Store
	ingester   ingest.Ingester
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// engineConfig builds the report engine configuration from the loaded
// thresholds. The engine itself never reads ambient settings.
func engineConfig(cfg *config.Config) report.Config {
	return report.Config{
		ChangeThreshold: cfg.Thresholds.ChangeThreshold,
		TrendThreshold:  cfg.Thresholds.TrendThreshold,
		TrendDepth:      cfg.Thresholds.TrendDepth,
	}
}

// Start initializes the store, seeds config data, and starts the HTTP
// server.
func (s *server) Start(ctx context.Context) error {
	s.db = store.NewStore(s.log, &s.cfg.Database)
	if err := s.db.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	if err := s.db.SeedProjects(ctx, s.cfg.Projects); err != nil {
		return fmt.Errorf("seeding projects: %w", err)
	}

	if err := s.db.SeedAPIKeys(ctx, s.cfg.Auth.APIKeys); err != nil {
		return fmt.Errorf("seeding api keys: %w", err)
	}

	s.ingester = ingest.New(s.log, s.db, engineConfig(s.cfg))

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.db != nil {
		if err := s.db.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
