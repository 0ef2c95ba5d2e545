package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perfwatch/perfwatch/pkg/api"
	"github.com/perfwatch/perfwatch/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the perfwatch server",
	Long: `Start the perfwatch HTTP server. The server receives benchmark
results, stores them, and generates change reports.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
	serveCmd.Flags().String("db-path", "", "sqlite database path (overrides config)")

	v := serveViper
	v.SetEnvPrefix("PERFWATCH")
	v.AutomaticEnv()

	_ = v.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("db_path", serveCmd.Flags().Lookup("db-path"))

	rootCmd.AddCommand(serveCmd)
}

// serveViper resolves flag and environment overrides for the serve
// command. Flags win over PERFWATCH_* environment variables, which win
// over the config file.
var serveViper = viper.New()

func runServe(cmd *cobra.Command, args []string) error {
	if len(cfgFiles) == 0 {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if listen := serveViper.GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	if dbPath := serveViper.GetString("db_path"); dbPath != "" {
		cfg.Database.SQLite.Path = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	srv := api.NewServer(log, cfg)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	return nil
}
