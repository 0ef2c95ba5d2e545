package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/perfwatch/perfwatch/pkg/config"
	"github.com/perfwatch/perfwatch/pkg/report"
	"github.com/perfwatch/perfwatch/pkg/store"
)

var (
	recalcConcurrency int
	recalcProject     string
)

var recalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Rebuild stored reports",
	Long: `Rebuild the summary, color and cached changes table of every stored
report, or only one project's. Useful after changing thresholds or after a
data import.`,
	RunE: runRecalculate,
}

func init() {
	recalculateCmd.Flags().IntVar(&recalcConcurrency, "concurrency", 4,
		"number of reports to rebuild in parallel")
	recalculateCmd.Flags().StringVar(&recalcProject, "project", "",
		"rebuild only this project's reports")

	rootCmd.AddCommand(recalculateCmd)
}

func runRecalculate(cmd *cobra.Command, args []string) error {
	if len(cfgFiles) == 0 {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := context.Background()

	db := store.NewStore(log, &cfg.Database)
	if err := db.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := db.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	var reports []store.Report

	if recalcProject != "" {
		reports, err = db.ListProjectReports(ctx, recalcProject)
	} else {
		reports, err = db.ListReports(ctx, 0)
	}

	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	if len(reports) == 0 {
		log.Info("No reports to rebuild")

		return nil
	}

	engineCfg := report.Config{
		ChangeThreshold: cfg.Thresholds.ChangeThreshold,
		TrendThreshold:  cfg.Thresholds.TrendThreshold,
		TrendDepth:      cfg.Thresholds.TrendDepth,
	}

	log.WithField("reports", len(reports)).Info("Rebuilding reports")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcConcurrency)

	for i := range reports {
		rep := &reports[i]

		g.Go(func() error {
			if err := db.MaterializeReport(gctx, rep, engineCfg); err != nil {
				return fmt.Errorf("rebuilding report %d: %w", rep.ID, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.WithField("reports", len(reports)).Info("Rebuilt all reports")

	return nil
}
