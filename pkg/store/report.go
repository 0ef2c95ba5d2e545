package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/perfwatch/perfwatch/pkg/report"
)

// reportTarget resolves the report's revision into the target the table
// builder works on.
func (s *store) reportTarget(
	ctx context.Context, rep *Report,
) (report.Target, error) {
	rev, err := s.GetRevisionByID(ctx, rep.RevisionID)
	if err != nil {
		return report.Target{}, fmt.Errorf("resolving report revision: %w", err)
	}

	return report.Target{
		BranchID:      rev.BranchID,
		Date:          rev.Date,
		ExecutableID:  rep.ExecutableID,
		EnvironmentID: rep.EnvironmentID,
	}, nil
}

// MaterializeReport recomputes the report from the result set currently
// visible and persists it: the changes table is rebuilt, serialized into
// the cache column, and reduced to the summary and color code. Re-saving
// over an unchanged result set reproduces an identical report.
func (s *store) MaterializeReport(
	ctx context.Context, rep *Report, cfg report.Config,
) error {
	target, err := s.reportTarget(ctx, rep)
	if err != nil {
		return err
	}

	table, summary, err := report.Materialize(ctx, s, target, cfg)
	if err != nil {
		return fmt.Errorf("materializing report: %w", err)
	}

	cache, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("serializing changes table: %w", err)
	}

	rep.TableCache = string(cache)
	rep.Summary = summary.Text
	rep.ColorCode = string(summary.Color)

	return s.SaveReport(ctx, rep)
}

// ChangesTable returns the report's changes table. When the requested
// depth is the configured default and recomputation is not forced, the
// cached serialization is deserialized and returned without touching the
// result set. A forced rebuild at the default depth refreshes the cache.
func (s *store) ChangesTable(
	ctx context.Context,
	rep *Report,
	cfg report.Config,
	trendDepth int,
	force bool,
) (report.Table, error) {
	if !force && trendDepth == cfg.TrendDepth && rep.TableCache != "" {
		var table report.Table
		if err := json.Unmarshal([]byte(rep.TableCache), &table); err != nil {
			return nil, fmt.Errorf("deserializing cached table: %w", err)
		}

		return table, nil
	}

	target, err := s.reportTarget(ctx, rep)
	if err != nil {
		return nil, err
	}

	table, err := report.BuildTable(ctx, s, target, trendDepth)
	if err != nil {
		return nil, fmt.Errorf("building changes table: %w", err)
	}

	if trendDepth == cfg.TrendDepth {
		cache, err := json.Marshal(table)
		if err != nil {
			return nil, fmt.Errorf("serializing changes table: %w", err)
		}

		rep.TableCache = string(cache)

		if err := s.SaveReport(ctx, rep); err != nil {
			return nil, err
		}
	}

	return table, nil
}
