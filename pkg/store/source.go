package store

import (
	"context"
	"fmt"
	"time"

	"github.com/perfwatch/perfwatch/pkg/report"
)

// This file implements report.Source: the read-only result accessor the
// changes-table builder queries.

// LastRevisions returns the most recent revisions on a branch not newer
// than the given date, ordered by date descending.
func (s *store) LastRevisions(
	ctx context.Context, branchID uint, until time.Time, limit int,
) ([]report.Revision, error) {
	var revs []Revision
	if err := s.db.WithContext(ctx).
		Where("branch_id = ? AND date <= ?", branchID, until).
		Order("date DESC").
		Limit(limit).
		Find(&revs).Error; err != nil {
		return nil, fmt.Errorf("listing last revisions: %w", err)
	}

	out := make([]report.Revision, 0, len(revs))
	for _, r := range revs {
		out = append(out, report.Revision{
			ID:       r.ID,
			CommitID: r.CommitID,
			Tag:      r.Tag,
			Date:     r.Date,
		})
	}

	return out, nil
}

// Benchmarks returns all benchmarks.
func (s *store) Benchmarks(ctx context.Context) ([]report.Benchmark, error) {
	var benches []Benchmark
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&benches).Error; err != nil {
		return nil, fmt.Errorf("listing benchmarks: %w", err)
	}

	out := make([]report.Benchmark, 0, len(benches))
	for _, b := range benches {
		out = append(out, report.Benchmark{
			ID:           b.ID,
			Name:         b.Name,
			Description:  b.Description,
			Units:        b.Units,
			UnitsTitle:   b.UnitsTitle,
			LessIsBetter: b.LessIsBetter,
		})
	}

	return out, nil
}

// Results returns the results for one (revision, executable, environment).
// With onlyPositive set, non-positive values are excluded; those reflect
// invalid samples and never qualify as current measurements.
func (s *store) Results(
	ctx context.Context,
	revisionID, executableID, environmentID uint,
	onlyPositive bool,
) ([]report.Result, error) {
	q := s.db.WithContext(ctx).
		Where("revision_id = ? AND executable_id = ? AND environment_id = ?",
			revisionID, executableID, environmentID)

	if onlyPositive {
		q = q.Where("value > 0")
	}

	var results []Result
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	out := make([]report.Result, 0, len(results))
	for _, r := range results {
		out = append(out, report.Result{
			BenchmarkID: r.BenchmarkID,
			Value:       r.Value,
			StdDev:      r.StdDev,
			ValMin:      r.ValMin,
			ValMax:      r.ValMax,
		})
	}

	return out, nil
}
