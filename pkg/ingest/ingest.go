// Package ingest persists incoming benchmark results and decides when a
// revision has enough data to materialize a report.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfwatch/perfwatch/pkg/commits"
	"github.com/perfwatch/perfwatch/pkg/report"
	"github.com/perfwatch/perfwatch/pkg/store"
)

// ErrUnknownEnvironment is returned when a payload names an environment
// that has not been registered.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Saved identifies the entities a payload was attached to.
type Saved struct {
	Project     *store.Project
	Revision    *store.Revision
	Executable  *store.Executable
	Environment *store.Environment
}

// Ingester persists results and triggers report materialization.
type Ingester interface {
	// SaveResult validates and persists one result payload. Resubmitting
	// the same (revision, executable, benchmark, environment) key
	// overwrites the previous measurement.
	SaveResult(ctx context.Context, p *Payload) (*Saved, error)

	// MaybeCreateReport materializes a report for the saved result's
	// (revision, executable, environment) once enough data exists. It
	// reports whether a report was (re)materialized.
	MaybeCreateReport(ctx context.Context, saved *Saved) (bool, error)
}

// Compile-time interface check.
var _ Ingester = (*ingester)(nil)

type ingester struct {
	log logrus.FieldLogger
	db  store.Store
	cfg report.Config
}

// New creates a new Ingester.
func New(
	log logrus.FieldLogger, db store.Store, cfg report.Config,
) Ingester {
	return &ingester{
		log: log.WithField("component", "ingest"),
		db:  db,
		cfg: cfg,
	}
}

// SaveResult persists one payload: the project, branch, benchmark,
// revision, and executable are created on first sight; the environment
// must already exist.
func (i *ingester) SaveResult(
	ctx context.Context, p *Payload,
) (*Saved, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	env, err := i.db.GetEnvironmentByName(ctx, p.Environment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnvironment, p.Environment)
	}

	project, err := i.db.GetOrCreateProject(ctx, p.Project)
	if err != nil {
		return nil, err
	}

	branch, err := i.db.GetOrCreateBranch(ctx, p.Branch, project.ID)
	if err != nil {
		return nil, err
	}

	bench, _, err := i.db.GetOrCreateBenchmark(ctx, p.benchmark())
	if err != nil {
		return nil, err
	}

	rev, err := i.getOrCreateRevision(ctx, p, project, branch)
	if err != nil {
		return nil, err
	}

	exe, err := i.db.GetOrCreateExecutable(ctx, p.Executable, project.ID)
	if err != nil {
		return nil, err
	}

	result := &store.Result{
		Value:         *p.ResultValue,
		StdDev:        p.StdDev,
		ValMin:        p.Min,
		ValMax:        p.Max,
		Q1:            p.Q1,
		Q3:            p.Q3,
		Date:          p.resultDate(rev),
		RevisionID:    rev.ID,
		ExecutableID:  exe.ID,
		BenchmarkID:   bench.ID,
		EnvironmentID: env.ID,
	}

	if err := i.db.UpsertResult(ctx, result); err != nil {
		return nil, err
	}

	i.log.WithFields(logrus.Fields{
		"project":   project.Name,
		"benchmark": bench.Name,
		"commit":    rev.ShortCommitID(),
	}).Debug("Result saved")

	return &Saved{
		Project:     project,
		Revision:    rev,
		Executable:  exe,
		Environment: env,
	}, nil
}

// getOrCreateRevision fetches the payload's revision, creating it on
// first sight. New revisions of projects with repository access are
// enriched with commit metadata; a failed fetch is logged, not fatal.
func (i *ingester) getOrCreateRevision(
	ctx context.Context,
	p *Payload,
	project *store.Project,
	branch *store.Branch,
) (*store.Revision, error) {
	rev, err := i.db.GetRevision(ctx, p.CommitID, branch.ID)
	if err == nil {
		return rev, nil
	}

	date := time.Now().UTC()
	if p.RevisionDate != nil {
		date = *p.RevisionDate
	}

	rev = &store.Revision{
		CommitID: p.CommitID,
		BranchID: branch.ID,
		Date:     date,
	}

	if project.RepoType != store.RepoNone {
		i.enrichRevision(ctx, rev, project)
	}

	if err := i.db.CreateRevision(ctx, rev); err != nil {
		// Concurrent creator won the race; use their row.
		if existing, fetchErr := i.db.GetRevision(
			ctx, p.CommitID, branch.ID,
		); fetchErr == nil {
			return existing, nil
		}

		return nil, err
	}

	return rev, nil
}

// enrichRevision fills in author, date, message, and tag from the
// project's commit log.
func (i *ingester) enrichRevision(
	ctx context.Context, rev *store.Revision, project *store.Project,
) {
	fetcher, err := commits.ForProject(i.log, project.RepoType, project.RepoPath)
	if err != nil {
		i.log.WithError(err).
			WithField("project", project.Name).
			Warn("No commit fetcher for project")

		return
	}

	logs, err := fetcher.FetchLog(ctx, rev.CommitID, rev.CommitID)
	if err != nil {
		i.log.WithError(err).
			WithField("commit", rev.CommitID).
			Warn("Unable to fetch commit metadata")

		return
	}

	if len(logs) == 0 {
		return
	}

	rev.Author = logs[0].Author
	rev.Message = logs[0].Message
	rev.Tag = logs[0].Tag

	if !logs[0].Date.IsZero() {
		rev.Date = logs[0].Date
	}
}

// MaybeCreateReport fires only for tracked projects and only once a
// second revision exists on the branch. It compares the result count for
// the saved revision against the count for the branch's second-newest
// revision; when the new batch has caught up, the report is get-or-created
// and materialized. Comparing counts rather than benchmark sets is a
// deliberate simplification: a batch with as many results as the previous
// revision is assumed to cover comparable benchmarks.
func (i *ingester) MaybeCreateReport(
	ctx context.Context, saved *Saved,
) (bool, error) {
	if !saved.Project.Track {
		return false, nil
	}

	lastRevs, err := i.db.LatestRevisions(ctx, saved.Revision.BranchID, 2)
	if err != nil {
		return false, err
	}

	// The first revision on a branch never gets a report; there is
	// nothing to compare against.
	if len(lastRevs) < 2 {
		return false, nil
	}

	currentCount, err := i.db.CountResults(
		ctx, saved.Revision.ID, saved.Executable.ID, saved.Environment.ID,
	)
	if err != nil {
		return false, err
	}

	previousCount, err := i.db.CountResults(
		ctx, lastRevs[1].ID, saved.Executable.ID, saved.Environment.ID,
	)
	if err != nil {
		return false, err
	}

	if currentCount < previousCount {
		return false, nil
	}

	rep, err := i.db.GetOrCreateReport(
		ctx, saved.Revision.ID, saved.Executable.ID, saved.Environment.ID,
	)
	if err != nil {
		return false, err
	}

	if err := i.db.MaterializeReport(ctx, rep, i.cfg); err != nil {
		return false, err
	}

	i.log.WithFields(logrus.Fields{
		"commit":     saved.Revision.ShortCommitID(),
		"executable": saved.Executable.Name,
		"summary":    rep.ItemDescription(),
		"colorcode":  rep.ColorCode,
	}).Info("Report materialized")

	return true, nil
}
