package store

import (
	"time"
)

// Repository type constants for Project.RepoType.
const (
	RepoNone   = "none"
	RepoGitHub = "github"
)

// Project is a tracked software project.
type Project struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	Name              string `gorm:"uniqueIndex;not null" json:"name"`
	RepoType          string `gorm:"not null" json:"repo_type"`
	RepoPath          string `json:"repo_path"`
	CommitBrowsingURL string `json:"commit_browsing_url"`
	Track             bool   `json:"track"`
	DefaultBranch     string `json:"default_branch"`
}

// Branch is one line of development within a project.
type Branch struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"not null;uniqueIndex:idx_branches_name_project" json:"name"`
	ProjectID uint   `gorm:"not null;uniqueIndex:idx_branches_name_project" json:"project_id"`
}

// Revision is one commit on one branch. Revisions are ordered by date for
// the change and trend window queries.
type Revision struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	CommitID string    `gorm:"not null;uniqueIndex:idx_revisions_commit_branch" json:"commitid"`
	BranchID uint      `gorm:"not null;uniqueIndex:idx_revisions_commit_branch" json:"branch_id"`
	Tag      string    `json:"tag"`
	Date     time.Time `gorm:"index" json:"date"`
	Author   string    `json:"author"`
	Message  string    `gorm:"type:text" json:"message"`
}

// ShortCommitID returns the abbreviated commit identifier for display.
func (r *Revision) ShortCommitID() string {
	if len(r.CommitID) > 10 {
		return r.CommitID[:10]
	}

	return r.CommitID
}

// Executable is a named build or configuration of a project.
type Executable struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null;uniqueIndex:idx_executables_name_project" json:"name"`
	Description string `json:"description"`
	ProjectID   uint   `gorm:"not null;uniqueIndex:idx_executables_name_project" json:"project_id"`
}

// Benchmark is a named measurable quantity. Benchmarks sharing a units
// value are aggregated into one changes-table section.
type Benchmark struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"uniqueIndex;not null" json:"name"`
	BenchmarkType string `json:"benchmark_type"`
	Description   string `json:"description"`
	Units         string `gorm:"not null" json:"units"`
	UnitsTitle    string `gorm:"not null" json:"units_title"`
	LessIsBetter  bool   `json:"lessisbetter"`
}

// Environment is a named measurement context.
type Environment struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	OS     string `json:"os"`
	Kernel string `json:"kernel"`
}

// Result is one scalar measurement, unique per (revision, executable,
// benchmark, environment). Resubmitting the same key overwrites the value.
type Result struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Value         float64   `gorm:"not null" json:"value"`
	StdDev        *float64  `json:"std_dev"`
	ValMin        *float64  `json:"val_min"`
	ValMax        *float64  `json:"val_max"`
	Q1            *float64  `json:"q1"`
	Q3            *float64  `json:"q3"`
	Date          time.Time `json:"date"`
	RevisionID    uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"revision_id"`
	ExecutableID  uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"executable_id"`
	BenchmarkID   uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"benchmark_id"`
	EnvironmentID uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"environment_id"`
}

// Report is the derived summary for one (revision, executable,
// environment). The changes table is cached as serialized JSON alongside
// the summary; both are recomputed from the result set on every save.
type Report struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	RevisionID    uint   `gorm:"not null;uniqueIndex:idx_reports_key" json:"revision_id"`
	ExecutableID  uint   `gorm:"not null;uniqueIndex:idx_reports_key" json:"executable_id"`
	EnvironmentID uint   `gorm:"not null;uniqueIndex:idx_reports_key" json:"environment_id"`
	Summary       string `json:"summary"`
	ColorCode     string `gorm:"not null" json:"colorcode"`
	TableCache    string `gorm:"type:text" json:"-"`
}

// ItemDescription renders the summary for feeds and listings.
func (r *Report) ItemDescription() string {
	if r.Summary == "" {
		return "no significant changes"
	}

	return r.Summary
}

// APIKey is a bearer token for the ingest endpoints, stored hashed.
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"uniqueIndex;not null" json:"name"`
	KeyHash    string     `gorm:"not null" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
