package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/perfwatch/perfwatch/pkg/config"
	"github.com/perfwatch/perfwatch/pkg/report"
)

// Store provides persistence for measurement data and derived reports.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Seeding from config.
	SeedProjects(ctx context.Context, projects []config.ProjectConfig) error
	SeedAPIKeys(ctx context.Context, keys []config.APIKeyConfig) error

	// Entity lookups and get-or-create.
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	GetOrCreateProject(ctx context.Context, name string) (*Project, error)
	GetOrCreateBranch(ctx context.Context, name string, projectID uint) (*Branch, error)
	GetOrCreateBenchmark(ctx context.Context, bench *Benchmark) (*Benchmark, bool, error)
	GetOrCreateExecutable(ctx context.Context, name string, projectID uint) (*Executable, error)
	GetExecutableByID(ctx context.Context, id uint) (*Executable, error)
	GetEnvironmentByName(ctx context.Context, name string) (*Environment, error)
	CreateEnvironment(ctx context.Context, env *Environment) error
	GetRevision(ctx context.Context, commitID string, branchID uint) (*Revision, error)
	GetRevisionByID(ctx context.Context, id uint) (*Revision, error)
	CreateRevision(ctx context.Context, rev *Revision) error
	FindRevisionByCommit(ctx context.Context, commitID string) (*Revision, error)
	LatestRevisions(ctx context.Context, branchID uint, limit int) ([]Revision, error)

	// Results.
	UpsertResult(ctx context.Context, result *Result) error
	CountResults(ctx context.Context, revisionID, executableID, environmentID uint) (int64, error)

	// Reports.
	GetReport(ctx context.Context, revisionID, executableID, environmentID uint) (*Report, error)
	GetOrCreateReport(ctx context.Context, revisionID, executableID, environmentID uint) (*Report, error)
	SaveReport(ctx context.Context, rep *Report) error
	ListReports(ctx context.Context, limit int) ([]Report, error)
	ListProjectReports(ctx context.Context, projectName string) ([]Report, error)

	// API keys.
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	VerifyAPIKey(ctx context.Context, key string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, id uint, t time.Time) error

	// Report materialization (see report.go).
	MaterializeReport(ctx context.Context, rep *Report, cfg report.Config) error
	ChangesTable(ctx context.Context, rep *Report, cfg report.Config, trendDepth int, force bool) (report.Table, error)

	// Read-only result store accessor for the report engine.
	report.Source
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Project{},
		&Branch{},
		&Revision{},
		&Executable{},
		&Benchmark{},
		&Environment{},
		&Result{},
		&Report{},
		&APIKey{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Entity lookups ---

func (s *store) GetProjectByName(
	ctx context.Context, name string,
) (*Project, error) {
	var project Project
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&project).Error; err != nil {
		return nil, fmt.Errorf("getting project by name: %w", err)
	}

	return &project, nil
}

func (s *store) GetOrCreateProject(
	ctx context.Context, name string,
) (*Project, error) {
	project := Project{
		Name:          name,
		RepoType:      RepoNone,
		Track:         true,
		DefaultBranch: config.DefaultBranch,
	}

	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		FirstOrCreate(&project).Error; err != nil {
		return nil, fmt.Errorf("get-or-creating project: %w", err)
	}

	return &project, nil
}

func (s *store) GetOrCreateBranch(
	ctx context.Context, name string, projectID uint,
) (*Branch, error) {
	branch := Branch{Name: name, ProjectID: projectID}

	if err := s.db.WithContext(ctx).
		Where("name = ? AND project_id = ?", name, projectID).
		FirstOrCreate(&branch).Error; err != nil {
		return nil, fmt.Errorf("get-or-creating branch: %w", err)
	}

	return &branch, nil
}

// GetOrCreateBenchmark returns the benchmark with the given name, creating
// it with the passed metadata when missing. The created flag tells the
// caller whether the metadata was adopted.
func (s *store) GetOrCreateBenchmark(
	ctx context.Context, bench *Benchmark,
) (*Benchmark, bool, error) {
	var existing Benchmark

	err := s.db.WithContext(ctx).
		Where("name = ?", bench.Name).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("getting benchmark: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(bench).Error; err != nil {
		// Concurrent creator won the race; fetch what they wrote.
		if fetchErr := s.db.WithContext(ctx).
			Where("name = ?", bench.Name).
			First(&existing).Error; fetchErr == nil {
			return &existing, false, nil
		}

		return nil, false, fmt.Errorf("creating benchmark: %w", err)
	}

	return bench, true, nil
}

func (s *store) GetOrCreateExecutable(
	ctx context.Context, name string, projectID uint,
) (*Executable, error) {
	exe := Executable{Name: name, ProjectID: projectID}

	if err := s.db.WithContext(ctx).
		Where("name = ? AND project_id = ?", name, projectID).
		FirstOrCreate(&exe).Error; err != nil {
		return nil, fmt.Errorf("get-or-creating executable: %w", err)
	}

	return &exe, nil
}

func (s *store) GetExecutableByID(
	ctx context.Context, id uint,
) (*Executable, error) {
	var exe Executable
	if err := s.db.WithContext(ctx).First(&exe, id).Error; err != nil {
		return nil, fmt.Errorf("getting executable by id: %w", err)
	}

	return &exe, nil
}

func (s *store) GetEnvironmentByName(
	ctx context.Context, name string,
) (*Environment, error) {
	var env Environment
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&env).Error; err != nil {
		return nil, fmt.Errorf("getting environment by name: %w", err)
	}

	return &env, nil
}

func (s *store) CreateEnvironment(
	ctx context.Context, env *Environment,
) error {
	if err := s.db.WithContext(ctx).Create(env).Error; err != nil {
		return fmt.Errorf("creating environment: %w", err)
	}

	return nil
}

func (s *store) GetRevision(
	ctx context.Context, commitID string, branchID uint,
) (*Revision, error) {
	var rev Revision
	if err := s.db.WithContext(ctx).
		Where("commit_id = ? AND branch_id = ?", commitID, branchID).
		First(&rev).Error; err != nil {
		return nil, fmt.Errorf("getting revision: %w", err)
	}

	return &rev, nil
}

func (s *store) GetRevisionByID(
	ctx context.Context, id uint,
) (*Revision, error) {
	var rev Revision
	if err := s.db.WithContext(ctx).First(&rev, id).Error; err != nil {
		return nil, fmt.Errorf("getting revision by id: %w", err)
	}

	return &rev, nil
}

func (s *store) CreateRevision(ctx context.Context, rev *Revision) error {
	if err := s.db.WithContext(ctx).Create(rev).Error; err != nil {
		return fmt.Errorf("creating revision: %w", err)
	}

	return nil
}

func (s *store) FindRevisionByCommit(
	ctx context.Context, commitID string,
) (*Revision, error) {
	var rev Revision
	if err := s.db.WithContext(ctx).
		Where("commit_id = ?", commitID).
		Order("date DESC").
		First(&rev).Error; err != nil {
		return nil, fmt.Errorf("finding revision by commit: %w", err)
	}

	return &rev, nil
}

// LatestRevisions returns the newest revisions on a branch by date.
func (s *store) LatestRevisions(
	ctx context.Context, branchID uint, limit int,
) ([]Revision, error) {
	var revs []Revision
	if err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("date DESC").
		Limit(limit).
		Find(&revs).Error; err != nil {
		return nil, fmt.Errorf("listing latest revisions: %w", err)
	}

	return revs, nil
}

// --- Results ---

// UpsertResult inserts a result, or overwrites the measurement fields when
// the (revision, executable, benchmark, environment) key already exists.
func (s *store) UpsertResult(ctx context.Context, result *Result) error {
	assign := map[string]any{
		"value":   result.Value,
		"std_dev": result.StdDev,
		"val_min": result.ValMin,
		"val_max": result.ValMax,
		"q1":      result.Q1,
		"q3":      result.Q3,
		"date":    result.Date,
	}

	err := s.db.WithContext(ctx).
		Where(
			"revision_id = ? AND executable_id = ? AND benchmark_id = ? AND environment_id = ?",
			result.RevisionID,
			result.ExecutableID,
			result.BenchmarkID,
			result.EnvironmentID,
		).
		Assign(assign).
		FirstOrCreate(result).Error
	if err != nil {
		return fmt.Errorf("upserting result: %w", err)
	}

	return nil
}

func (s *store) CountResults(
	ctx context.Context, revisionID, executableID, environmentID uint,
) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Result{}).
		Where("revision_id = ? AND executable_id = ? AND environment_id = ?",
			revisionID, executableID, environmentID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}

	return count, nil
}

// --- Reports ---

func (s *store) GetReport(
	ctx context.Context, revisionID, executableID, environmentID uint,
) (*Report, error) {
	var rep Report
	if err := s.db.WithContext(ctx).
		Where("revision_id = ? AND executable_id = ? AND environment_id = ?",
			revisionID, executableID, environmentID).
		First(&rep).Error; err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}

	return &rep, nil
}

// GetOrCreateReport returns the report row for the key, creating it when
// missing. A uniqueness violation from a concurrent creator is not an
// error; the row the other writer created is fetched and returned.
func (s *store) GetOrCreateReport(
	ctx context.Context, revisionID, executableID, environmentID uint,
) (*Report, error) {
	rep := Report{
		RevisionID:    revisionID,
		ExecutableID:  executableID,
		EnvironmentID: environmentID,
		ColorCode:     string(report.ColorNone),
	}

	err := s.db.WithContext(ctx).
		Where("revision_id = ? AND executable_id = ? AND environment_id = ?",
			revisionID, executableID, environmentID).
		FirstOrCreate(&rep).Error
	if err != nil {
		if existing, fetchErr := s.GetReport(
			ctx, revisionID, executableID, environmentID,
		); fetchErr == nil {
			return existing, nil
		}

		return nil, fmt.Errorf("get-or-creating report: %w", err)
	}

	return &rep, nil
}

func (s *store) SaveReport(ctx context.Context, rep *Report) error {
	if err := s.db.WithContext(ctx).Save(rep).Error; err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	return nil
}

// ListReports returns the most recently revised reports first.
func (s *store) ListReports(
	ctx context.Context, limit int,
) ([]Report, error) {
	var reports []Report

	q := s.db.WithContext(ctx).Order("revision_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return reports, nil
}

// ListProjectReports returns every report belonging to one project.
func (s *store) ListProjectReports(
	ctx context.Context, projectName string,
) ([]Report, error) {
	var reports []Report

	err := s.db.WithContext(ctx).
		Joins("JOIN revisions ON revisions.id = reports.revision_id").
		Joins("JOIN branches ON branches.id = revisions.branch_id").
		Joins("JOIN projects ON projects.id = branches.project_id").
		Where("projects.name = ?", projectName).
		Order("reports.revision_id DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("listing project reports: %w", err)
	}

	return reports, nil
}

// --- API keys ---

func (s *store) GetAPIKeyByHash(
	ctx context.Context, hash string,
) (*APIKey, error) {
	var key APIKey
	if err := s.db.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error; err != nil {
		return nil, fmt.Errorf("getting api key: %w", err)
	}

	return &key, nil
}

// VerifyAPIKey checks a plaintext key against the stored bcrypt hashes.
func (s *store) VerifyAPIKey(
	ctx context.Context, key string,
) (*APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	for i := range keys {
		if bcrypt.CompareHashAndPassword(
			[]byte(keys[i].KeyHash), []byte(key),
		) == nil {
			return &keys[i], nil
		}
	}

	return nil, gorm.ErrRecordNotFound
}

func (s *store) TouchAPIKey(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", t).Error; err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}

	return nil
}

// --- Seeding ---

// SeedProjects upserts config-declared projects. Repository settings from
// config always win so that edits to the config file take effect on
// restart.
func (s *store) SeedProjects(
	ctx context.Context, projects []config.ProjectConfig,
) error {
	for _, p := range projects {
		project := Project{Name: p.Name}

		assign := map[string]any{
			"repo_type":           p.RepoType,
			"repo_path":           p.RepoPath,
			"commit_browsing_url": p.CommitBrowsingURL,
			"track":               p.Tracked(),
			"default_branch":      p.DefaultBranch,
		}

		if err := s.db.WithContext(ctx).
			Where("name = ?", p.Name).
			Assign(assign).
			FirstOrCreate(&project).Error; err != nil {
			return fmt.Errorf("seeding project %q: %w", p.Name, err)
		}
	}

	return nil
}

// SeedAPIKeys upserts config-declared API keys, hashing the plaintext.
func (s *store) SeedAPIKeys(
	ctx context.Context, keys []config.APIKeyConfig,
) error {
	for _, k := range keys {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(k.Key), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing api key %q: %w", k.Name, err)
		}

		key := APIKey{Name: k.Name}

		if err := s.db.WithContext(ctx).
			Where("name = ?", k.Name).
			Assign(map[string]any{"key_hash": string(hash)}).
			FirstOrCreate(&key).Error; err != nil {
			return fmt.Errorf("seeding api key %q: %w", k.Name, err)
		}
	}

	return nil
}
