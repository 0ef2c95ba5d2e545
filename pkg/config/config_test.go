package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatch/perfwatch/pkg/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen: ":9000"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, config.DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.InDelta(t, config.DefaultChangeThreshold, cfg.Thresholds.ChangeThreshold, 1e-9)
	assert.InDelta(t, config.DefaultTrendThreshold, cfg.Thresholds.TrendThreshold, 1e-9)
	assert.Equal(t, config.DefaultTrendDepth, cfg.Thresholds.TrendDepth)
}

func TestLoad_MergeOverrides(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
server:
  listen: ":8000"
database:
  driver: sqlite
  sqlite:
    path: /data/perfwatch.db
thresholds:
  change_threshold: 2.0
`)
	override := writeConfig(t, "override.yaml", `
thresholds:
  change_threshold: 4.5
`)

	cfg, err := config.Load(base, override)
	require.NoError(t, err)

	// The override only touches the threshold; sibling sections survive.
	assert.InDelta(t, 4.5, cfg.Thresholds.ChangeThreshold, 1e-9)
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, "/data/perfwatch.db", cfg.Database.SQLite.Path)
}

func TestLoad_Projects(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
projects:
  - name: interpreter
    repo_type: github
    repo_path: https://github.com/example/interpreter
  - name: queued
    track: false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Projects, 2)

	assert.True(t, cfg.Projects[0].Tracked())
	assert.Equal(t, "main", cfg.Projects[0].DefaultBranch)

	assert.False(t, cfg.Projects[1].Tracked())
	assert.Equal(t, "none", cfg.Projects[1].RepoType)
}

func TestLoad_NoFiles(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
		},
		{
			name: "bad driver",
			mutate: func(c *config.Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "negative threshold",
			mutate: func(c *config.Config) {
				c.Thresholds.ChangeThreshold = -1
			},
			wantErr: "change_threshold",
		},
		{
			name: "trend depth too small",
			mutate: func(c *config.Config) {
				c.Thresholds.TrendDepth = 1
			},
			wantErr: "trend_depth",
		},
		{
			name: "duplicate project",
			mutate: func(c *config.Config) {
				c.Projects = []config.ProjectConfig{
					{Name: "dup", RepoType: "none"},
					{Name: "dup", RepoType: "none"},
				}
			},
			wantErr: "duplicate name",
		},
		{
			name: "github project without repo path",
			mutate: func(c *config.Config) {
				c.Projects = []config.ProjectConfig{
					{Name: "p", RepoType: "github"},
				}
			},
			wantErr: "repo_path is required",
		},
		{
			name: "api key without key",
			mutate: func(c *config.Config) {
				c.Auth.APIKeys = []config.APIKeyConfig{{Name: "ci"}}
			},
			wantErr: "key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", "server:\n  listen: \":8000\"\n")

			cfg, err := config.Load(path)
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
