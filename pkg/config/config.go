package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8000"

	// DefaultSQLitePath is the default SQLite database path.
	DefaultSQLitePath = "./perfwatch.db"

	// DefaultBranch is the branch used for projects that do not name one.
	DefaultBranch = "main"

	// DefaultChangeThreshold is the significance threshold (percent) for
	// revision-to-revision changes.
	DefaultChangeThreshold = 3.0

	// DefaultTrendThreshold is the significance threshold (percent) for
	// moving-window trends.
	DefaultTrendThreshold = 5.0

	// DefaultTrendDepth is the number of previous revisions considered
	// when computing a trend.
	DefaultTrendDepth = 10
)

// Config is the root configuration for perfwatch.
type Config struct {
	Global     GlobalConfig     `yaml:"global" mapstructure:"global"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Auth       AuthConfig       `yaml:"auth,omitempty" mapstructure:"auth"`
	Projects   []ProjectConfig  `yaml:"projects,omitempty" mapstructure:"projects"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ThresholdsConfig tunes the regression-detection engine. Values are
// percentages; a change or trend whose magnitude stays within the
// threshold is not considered significant.
type ThresholdsConfig struct {
	ChangeThreshold float64 `yaml:"change_threshold" mapstructure:"change_threshold"`
	TrendThreshold  float64 `yaml:"trend_threshold" mapstructure:"trend_threshold"`
	TrendDepth      int     `yaml:"trend_depth" mapstructure:"trend_depth"`
}

// ProjectConfig declares a tracked project. Projects are seeded into the
// database at startup so that incoming results can be attached to them.
type ProjectConfig struct {
	Name              string `yaml:"name" mapstructure:"name"`
	RepoType          string `yaml:"repo_type,omitempty" mapstructure:"repo_type"`
	RepoPath          string `yaml:"repo_path,omitempty" mapstructure:"repo_path"`
	CommitBrowsingURL string `yaml:"commit_browsing_url,omitempty" mapstructure:"commit_browsing_url"`
	Track             *bool  `yaml:"track,omitempty" mapstructure:"track"`
	DefaultBranch     string `yaml:"default_branch,omitempty" mapstructure:"default_branch"`
}

// Tracked reports whether change tracking is enabled for the project.
// Tracking defaults to on when the config does not say otherwise.
func (p *ProjectConfig) Tracked() bool {
	return p.Track == nil || *p.Track
}

// Load reads one or more configuration files and merges them in order,
// later files overriding earlier ones. Files are parsed as YAML into
// generic maps and decoded into the Config struct in one pass so that
// partial override files do not zero out unrelated sections.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no config file given")
	}

	merged := map[string]any{}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		merged = mergeMaps(merged, raw)
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building config decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// mergeMaps deep-merges override into base and returns the result.
// Nested maps merge recursively; any other value replaces the base value.
func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))

	for k, v := range base {
		out[k] = v
	}

	for k, v := range override {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = mergeMaps(bm, om)

				continue
			}
		}

		out[k] = v
	}

	return out
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Thresholds.ChangeThreshold == 0 {
		c.Thresholds.ChangeThreshold = DefaultChangeThreshold
	}

	if c.Thresholds.TrendThreshold == 0 {
		c.Thresholds.TrendThreshold = DefaultTrendThreshold
	}

	if c.Thresholds.TrendDepth == 0 {
		c.Thresholds.TrendDepth = DefaultTrendDepth
	}

	for i := range c.Projects {
		if c.Projects[i].RepoType == "" {
			c.Projects[i].RepoType = "none"
		}

		if c.Projects[i].DefaultBranch == "" {
			c.Projects[i].DefaultBranch = DefaultBranch
		}
	}
}

// validRepoTypes is the closed set of supported repository types.
var validRepoTypes = map[string]struct{}{
	"none":   {},
	"github": {},
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Thresholds.ChangeThreshold < 0 {
		return fmt.Errorf("change_threshold must not be negative")
	}

	if c.Thresholds.TrendThreshold < 0 {
		return fmt.Errorf("trend_threshold must not be negative")
	}

	if c.Thresholds.TrendDepth < 2 {
		return fmt.Errorf("trend_depth must be at least 2")
	}

	seen := make(map[string]struct{}, len(c.Projects))

	for i, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}

		if _, exists := seen[p.Name]; exists {
			return fmt.Errorf("project %d: duplicate name %q", i, p.Name)
		}

		seen[p.Name] = struct{}{}

		if _, ok := validRepoTypes[p.RepoType]; !ok {
			return fmt.Errorf("project %q: unknown repo type %q", p.Name, p.RepoType)
		}

		if p.RepoType == "github" && p.RepoPath == "" {
			return fmt.Errorf("project %q: repo_path is required for github projects", p.Name)
		}
	}

	for i, key := range c.Auth.APIKeys {
		if key.Name == "" {
			return fmt.Errorf("api key %d: name is required", i)
		}

		if key.Key == "" {
			return fmt.Errorf("api key %q: key is required", key.Name)
		}
	}

	return nil
}
