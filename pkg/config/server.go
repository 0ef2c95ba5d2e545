package config

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Ingest  RateLimitTier `yaml:"ingest,omitempty" mapstructure:"ingest"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains authentication settings for the ingest endpoints.
type AuthConfig struct {
	AnonymousRead bool           `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	APIKeys       []APIKeyConfig `yaml:"api_keys,omitempty" mapstructure:"api_keys"`
}

// APIKeyConfig declares a bearer API key from config. Keys are stored
// hashed; the plaintext only lives in the config file.
type APIKeyConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Key  string `yaml:"key" mapstructure:"key"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}
