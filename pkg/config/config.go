// Package config loads and validates the artifactoor configuration
// file. Values come from YAML, may be overridden per-field through
// ARTIFACTOOR_* environment variables, and fall back to package
// defaults when left empty.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment variable overrides. A config field
// is addressed by joining the section tags with underscores, e.g.
// ARTIFACTOOR_STORAGE_ACCESS_KEY_ID.
const EnvPrefix = "ARTIFACTOOR"

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultAgentListen is the default agent listen address.
	DefaultAgentListen = ":8900"

	// DefaultAgentMaxConcurrentUploads bounds simultaneous uploads on
	// one agent.
	DefaultAgentMaxConcurrentUploads = 4

	// DefaultJournalPath is the default SQLite journal location.
	DefaultJournalPath = "./artifactoor.db"

	// DefaultPostgresPort is the default PostgreSQL port.
	DefaultPostgresPort = 5432

	// DefaultPostgresSSLMode is the default PostgreSQL SSL mode.
	DefaultPostgresSSLMode = "disable"
)

// Storage backends.
const (
	StorageBackendMinio = "minio"
	StorageBackendS3    = "s3"
	StorageBackendLocal = "local"
)

// DefaultStorageBackend is used when no backend is configured.
const DefaultStorageBackend = StorageBackendMinio

// Journal database drivers.
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Config is the root configuration for artifactoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Upload  UploadConfig  `yaml:"upload,omitempty" mapstructure:"upload"`
	Agent   AgentConfig   `yaml:"agent,omitempty" mapstructure:"agent"`
	Journal JournalConfig `yaml:"journal,omitempty" mapstructure:"journal"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel     string `yaml:"log_level" mapstructure:"log_level"`
	DisplayLabel string `yaml:"display_label,omitempty" mapstructure:"display_label"`
}

// StorageConfig selects and configures the object-storage backend.
type StorageConfig struct {
	Backend         string             `yaml:"backend" mapstructure:"backend"`
	Endpoint        string             `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Region          string             `yaml:"region,omitempty" mapstructure:"region"`
	AccessKeyID     string             `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string             `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool               `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
	Local           LocalStorageConfig `yaml:"local,omitempty" mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem backend: one directory
// per bucket under the base directory.
type LocalStorageConfig struct {
	BaseDir string `yaml:"base_dir,omitempty" mapstructure:"base_dir"`
}

// UploadConfig provides file-level defaults for the upload command;
// command-line flags take precedence over these.
type UploadConfig struct {
	Source       string            `yaml:"source,omitempty" mapstructure:"source"`
	Exclude      string            `yaml:"exclude,omitempty" mapstructure:"exclude"`
	Bucket       string            `yaml:"bucket,omitempty" mapstructure:"bucket"`
	ObjectPrefix string            `yaml:"object_prefix,omitempty" mapstructure:"object_prefix"`
	Workspace    string            `yaml:"workspace,omitempty" mapstructure:"workspace"`
	Agent        AgentClientConfig `yaml:"agent,omitempty" mapstructure:"agent"`
}

// AgentClientConfig points the upload command at a remote agent; when
// URL is empty, uploads execute in-process.
type AgentClientConfig struct {
	URL       string `yaml:"url,omitempty" mapstructure:"url"`
	AuthToken string `yaml:"auth_token,omitempty" mapstructure:"auth_token"`
}

// AgentConfig configures the agent server.
type AgentConfig struct {
	Listen               string          `yaml:"listen" mapstructure:"listen"`
	AuthToken            string          `yaml:"auth_token,omitempty" mapstructure:"auth_token"`
	Workspace            string          `yaml:"workspace,omitempty" mapstructure:"workspace"`
	MaxObjectSize        string          `yaml:"max_object_size,omitempty" mapstructure:"max_object_size"`
	MaxConcurrentUploads int             `yaml:"max_concurrent_uploads,omitempty" mapstructure:"max_concurrent_uploads"`
	CORSOrigins          []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit            RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting on the agent upload
// endpoint.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// JournalConfig configures the optional run journal.
type JournalConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
}

// DatabaseConfig contains journal database connection settings.
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

// Load reads and parses a configuration file from the given path,
// applies environment variable overrides, then fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnvOverrides overlays ARTIFACTOOR_* environment variables onto
// the configuration. Variable names are derived from the mapstructure
// tag path of each field, so overrides survive struct reshuffles.
func (c *Config) applyEnvOverrides() error {
	overrides := make(map[string]any)
	collectEnvOverrides(reflect.TypeOf(*c), EnvPrefix, overrides)

	if len(overrides) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("building env override decoder: %w", err)
	}

	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("applying env overrides: %w", err)
	}

	return nil
}

// collectEnvOverrides walks the config struct type and looks up the
// environment variable for every leaf field, building the nested value
// map the decoder consumes.
func collectEnvOverrides(t reflect.Type, prefix string, out map[string]any) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		name := strings.SplitN(tag, ",", 2)[0]
		envName := prefix + "_" + strings.ToUpper(name)

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct {
			sub := make(map[string]any)
			collectEnvOverrides(ft, envName, sub)

			if len(sub) > 0 {
				out[name] = sub
			}

			continue
		}

		value, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		if ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for j := range parts {
				parts[j] = strings.TrimSpace(parts[j])
			}

			out[name] = parts

			continue
		}

		out[name] = value
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}

	if c.Agent.Listen == "" {
		c.Agent.Listen = DefaultAgentListen
	}

	if c.Agent.MaxConcurrentUploads <= 0 {
		c.Agent.MaxConcurrentUploads = DefaultAgentMaxConcurrentUploads
	}

	if c.Journal.Database.Driver == "" {
		c.Journal.Database.Driver = DatabaseDriverSQLite
	}

	if c.Journal.Database.SQLite.Path == "" {
		c.Journal.Database.SQLite.Path = DefaultJournalPath
	}

	if c.Journal.Database.Postgres.Port == 0 {
		c.Journal.Database.Postgres.Port = DefaultPostgresPort
	}

	if c.Journal.Database.Postgres.SSLMode == "" {
		c.Journal.Database.Postgres.SSLMode = DefaultPostgresSSLMode
	}
}

// Validate checks the storage and journal sections for errors.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendMinio:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for the minio backend")
		}
	case StorageBackendS3:
		// Endpoint optional: empty means AWS proper.
	case StorageBackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Journal.Enabled {
		switch c.Journal.Database.Driver {
		case DatabaseDriverSQLite:
			if c.Journal.Database.SQLite.Path == "" {
				return fmt.Errorf("journal.database.sqlite.path is required")
			}
		case DatabaseDriverPostgres:
			pg := c.Journal.Database.Postgres
			if pg.Host == "" || pg.User == "" || pg.Database == "" {
				return fmt.Errorf("journal.database.postgres requires host, user and database")
			}
		default:
			return fmt.Errorf("unknown journal database driver %q", c.Journal.Database.Driver)
		}
	}

	return nil
}

// ValidateAgent checks the agent section; called only by the agent
// command.
func (c *Config) ValidateAgent() error {
	if c.Agent.Listen == "" {
		return fmt.Errorf("agent.listen is required")
	}

	if c.Agent.Workspace != "" && !filepath.IsAbs(c.Agent.Workspace) {
		return fmt.Errorf("agent.workspace must be an absolute path")
	}

	if c.Agent.MaxConcurrentUploads <= 0 {
		return fmt.Errorf("agent.max_concurrent_uploads must be positive")
	}

	if c.Agent.RateLimit.Enabled && c.Agent.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("agent.rate_limit.requests_per_minute must be positive")
	}

	return nil
}
