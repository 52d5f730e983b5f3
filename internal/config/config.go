// Package config loads the csync configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "csync"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// AuthorsFile is the default observed-authors file name, next to the config.
	AuthorsFile = "authors.yml"
	// DBFile is the default SQLite file name under XDG_DATA_HOME/csync.
	DBFile = "csync.db"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var (
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the whole configuration file.
type Config struct {
	Scopus    ScopusConfig    `yaml:"scopus" json:"scopus"`
	WordPress WordPressConfig `yaml:"wordpress" json:"wordpress"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// ScopusConfig configures the citation source.
type ScopusConfig struct {
	APIKey    string  `yaml:"api_key" json:"api_key"`
	InstToken string  `yaml:"inst_token,omitempty" json:"inst_token,omitempty"`
	BaseURL   string  `yaml:"base_url,omitempty" json:"base_url"`
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit"` // requests per second
}

// WordPressConfig configures the publisher.
type WordPressConfig struct {
	URL         string  `yaml:"url" json:"url"`
	Username    string  `yaml:"username" json:"username"`
	AppPassword string  `yaml:"app_password" json:"app_password"`
	Status      string  `yaml:"status,omitempty" json:"status"`
	RateLimit   float64 `yaml:"rate_limit,omitempty" json:"rate_limit"`
}

// StorageConfig selects where the ledger and allocator live.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty" json:"driver"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"` // sqlite
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`   // postgres
}

// CacheConfig selects the record cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend,omitempty" json:"backend"`
	TTL           time.Duration `yaml:"ttl,omitempty" json:"ttl"`
	AuthorTTL     time.Duration `yaml:"author_ttl,omitempty" json:"author_ttl"`
	RedisAddr     string        `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
}

// SyncConfig tunes the reconciliation cycle.
type SyncConfig struct {
	AuthorsFile         string        `yaml:"authors_file,omitempty" json:"authors_file"`
	Staleness           time.Duration `yaml:"staleness,omitempty" json:"staleness"`
	// RefreshBatch caps posts refreshed per cycle; negative disables refresh.
	RefreshBatch        int           `yaml:"refresh_batch,omitempty" json:"refresh_batch"`
	LedgerRetries       int           `yaml:"ledger_retries,omitempty" json:"ledger_retries"`
	LedgerRetryInterval time.Duration `yaml:"ledger_retry_interval,omitempty" json:"ledger_retry_interval"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level string `yaml:"level,omitempty" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// DefaultPath returns the config file path.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/csync/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// DefaultDBPath returns the default SQLite path.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/csync/csync.db.
func DefaultDBPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DBFile
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, ConfigDir, DBFile)
}

// Load reads the config at path (DefaultPath if empty), applies environment
// overrides and defaults, and expands ~ in paths. It does not validate.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Sync.AuthorsFile == "" {
		cfg.Sync.AuthorsFile = filepath.Join(filepath.Dir(path), AuthorsFile)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// Parse decodes YAML config data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and connection strings from the environment.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"SCOPUS_API_KEY", &c.Scopus.APIKey},
		{"SCOPUS_INST_TOKEN", &c.Scopus.InstToken},
		{"WP_APP_PASSWORD", &c.WordPress.AppPassword},
		{"CSYNC_DATABASE_DSN", &c.Storage.DSN},
		{"REDIS_PASSWORD", &c.Cache.RedisPassword},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// ApplyDefaults fills unset fields and expands ~ in paths.
func (c *Config) ApplyDefaults() {
	if c.Scopus.BaseURL == "" {
		c.Scopus.BaseURL = "https://api.elsevier.com"
	}
	if c.Scopus.RateLimit == 0 {
		c.Scopus.RateLimit = 8
	}

	if c.WordPress.Status == "" {
		c.WordPress.Status = "publish"
	}
	if c.WordPress.RateLimit == 0 {
		c.WordPress.RateLimit = 5
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = DefaultDBPath()
	}
	c.Storage.Path = ExpandPath(c.Storage.Path)

	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.AuthorTTL == 0 {
		c.Cache.AuthorTTL = time.Hour
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}

	c.Sync.AuthorsFile = ExpandPath(c.Sync.AuthorsFile)
	if c.Sync.Staleness == 0 {
		c.Sync.Staleness = 7 * 24 * time.Hour
	}
	if c.Sync.RefreshBatch == 0 {
		c.Sync.RefreshBatch = 20
	}
	if c.Sync.LedgerRetries == 0 {
		c.Sync.LedgerRetries = 5
	}
	if c.Sync.LedgerRetryInterval == 0 {
		c.Sync.LedgerRetryInterval = 500 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.File = ExpandPath(c.Log.File)
}

// Validate checks everything needed to read from Scopus and the ledger.
func (c *Config) Validate() error {
	var problems []string

	if c.Scopus.APIKey == "" {
		problems = append(problems, "scopus.api_key is required (or set SCOPUS_API_KEY)")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			problems = append(problems, "storage.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			problems = append(problems, "storage.dsn is required for the postgres driver (or set CSYNC_DATABASE_DSN)")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of sqlite, postgres", c.Storage.Driver))
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend))
	}

	if c.Sync.AuthorsFile == "" {
		problems = append(problems, "sync.authors_file is required")
	}
	if c.Sync.Staleness < 0 {
		problems = append(problems, "sync.staleness must not be negative")
	}
	if c.Sync.LedgerRetries < 0 {
		problems = append(problems, "sync.ledger_retries must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ValidatePublisher checks the WordPress section.
func (c *Config) ValidatePublisher() error {
	var problems []string
	if c.WordPress.URL == "" {
		problems = append(problems, "wordpress.url is required")
	}
	if c.WordPress.Username == "" {
		problems = append(problems, "wordpress.username is required")
	}
	if c.WordPress.AppPassword == "" {
		problems = append(problems, "wordpress.app_password is required (or set WP_APP_PASSWORD)")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

const mask = "********"

// Masked returns a copy with secrets replaced, for display.
func (c *Config) Masked() *Config {
	m := *c
	for _, s := range []*string{&m.Scopus.APIKey, &m.Scopus.InstToken, &m.WordPress.AppPassword, &m.Cache.RedisPassword} {
		if *s != "" {
			*s = mask
		}
	}
	if m.Storage.DSN != "" {
		m.Storage.DSN = maskDSN(m.Storage.DSN)
	}
	return &m
}

// maskDSN hides the password in a postgres URL or key=value DSN.
func maskDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if at := strings.LastIndex(dsn, "@"); at > 0 {
			scheme := strings.Index(dsn, "://") + 3
			if colon := strings.Index(dsn[scheme:at], ":"); colon >= 0 {
				return dsn[:scheme+colon+1] + mask + dsn[at:]
			}
		}
		return dsn
	}

	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=" + mask
		}
	}
	return strings.Join(fields, " ")
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
