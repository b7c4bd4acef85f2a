package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Issue search backends.
const (
	SearchBackendDB   = "db"
	SearchBackendJira = "jira"
)

// Environment overrides applied after the TOML file.
const (
	EnvDBPath    = "TIMELOG_DB_PATH"
	EnvDBDSN     = "TIMELOG_DB_DSN"
	EnvJiraToken = "TIMELOG_JIRA_TOKEN"
	EnvJWTSecret = "TIMELOG_JWT_SECRET"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Query    QueryConfig    `toml:"query"`
	Auth     AuthConfig     `toml:"auth"`
	Search   SearchConfig   `toml:"search"`
	Jira     JiraConfig     `toml:"jira"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite | postgres
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	// BaseURL prefixes the self links of aggregate results.
	BaseURL string `toml:"base_url"`
}

type QueryConfig struct {
	Timezone          string `toml:"timezone"`
	DefaultMaxResults int    `toml:"default_max_results"`
}

type AuthConfig struct {
	Mode          string `toml:"mode"` // none | header | jwt
	UserHeader    string `toml:"user_header"`
	AnonymousUser string `toml:"anonymous_user"`
	JWTSecret     string `toml:"jwt_secret"`
}

type SearchConfig struct {
	Backend string `toml:"backend"` // db | jira
}

type JiraConfig struct {
	BaseURL     string `toml:"base_url"`
	Token       string `toml:"token"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Timeout     string `toml:"timeout"`
	Concurrency int    `toml:"concurrency"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/rest/jttp-rest/1",
			MCPEndpoint: "/mcp",
		},
		Query: QueryConfig{
			DefaultMaxResults: 25,
		},
		Auth: AuthConfig{
			Mode:       "none",
			UserHeader: "X-Remote-User",
		},
		Search: SearchConfig{
			Backend: SearchBackendDB,
		},
		Jira: JiraConfig{
			Timeout:     "30s",
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Dir:        ".timelog/log",
				MaxSizeMB:  10,
				MaxBackups: 3,
			},
		},
	}
}

// Load decodes the TOML file at path over defaults, applies TIMELOG_* env
// overrides, and validates the result. A missing file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	cfg = cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads every existing .env file into the process environment.
// Variables that are already set win over file values.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and storage locations from TIMELOG_* variables.
func (c Config) ApplyEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvDBDSN)); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(getenv(EnvJiraToken)); v != "" {
		c.Jira.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvJWTSecret)); v != "" {
		c.Auth.JWTSecret = v
	}
	return c
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Query.DefaultMaxResults < 0 {
		return errors.New("query.default_max_results must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Auth.Mode)) {
	case "", "none", "header":
	case "jwt":
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return errors.New("auth.jwt_secret is required when auth.mode = \"jwt\"")
		}
	default:
		return fmt.Errorf("invalid auth.mode: %q", c.Auth.Mode)
	}

	switch strings.ToLower(strings.TrimSpace(c.Search.Backend)) {
	case "", SearchBackendDB:
	case SearchBackendJira:
		if strings.TrimSpace(c.Jira.BaseURL) == "" {
			return errors.New("jira.base_url is required when search.backend = \"jira\"")
		}
	default:
		return fmt.Errorf("invalid search.backend: %q", c.Search.Backend)
	}
	if _, err := c.JiraTimeout(); err != nil {
		return err
	}
	if c.Jira.Concurrency < 0 {
		return errors.New("jira.concurrency must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.MaxSizeMB < 0 || c.Logging.DevFile.MaxBackups < 0 {
		return errors.New("logging.dev_file sizes must be >= 0")
	}
	return nil
}

// Location resolves query.timezone; empty means the process local zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Query.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid query.timezone %q: %w", name, err)
	}
	return loc, nil
}

// JiraTimeout parses jira.timeout; empty means no client timeout override.
func (c Config) JiraTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Jira.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid jira.timeout: %q", c.Jira.Timeout)
	}
	return d, nil
}

// EnsureConfigDir creates the parent directory of a config file path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
