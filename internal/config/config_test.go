package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/timelog.db")
	if cfg.Database.Path != "/tmp/timelog.db" || cfg.Database.Driver != DriverSQLite {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Server.APIEndpoint != "/rest/jttp-rest/1" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected endpoints %+v", cfg.Server)
	}
	if cfg.Query.DefaultMaxResults != 25 {
		t.Fatalf("default_max_results = %d, want 25", cfg.Query.DefaultMaxResults)
	}
	if cfg.Search.Backend != SearchBackendDB || cfg.Auth.Mode != "none" {
		t.Fatalf("unexpected search/auth defaults %+v %+v", cfg.Search, cfg.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(defaults) error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/timelog.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
driver = "postgres"
dsn = "postgres://jira@localhost/jira"

[server]
http_bind = "0.0.0.0:9090"
base_url = "https://jira.example.com"

[query]
timezone = "Europe/Budapest"
default_max_results = 50

[auth]
mode = "jwt"
jwt_secret = "s3cret"

[search]
backend = "jira"

[jira]
base_url = "https://jira.example.com"
timeout = "5s"
concurrency = 8

[logging]
level = "debug"

[logging.dev_file]
enabled = true
max_size_mb = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN != "postgres://jira@localhost/jira" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9090" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Query.DefaultMaxResults != 50 || cfg.Auth.JWTSecret != "s3cret" || cfg.Jira.Concurrency != 8 {
		t.Fatalf("unexpected overrides %+v %+v %+v", cfg.Query, cfg.Auth, cfg.Jira)
	}
	if !cfg.Logging.DevFile.Enabled || cfg.Logging.DevFile.MaxSizeMB != 2 || cfg.Logging.DevFile.MaxBackups != 3 {
		t.Fatalf("unexpected dev file config %+v", cfg.Logging.DevFile)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Budapest" {
		t.Fatalf("Location() = %v, %v", loc, err)
	}
	timeout, err := cfg.JiraTimeout()
	if err != nil || timeout != 5*time.Second {
		t.Fatalf("JiraTimeout() = %v, %v", timeout, err)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = " " }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }},
		{name: "bad timezone", mutate: func(c *Config) { c.Query.Timezone = "Mars/Olympus" }},
		{name: "negative page size", mutate: func(c *Config) { c.Query.DefaultMaxResults = -1 }},
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "kerberos" }},
		{name: "jwt without secret", mutate: func(c *Config) { c.Auth.Mode = "jwt" }},
		{name: "jira backend without url", mutate: func(c *Config) { c.Search.Backend = SearchBackendJira }},
		{name: "unknown backend", mutate: func(c *Config) { c.Search.Backend = "lucene" }},
		{name: "bad jira timeout", mutate: func(c *Config) { c.Jira.Timeout = "soon" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("/tmp/timelog.db")
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
		})
	}
}

func TestLoadRejectsInvalidAuthMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[auth]\nmode = \"weird\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path, Default("/tmp/default.db")); err == nil {
		t.Fatal("expected error for invalid auth mode")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDBPath:    "/env/timelog.db",
		EnvDBDSN:     "postgres://env",
		EnvJiraToken: "pat-123",
		EnvJWTSecret: " shh ",
	}
	cfg := Default("/tmp/timelog.db").ApplyEnv(func(key string) string { return env[key] })
	if cfg.Database.Path != "/env/timelog.db" || cfg.Database.DSN != "postgres://env" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Jira.Token != "pat-123" || cfg.Auth.JWTSecret != "shh" {
		t.Fatalf("secrets = %q %q", cfg.Jira.Token, cfg.Auth.JWTSecret)
	}

	untouched := Default("/tmp/timelog.db").ApplyEnv(func(string) string { return "" })
	if untouched.Database.Path != "/tmp/timelog.db" {
		t.Fatalf("empty env should not override, got %q", untouched.Database.Path)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("TIMELOG_TEST_DOTENV=from-file\nTIMELOG_TEST_PRESET=from-file\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("TIMELOG_TEST_PRESET", "from-env")
	t.Setenv("TIMELOG_TEST_DOTENV", "")
	if err := os.Unsetenv("TIMELOG_TEST_DOTENV"); err != nil {
		t.Fatalf("Unsetenv() error = %v", err)
	}

	if err := LoadDotEnv("", filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("TIMELOG_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("TIMELOG_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("TIMELOG_TEST_PRESET"); got != "from-env" {
		t.Fatalf("TIMELOG_TEST_PRESET = %q, want from-env", got)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
