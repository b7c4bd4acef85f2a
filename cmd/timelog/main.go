package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/glamour"
	"github.com/hylla/timelog/internal/adapters/jira"
	"github.com/hylla/timelog/internal/adapters/server"
	"github.com/hylla/timelog/internal/adapters/server/common"
	"github.com/hylla/timelog/internal/adapters/server/httpapi"
	"github.com/hylla/timelog/internal/adapters/storage/jirasql"
	"github.com/hylla/timelog/internal/adapters/storage/postgres"
	"github.com/hylla/timelog/internal/adapters/storage/sqlite"
	"github.com/hylla/timelog/internal/app"
	"github.com/hylla/timelog/internal/config"
	"github.com/hylla/timelog/internal/platform"
	"github.com/hylla/timelog/internal/tui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var version = "dev"

// program is the subset of tea.Program the browse command drives.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, newRootCommand(os.Stdout, os.Stderr), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// queryFlags holds the principal and window flags shared by query commands.
type queryFlags struct {
	start  string
	end    string
	user   string
	group  string
	caller string
	fields []string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.start, "start", "", "first day of the window (yyyy-MM-dd)")
	cmd.Flags().StringVar(&q.end, "end", "", "last day of the window (yyyy-MM-dd); optional for worklogs and browse")
	cmd.Flags().StringVar(&q.user, "user", "", "user name whose worklogs are queried")
	cmd.Flags().StringVar(&q.group, "group", "", "group whose members' worklogs are queried")
	cmd.Flags().StringVar(&q.caller, "as", "", "caller identity used for permission checks")
	cmd.Flags().StringSliceVar(&q.fields, "fields", nil, "extra fields to include")
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{appName: platform.DefaultAppName, devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("TIMELOG_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("TIMELOG_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "timelog",
		Short:         "Query Jira worklogs over REST, MCP, or the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newServeCommand(opts, stderr),
		newPathsCommand(opts, stdout),
		newWorklogsCommand(opts, stdout, stderr),
		newByIssuesCommand(opts, stdout, stderr),
		newBrowseCommand(opts, stderr),
		newSeedCommand(opts, stdout, stderr),
	)
	return root
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the MCP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			cfg := rt.cfg.Server
			if v := strings.TrimSpace(httpBind); v != "" {
				cfg.HTTPBind = v
			}
			if v := strings.TrimSpace(apiEndpoint); v != "" {
				cfg.APIEndpoint = v
			}
			if v := strings.TrimSpace(mcpEndpoint); v != "" {
				cfg.MCPEndpoint = v
			}
			rt.logger.Info("command flow start", "command", "serve")
			err = server.Run(cmd.Context(), server.Config{
				HTTPBind:      cfg.HTTPBind,
				APIEndpoint:   cfg.APIEndpoint,
				MCPEndpoint:   cfg.MCPEndpoint,
				ServerName:    opts.appName,
				ServerVersion: version,
				Identity: httpapi.IdentityConfig{
					Mode:          rt.cfg.Auth.Mode,
					UserHeader:    rt.cfg.Auth.UserHeader,
					AnonymousUser: rt.cfg.Auth.AnonymousUser,
					JWTSecret:     rt.cfg.Auth.JWTSecret,
				},
			}, server.Dependencies{
				Queries: common.NewAppServiceAdapter(rt.svc),
				Logger:  rt.logger,
				Ready:   rt.store.Ping,
			})
			if err != nil {
				rt.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run server: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "listen address (overrides server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST API mount path")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path")
	return cmd
}

func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		RunE: func(*cobra.Command, []string) error {
			paths, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", configPathFor(opts, paths))
			_, _ = fmt.Fprintf(stdout, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newWorklogsCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		q       queryFlags
		project string
		updated bool
	)
	cmd := &cobra.Command{
		Use:   "worklogs",
		Short: "List worklogs started (or updated) inside a date window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			in := app.FindWorklogsInput{
				Caller:    q.caller,
				StartDate: q.start,
				EndDate:   q.end,
				User:      q.user,
				Group:     q.group,
				Project:   project,
				Fields:    q.fields,
			}
			find := rt.svc.FindWorklogs
			if updated {
				find = rt.svc.FindUpdatedWorklogs
			}
			records, err := find(cmd.Context(), in)
			if err != nil {
				return err
			}
			return writeJSON(stdout, records)
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().BoolVar(&updated, "updated", false, "filter by last update instead of start date")
	return cmd
}

func newByIssuesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		q          queryFlags
		jql        string
		startAt    int
		maxResults int
		format     string
	)
	cmd := &cobra.Command{
		Use:   "by-issues",
		Short: "Sum time spent per issue for a JQL search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "markdown" {
				return fmt.Errorf("invalid --format %q: want json or markdown", format)
			}
			rt, err := bootstrap(cmd.Context(), opts, stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			if !cmd.Flags().Changed("max-results") {
				maxResults = rt.svc.DefaultPageSize()
			}
			page, err := rt.svc.FindWorklogsByIssues(cmd.Context(), app.FindWorklogsByIssuesInput{
				Caller:     q.caller,
				StartDate:  q.start,
				EndDate:    q.end,
				User:       q.user,
				Group:      q.group,
				JQL:        jql,
				StartAt:    startAt,
				MaxResults: maxResults,
				Fields:     q.fields,
			})
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(stdout, page)
			}
			rendered, err := renderMarkdown(issuePageMarkdown(page), markdownStyle(stdout))
			if err != nil {
				return err
			}
			_, err = io.WriteString(stdout, rendered)
			return err
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&jql, "jql", "", "issue search query")
	cmd.Flags().IntVar(&startAt, "start-at", 0, "index of the first issue to return")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "page size (defaults to query.default_max_results)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or markdown")
	return cmd
}

func newBrowseCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var (
		q       queryFlags
		project string
		updated bool
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse worklogs interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			// Keep the alternate screen clean while the browser runs.
			rt.logger.SetConsoleEnabled(false)
			rt.logger.Info("starting tui program loop")
			m := tui.NewModel(rt.svc, tui.WithQuery(tui.Query{
				Caller:    q.caller,
				StartDate: q.start,
				EndDate:   q.end,
				User:      q.user,
				Group:     q.group,
				Project:   project,
				Updated:   updated,
			}))
			if _, err := programFactory(m).Run(); err != nil {
				rt.logger.Error("tui program terminated with error", "err", err)
				return fmt.Errorf("run tui program: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "browse")
			return nil
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().BoolVar(&updated, "updated", false, "start in updated-mode")
	return cmd
}

func newSeedCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the reference dataset into the sqlite database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			repo, ok := rt.store.(*sqlite.Repository)
			if !ok {
				return fmt.Errorf("seed requires database.driver = %q", config.DriverSQLite)
			}
			if err := repo.SeedReferenceData(cmd.Context()); err != nil {
				rt.logger.Error("seed failed", "db_path", rt.cfg.Database.Path, "err", err)
				return fmt.Errorf("seed reference data: %w", err)
			}
			rt.logger.Info("reference data seeded", "db_path", rt.cfg.Database.Path)
			_, _ = fmt.Fprintf(stdout, "seeded %s (user %s)\n", rt.cfg.Database.Path, sqlite.ReferenceUser)
			return nil
		},
	}
}

// store is the storage surface every driver provides.
type store interface {
	app.WorklogStore
	app.Directory
	app.Authorizer
	app.IssueSearcher
	Ping(context.Context) error
	Close() error
}

// runtime holds the wired dependencies of one command run.
type runtime struct {
	cfg    config.Config
	paths  platform.Paths
	logger *runtimeLogger
	store  store
	svc    *app.Service
}

func (rt *runtime) close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("storage close failed", "err", err)
		}
	}
	if err := rt.logger.Close(); err != nil && rt.logger.shouldLogToSink(rt.logger.consoleSink) {
		rt.logger.Warn("close runtime log sink failed", "err", err)
	}
}

// bootstrap resolves paths and config, opens storage, and builds the query service.
func bootstrap(ctx context.Context, opts *rootOptions, stderr io.Writer) (*runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	configPath := configPathFor(opts, paths)
	if err := config.EnsureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env"); err != nil {
		return nil, err
	}

	defaults := config.Default(paths.DBPath)
	cfg, err := config.Load(configPath, defaults)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if v := strings.TrimSpace(opts.dbPath); v != "" {
		cfg.Database.Path = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, paths.LogDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir)
	logger.Info("configuration loaded", "config_path", configPath, "driver", cfg.Database.Driver, "search", cfg.Search.Backend)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	rt := &runtime{cfg: cfg, paths: paths, logger: logger}
	rt.store, err = openStore(ctx, cfg.Database, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		rt.close()
		return nil, err
	}
	deps := app.Collaborators{
		Worklogs:   rt.store,
		Directory:  rt.store,
		Authorizer: rt.store,
		Searcher:   rt.store,
		Fields:     jirasql.NewFieldRenderer(loc),
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Search.Backend), config.SearchBackendJira) {
		client, err := newJiraClient(cfg, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		deps.Searcher = client
		deps.Fields = client
		logger.Info("jira search backend enabled", "base_url", cfg.Jira.BaseURL)
	}
	rt.svc = app.NewService(deps, time.Now, app.ServiceConfig{
		Location:          loc,
		BaseURL:           cfg.Server.BaseURL,
		DefaultMaxResults: cfg.Query.DefaultMaxResults,
	})
	return rt, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *runtimeLogger) (store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.DriverPostgres:
		logger.Info("opening postgres store")
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			logger.Error("postgres open failed", "err", err)
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, nil
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Path)
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Path, "err", err)
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		return repo, nil
	}
}

func newJiraClient(cfg config.Config, logger *runtimeLogger) (*jira.Client, error) {
	timeout, err := cfg.JiraTimeout()
	if err != nil {
		return nil, err
	}
	client, err := jira.New(jira.Config{
		BaseURL:     cfg.Jira.BaseURL,
		Token:       cfg.Jira.Token,
		Username:    cfg.Jira.Username,
		Password:    cfg.Jira.Password,
		Timeout:     timeout,
		Concurrency: cfg.Jira.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure jira client: %w", err)
	}
	return client, nil
}

func resolvePaths(opts *rootOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
}

// configPathFor picks --config, then TIMELOG_CONFIG, then the platform default.
func configPathFor(opts *rootOptions, paths platform.Paths) string {
	if v := strings.TrimSpace(opts.configPath); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("TIMELOG_CONFIG")); v != "" {
		return v
	}
	return paths.ConfigPath
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// issuePageMarkdown renders one aggregate page as a markdown table.
func issuePageMarkdown(page app.IssueSearchPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Time spent by issue\n\nIssues %d-%d of %d\n\n", min(page.StartAt+1, page.Total), page.StartAt+len(page.Issues), page.Total)
	if len(page.Issues) == 0 {
		b.WriteString("_No issues on this page._\n")
		return b.String()
	}
	b.WriteString("| Issue | Summary | Time spent |\n|---|---|---:|\n")
	var total int64
	for _, issue := range page.Issues {
		summary, _ := issue.Fields["summary"].(string)
		if summary == "" {
			summary = issue.Issue().Summary
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", issue.Key, escapeTableCell(summary), formatSeconds(issue.Timespent))
		total += issue.Timespent
	}
	fmt.Fprintf(&b, "| **Total** | | **%s** |\n", formatSeconds(total))
	return b.String()
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "|", `\|`)
}

func formatSeconds(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours == 0 {
		return strconv.FormatInt(minutes, 10) + "m"
	}
	return fmt.Sprintf("%dh %02dm", hours, minutes)
}

// markdownStyle picks a styled theme for terminals and plain text for pipes.
func markdownStyle(w io.Writer) string {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "dark"
	}
	return "notty"
}

func renderMarkdown(markdown, style string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("configure markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
