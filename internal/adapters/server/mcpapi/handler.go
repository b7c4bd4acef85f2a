// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/timelog/internal/adapters/server/common"
	"github.com/hylla/timelog/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the worklog query tools.
func NewHandler(cfg Config, queries common.WorklogQueryService) (*Handler, error) {
	if queries == nil {
		return nil, fmt.Errorf("worklog query service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerRangeTools(mcpSrv, queries)
	registerByIssuesTool(mcpSrv, queries)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "timelog"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// principalOptions declares the date and principal arguments shared by every tool.
func principalOptions(endRequired bool) []mcp.ToolOption {
	endOpts := []mcp.PropertyOption{mcp.Description("Inclusive end date, YYYY-MM-DD (defaults to today)")}
	if endRequired {
		endOpts = []mcp.PropertyOption{mcp.Required(), mcp.Description("Inclusive end date, YYYY-MM-DD")}
	}
	return []mcp.ToolOption{
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Inclusive start date, YYYY-MM-DD")),
		mcp.WithString("end_date", endOpts...),
		mcp.WithString("user", mcp.Description("Worklog author login name (exclusive with group)")),
		mcp.WithString("group", mcp.Description("Group whose members authored the worklogs (exclusive with user)")),
		mcp.WithString("fields", mcp.Description("Comma-separated optional fields")),
	}
}

// registerRangeTools registers the start-date and updated-date range tools.
func registerRangeTools(srv *mcpserver.MCPServer, queries common.WorklogQueryService) {
	tools := []struct {
		name        string
		description string
		find        func(context.Context, common.FindWorklogsRequest) ([]app.WorklogRecord, error)
	}{
		{
			name:        "timelog.find_worklogs",
			description: "List worklogs whose start date falls in the window.",
			find:        queries.FindWorklogs,
		},
		{
			name:        "timelog.find_updated_worklogs",
			description: "List worklogs last updated in the window.",
			find:        queries.FindUpdatedWorklogs,
		},
	}
	for _, tool := range tools {
		opts := append([]mcp.ToolOption{mcp.WithDescription(tool.description)}, principalOptions(false)...)
		opts = append(opts, mcp.WithString("project", mcp.Description("Project key (defaults to every browsable project)")))
		find := tool.find
		name := tool.name
		srv.AddTool(
			mcp.NewTool(name, opts...),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				records, err := find(ctx, common.FindWorklogsRequest{
					Caller:    common.CallerFromContext(ctx),
					StartDate: req.GetString("start_date", ""),
					EndDate:   req.GetString("end_date", ""),
					User:      req.GetString("user", ""),
					Group:     req.GetString("group", ""),
					Project:   req.GetString("project", ""),
					Fields:    fieldsArgument(req),
				})
				if err != nil {
					return toolResultFromError(err), nil
				}
				result, err := mcp.NewToolResultJSON(map[string]any{"worklogs": records})
				if err != nil {
					return nil, fmt.Errorf("encode %s result: %w", name, err)
				}
				return result, nil
			},
		)
	}
}

// registerByIssuesTool registers the per-issue aggregate tool.
func registerByIssuesTool(srv *mcpserver.MCPServer, queries common.WorklogQueryService) {
	opts := append([]mcp.ToolOption{mcp.WithDescription("Sum logged time per issue for issues matching a JQL query.")}, principalOptions(true)...)
	opts = append(opts,
		mcp.WithString("jql", mcp.Description("Issue filter (empty matches every browsable issue)")),
		mcp.WithNumber("start_at", mcp.Description("Zero-based offset of the first issue")),
		mcp.WithNumber("max_results", mcp.Description("Page size")),
	)
	srv.AddTool(
		mcp.NewTool("timelog.find_worklogs_by_issues", opts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in := common.FindWorklogsByIssuesRequest{
				Caller:    common.CallerFromContext(ctx),
				StartDate: req.GetString("start_date", ""),
				EndDate:   req.GetString("end_date", ""),
				User:      req.GetString("user", ""),
				Group:     req.GetString("group", ""),
				JQL:       req.GetString("jql", ""),
				Fields:    fieldsArgument(req),
			}
			var err error
			if in.StartAt, in.MaxResults, err = pageBounds(req); err != nil {
				if reqErr := common.CheckByIssuesRequest(in); reqErr != nil {
					err = reqErr
				}
				return toolResultFromError(err), nil
			}
			page, err := queries.FindWorklogsByIssues(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(page)
			if err != nil {
				return nil, fmt.Errorf("encode find_worklogs_by_issues result: %w", err)
			}
			return result, nil
		},
	)
}

// fieldsArgument returns the fields argument as a one-element list, or nil when absent.
func fieldsArgument(req mcp.CallToolRequest) []string {
	fields := strings.TrimSpace(req.GetString("fields", ""))
	if fields == "" {
		return nil
	}
	return []string{fields}
}

// pageBounds reads the optional start_at and max_results arguments.
func pageBounds(req mcp.CallToolRequest) (startAt, maxResults *int, err error) {
	if startAt, err = optionalInt(req, "start_at"); err != nil {
		return nil, nil, err
	}
	if maxResults, err = optionalInt(req, "max_results"); err != nil {
		return nil, nil, err
	}
	return startAt, maxResults, nil
}

// optionalInt reads one optional integral argument sent as a number or numeric string.
func optionalInt(req mcp.CallToolRequest, name string) (*int, error) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return nil, nil
	}
	invalid := common.InvalidRequest(fmt.Sprintf("Cannot parse the '%s' parameter: %v", name, raw))
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, invalid
		}
		n := int(v)
		return &n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, invalid
		}
		return &n, nil
	default:
		return nil, invalid
	}
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	return mcp.NewToolResultError(common.ErrorCode(err) + ": " + common.ErrorMessage(err))
}
