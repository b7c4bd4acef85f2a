// Package jira adapts a remote Jira Data Center instance into the issue search
// and field rendering collaborators.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/timelog/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by New.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	DefaultPageSize    = 100
	DefaultCacheTTL    = 30 * time.Second
)

// searchFields lists the issue fields requested on every search page.
const searchFields = "project,summary,status,priority,assignee,reporter,created,updated"

// ErrUnauthorized reports rejected credentials.
var ErrUnauthorized = errors.New("jira authentication failed")

// Config holds connection settings for one Jira instance.
type Config struct {
	BaseURL     string
	Token       string
	Username    string
	Password    string
	Timeout     time.Duration
	Concurrency int
	PageSize    int
	CacheTTL    time.Duration
	HTTPClient  *http.Client
	Logger      Logger
}

// Logger receives per-page debug events.
type Logger interface {
	Debug(msg any, keyvals ...any)
}

// Client implements issue search and field rendering against the Jira REST API v2.
// Requests run as the configured account, not as the query caller.
type Client struct {
	cfg    Config
	http   *http.Client
	logger Logger
	now    func() time.Time

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// New validates cfg and constructs a client.
func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("jira base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse jira base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		now:    time.Now,
		cache:  map[string]cacheEntry{},
	}, nil
}

// searchPage is one /rest/api/2/search response.
type searchPage struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []issueBean `json:"issues"`
}

type issueBean struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Project struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	} `json:"project"`
	Summary  string  `json:"summary"`
	Status   *named  `json:"status"`
	Priority *named  `json:"priority"`
	Assignee *person `json:"assignee"`
	Reporter *person `json:"reporter"`
	Created  string  `json:"created"`
	Updated  string  `json:"updated"`
}

type named struct {
	Name string `json:"name"`
}

type person struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type errorCollection struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

type fieldBean struct {
	ID        string `json:"id"`
	Navigable bool   `json:"navigable"`
}

// SearchIssues runs jql and returns every matching issue in Jira's order.
// Pages after the first are fetched concurrently.
func (c *Client) SearchIssues(ctx context.Context, _ string, jql string) ([]domain.Issue, error) {
	first, err := c.searchPage(ctx, jql, 0)
	if err != nil {
		return nil, err
	}
	pageSize := first.MaxResults
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}
	pages := []searchPage{first}
	if len(first.Issues) >= pageSize && len(first.Issues) < first.Total {
		var starts []int
		for start := len(first.Issues); start < first.Total; start += pageSize {
			starts = append(starts, start)
		}
		rest := make([]searchPage, len(starts))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for i, start := range starts {
			g.Go(func() error {
				page, err := c.searchPage(gctx, jql, start)
				if err != nil {
					return err
				}
				rest[i] = page
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		pages = append(pages, rest...)
	}

	out := make([]domain.Issue, 0, first.Total)
	seen := map[int64]struct{}{}
	for _, page := range pages {
		for _, bean := range page.Issues {
			issue, err := toIssue(bean)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[issue.ID]; dup {
				continue
			}
			seen[issue.ID] = struct{}{}
			out = append(out, issue)
		}
	}
	return out, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) (searchPage, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(c.cfg.PageSize))
	params.Set("fields", searchFields)
	c.logger.Debug("jira search page", "start_at", startAt, "jql", jql)

	var page searchPage
	if err := c.getJSON(ctx, "/rest/api/2/search?"+params.Encode(), &page); err != nil {
		return searchPage{}, err
	}
	return page, nil
}

// NavigableFields lists the navigable field ids known to Jira.
func (c *Client) NavigableFields(ctx context.Context, _ string) ([]string, error) {
	if v, ok := c.cached("fields"); ok {
		return v.([]string), nil
	}
	var beans []fieldBean
	if err := c.getJSON(ctx, "/rest/api/2/field", &beans); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(beans))
	for _, b := range beans {
		if b.Navigable && b.ID != "" {
			out = append(out, b.ID)
		}
	}
	c.store("fields", out)
	return out, nil
}

// RenderField returns the raw Jira JSON value of one field.
// The issue is fetched once and reused for its other fields while cached.
func (c *Client) RenderField(ctx context.Context, _ string, issue domain.Issue, field string) (any, error) {
	key := "issue:" + strconv.FormatInt(issue.ID, 10)
	var fields map[string]json.RawMessage
	if v, ok := c.cached(key); ok {
		fields = v.(map[string]json.RawMessage)
	} else {
		var bean struct {
			Fields map[string]json.RawMessage `json:"fields"`
		}
		path := "/rest/api/2/issue/" + url.PathEscape(strconv.FormatInt(issue.ID, 10)) + "?fields=*navigable"
		if err := c.getJSON(ctx, path, &bean); err != nil {
			return nil, err
		}
		fields = bean.Fields
		c.store(key, fields)
	}
	raw, ok := fields[field]
	if !ok {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode field %s: %w", field, err)
	}
	return value, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (%d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest:
		return decodeErrorCollection(resp.Body)
	case resp.StatusCode == http.StatusTooManyRequests:
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			return fmt.Errorf("jira rate limit exceeded, retry after %s seconds", retry)
		}
		return errors.New("jira rate limit exceeded")
	default:
		return fmt.Errorf("jira returned status %d for %s", resp.StatusCode, strings.SplitN(path, "?", 2)[0])
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode jira response: %w", err)
	}
	return nil
}

// authenticate prefers a personal access token over basic credentials.
func (c *Client) authenticate(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		return
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
}

func decodeErrorCollection(body io.Reader) error {
	var ec errorCollection
	if err := json.NewDecoder(body).Decode(&ec); err != nil {
		return errors.New("jira rejected the request")
	}
	msgs := append([]string(nil), ec.ErrorMessages...)
	for field, msg := range ec.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	if len(msgs) == 0 {
		return errors.New("jira rejected the request")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (c *Client) cached(key string) (any, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.cache, key)
		return nil, false
	}
	return entry.value, true
}

func (c *Client) store(key string, value any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	now := c.now()
	for k, e := range c.cache {
		if now.After(e.expires) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cacheEntry{value: value, expires: now.Add(c.cfg.CacheTTL)}
}

func toIssue(bean issueBean) (domain.Issue, error) {
	id, err := strconv.ParseInt(bean.ID, 10, 64)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("decode issue id %q: %w", bean.ID, err)
	}
	issue := domain.Issue{
		ID:      id,
		Key:     bean.Key,
		Summary: bean.Fields.Summary,
		Created: parseJiraTime(bean.Fields.Created),
		Updated: parseJiraTime(bean.Fields.Updated),
	}
	issue.ProjectID, _ = strconv.ParseInt(bean.Fields.Project.ID, 10, 64)
	if idx := strings.LastIndex(bean.Key, "-"); idx >= 0 {
		issue.Number, _ = strconv.ParseInt(bean.Key[idx+1:], 10, 64)
	}
	if bean.Fields.Status != nil {
		issue.Status = bean.Fields.Status.Name
	}
	if bean.Fields.Priority != nil {
		issue.Priority = bean.Fields.Priority.Name
	}
	if bean.Fields.Assignee != nil {
		issue.Assignee = firstNonEmpty(bean.Fields.Assignee.Key, bean.Fields.Assignee.Name)
	}
	if bean.Fields.Reporter != nil {
		issue.Reporter = firstNonEmpty(bean.Fields.Reporter.Key, bean.Fields.Reporter.Name)
	}
	return issue, nil
}

func parseJiraTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(domain.TimestampLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
