// Package registry talks to the remote registry of organizations and persons:
// field discovery, paginated item reads and single-field writes.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/rostersync/pkg/stage"
)

// ErrMissingToken is returned by NewClient without an API token.
var ErrMissingToken = errors.New("registry: missing API token")

// APIError is a non-2xx registry response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token. Never logged.
	Token    string
	Timeout  time.Duration
	PageSize int
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client is a registry REST client. Calls are never retried: registry state
// may have moved between a failed attempt and a retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	pageSize   int
}

// Field is a registry field definition.
type Field struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Type    string         `json:"type"`
	Options []stage.Option `json:"options,omitempty"`
}

// Item is a registry record. Field values are kept raw and decoded on demand.
type Item struct {
	ID     string                     `json:"id"`
	Name   string                     `json:"name"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// NewClient builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("registry: invalid base url %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pageSize:   pageSize,
	}, nil
}

// Fields returns every field definition.
func (c *Client) Fields(ctx context.Context) ([]Field, error) {
	var resp struct {
		Fields []Field `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/fields", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// Items reads every item, following the cursor until it is empty.
func (c *Client) Items(ctx context.Context) ([]Item, error) {
	var all []Item
	cursor := ""
	seen := make(map[string]bool)
	for {
		q := url.Values{"page_size": {strconv.Itoa(c.pageSize)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Items      []Item `json:"items"`
			NextCursor string `json:"next_cursor"`
		}
		if err := c.do(ctx, http.MethodGet, "/items?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" {
			return all, nil
		}
		if seen[page.NextCursor] {
			return nil, fmt.Errorf("registry: pagination cursor %q repeated", page.NextCursor)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}

// SetOption writes one option value into one field of one item.
func (c *Client) SetOption(ctx context.Context, itemID, fieldID, optionID string) error {
	body := map[string]any{
		"fields": map[string]any{
			fieldID: map[string]string{"option_id": optionID},
		},
	}
	return c.do(ctx, http.MethodPatch, "/items/"+url.PathEscape(itemID), body, nil)
}

// Ping checks that the registry answers and accepts the token.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry %s %s: %w", method, trimQuery(path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: trimQuery(path), Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", trimQuery(path), err)
	}
	return nil
}

func trimQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
