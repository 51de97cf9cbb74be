// Package memclient talks to the external memory service over HTTP.
package memclient

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

	"github.com/rcliao/chat-memory/internal/model"
)

const (
	searchPath = "/v1/memories/search/"
	addPath    = "/v1/memories/"
	listPath   = "/v1/memories/"
	healthPath = "/health"
)

// ErrNetwork wraps transport failures reaching the memory service.
var ErrNetwork = errors.New("memory service unreachable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("memory %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Query     string   `json:"query"`
	UserID    string   `json:"user_id"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// AddRequest is the body of an add call.
type AddRequest struct {
	Messages []model.ConversationMessage `json:"messages"`
	UserID   string                      `json:"user_id"`
	Infer    *bool                       `json:"infer,omitempty"`
	Metadata map[string]any              `json:"metadata,omitempty"`
}

// ListRequest selects a page of a user's stored memories.
type ListRequest struct {
	UserID string
	Limit  int
	Offset int
}

// Memory is a stored memory as listed by the service.
type Memory struct {
	ID        string `json:"id"`
	Memory    string `json:"memory"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ListPage is one page of stored memories.
type ListPage struct {
	Memories []Memory `json:"results"`
	Total    int      `json:"total"`
	HasMore  bool     `json:"has_more"`
}

// Client is a stateless memory service client.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends an "Authorization: Token" header on every call.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string { return c.baseURL }

// Search returns memories relevant to the query, in service order.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]model.MemoryRecord, error) {
	raw, err := c.do(ctx, "search", http.MethodPost, searchPath, req)
	if err != nil {
		return nil, err
	}
	return decodeSearch(raw)
}

// Add sends a conversation window and returns the operations the service applied.
func (c *Client) Add(ctx context.Context, req AddRequest) ([]model.OperationRecord, error) {
	raw, err := c.do(ctx, "add", http.MethodPost, addPath, req)
	if err != nil {
		return nil, err
	}
	return decodeAdd(raw)
}

// List returns one page of the user's stored memories.
func (c *Client) List(ctx context.Context, req ListRequest) (ListPage, error) {
	q := url.Values{}
	q.Set("user_id", req.UserID)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	raw, err := c.do(ctx, "list", http.MethodGet, listPath+"?"+q.Encode(), nil)
	if err != nil {
		return ListPage{}, err
	}
	return decodeList(raw)
}

// Health checks that the service is up and answering.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, healthPath, nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("memory %s: encode: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w: %w", op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("memory %s: read body: %w: %w", op, ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

// decodeSearch accepts {data:{results}}, {results} or a bare array.
func decodeSearch(raw []byte) ([]model.MemoryRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []model.MemoryRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("memory search: decode: %w", err)
		}
		return list, nil
	}

	var resp struct {
		Data *struct {
			Results []model.MemoryRecord `json:"results"`
		} `json:"data"`
		Results []model.MemoryRecord `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("memory search: decode: %w", err)
	}
	if resp.Data != nil && len(resp.Data.Results) > 0 {
		return resp.Data.Results, nil
	}
	return resp.Results, nil
}

// decodeAdd accepts results as an array or as a nested {results} object.
func decodeAdd(raw []byte) ([]model.OperationRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var resp struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("memory add: decode: %w", err)
	}
	results := bytes.TrimSpace(resp.Results)
	if len(results) == 0 || bytes.Equal(results, []byte("null")) {
		return nil, nil
	}

	var ops []model.OperationRecord
	if results[0] == '[' {
		if err := json.Unmarshal(results, &ops); err != nil {
			return nil, fmt.Errorf("memory add: decode results: %w", err)
		}
		return ops, nil
	}

	var nested struct {
		Results []model.OperationRecord `json:"results"`
	}
	if err := json.Unmarshal(results, &nested); err != nil {
		return nil, fmt.Errorf("memory add: decode results: %w", err)
	}
	return nested.Results, nil
}

// decodeList accepts the page under "data" or at the top level. A missing
// total falls back to the page length.
func decodeList(raw []byte) (ListPage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ListPage{}, nil
	}
	if raw[0] == '[' {
		var list []Memory
		if err := json.Unmarshal(raw, &list); err != nil {
			return ListPage{}, fmt.Errorf("memory list: decode: %w", err)
		}
		return ListPage{Memories: list, Total: len(list)}, nil
	}

	type page struct {
		Results    []Memory `json:"results"`
		Pagination *struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	var resp struct {
		Data *page `json:"data"`
		page
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ListPage{}, fmt.Errorf("memory list: decode: %w", err)
	}
	p := resp.page
	if resp.Data != nil {
		p = *resp.Data
	}
	out := ListPage{Memories: p.Results, Total: len(p.Results)}
	if p.Pagination != nil {
		out.Total = p.Pagination.Total
		out.HasMore = p.Pagination.HasMore
	}
	return out, nil
}
