// Package remote provides the HTTP client for the hosted relational
// backend.
//
// The protocol is three row-level primitives, table-name-parameterized:
// upsert (insert-or-replace keyed by primary id), delete by id, and point
// read by id, plus a scoped select used by the cache revalidation layer.
// A delete that matches no rows is a non-error terminal state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned by GetRow when no row matches the id.
var ErrNotFound = errors.New("row not found")

// Client talks to the remote backend's REST interface.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the backend at baseURL.
//
// baseURL is the REST root (e.g. "https://acme.example.co/rest/v1").
// The api key is sent as both apikey and bearer token headers.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// UpsertRow inserts or replaces a row keyed by its primary id.
// The payload must be the full record including the id.
func (c *Client) UpsertRow(ctx context.Context, table string, payload json.RawMessage) error {
	u := fmt.Sprintf("%s/%s?on_conflict=id", c.baseURL, url.PathEscape(table))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upsert %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("upsert", table, resp)
	}
	return nil
}

// DeleteRow deletes a row by id. A response indicating no rows matched
// (404, or a 2xx that affected nothing) is success: the row is already
// gone.
func (c *Client) DeleteRow(ctx context.Context, table, id string) error {
	u := fmt.Sprintf("%s/%s?id=eq.%s", c.baseURL, url.PathEscape(table), url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	req.Header.Set("Prefer", "return=minimal")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s/%s failed: %w", table, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("delete", table, resp)
	}
	return nil
}

// GetRow reads one row by id. Returns ErrNotFound when the row is absent.
func (c *Client) GetRow(ctx context.Context, table, id string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/%s?id=eq.%s&limit=1", c.baseURL, url.PathEscape(table), url.QueryEscape(id))

	rows, err := c.get(ctx, u, table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// SelectRows lists rows matching the given filter expressions, e.g.
// {"user_id": "eq.abc"} or {"or": "(user_id.eq.abc,user_id.eq.)"}.
// An empty filter returns the whole table.
func (c *Client) SelectRows(ctx context.Context, table string, filter map[string]string) ([]json.RawMessage, error) {
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, v)
	}
	u := c.baseURL + "/" + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.get(ctx, u, table)
}

func (c *Client) get(ctx context.Context, u, table string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("read", table, resp)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return rows, nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(op, table string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: backend returned %d: %s", op, table, resp.StatusCode, bytes.TrimSpace(body))
}
