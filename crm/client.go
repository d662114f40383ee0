// Package crm is the HTTP client for the sales data platform: contact and
// company search, cadence creation and list management. Every request and
// response can be mirrored to an audit log.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goa.design/clue/log"
)

type (
	// Client talks to the CRM API with bearer authentication.
	Client struct {
		baseURL string
		apiKey  string
		userID  string
		hc      *http.Client
		logReq  func(ctx context.Context, entry RequestLog)
	}

	// Options configures New.
	Options struct {
		// BaseURL is the API root, e.g. https://app.example.com. Required.
		BaseURL string
		// APIKey is the bearer token. Required.
		APIKey string
		// UserID is injected into request bodies that omit one.
		UserID string
		// HTTPClient overrides the default client (30s timeout).
		HTTPClient *http.Client
		// LogRequest receives an audit record per request when set.
		LogRequest func(ctx context.Context, entry RequestLog)
	}

	// RequestLog records one CRM API exchange.
	RequestLog struct {
		Method     string
		URL        string
		Body       any
		StatusCode int
		Response   any
		Err        string
		OccurredAt time.Time
	}
)

// ErrAPI reports a non-2xx response from the CRM.
var ErrAPI = errors.New("crm api error")

// New creates a CRM client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("crm: BaseURL is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("crm: APIKey is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		userID:  opts.UserID,
		hc:      hc,
		logReq:  opts.LogRequest,
	}, nil
}

// SearchContacts runs a lead search. The limit maps to the API's _limit
// query parameter.
func (c *Client) SearchContacts(ctx context.Context, body map[string]any, limit int) (map[string]any, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("_limit", fmt.Sprint(limit))
	}
	return c.do(ctx, http.MethodPost, "/api/search/neg/contact", body, params)
}

// SearchCompanies runs a company search.
func (c *Client) SearchCompanies(ctx context.Context, body map[string]any, limit int) (map[string]any, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("_limit", fmt.Sprint(limit))
	}
	return c.do(ctx, http.MethodPost, "/api/search/neg/company", body, params)
}

// CreateCadence creates an email sequence and returns the raw cadence
// document.
func (c *Client) CreateCadence(ctx context.Context, body map[string]any) (map[string]any, error) {
	if c.userID == "" {
		return nil, errors.New("crm: user id is required for cadence creation")
	}
	return c.do(ctx, http.MethodPost, "/api/seq/addsequence/"+c.userID, body, nil)
}

// CreateCadenceStep adds a step to an existing cadence.
func (c *Client) CreateCadenceStep(ctx context.Context, cadenceID string, body map[string]any) (map[string]any, error) {
	if cadenceID == "" {
		return nil, errors.New("crm: cadence id is required")
	}
	if _, ok := body["sequenceId"]; !ok {
		body["sequenceId"] = cadenceID
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/seq/step/%s/%s", c.userID, cadenceID), body, nil)
}

// AddContactsToCadence queues contacts onto a cadence.
func (c *Client) AddContactsToCadence(ctx context.Context, body map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "/api/radar/create/addListToSeq/campaign", body, nil)
}

// TypeaheadCompany resolves a raw company name against the CRM's typeahead
// index. The result is the suggestion list; callers prefer an exact
// case-insensitive match.
func (c *Client) TypeaheadCompany(ctx context.Context, name string) ([]map[string]any, error) {
	path := "/api/search/typeahead/service/company_name/" + url.PathEscape(name)
	raw, err := c.doRaw(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var suggestions []map[string]any
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		return nil, fmt.Errorf("decode typeahead response: %w", err)
	}
	return suggestions, nil
}

func (c *Client) do(ctx context.Context, method, path string, body map[string]any, params url.Values) (map[string]any, error) {
	if body != nil && c.userID != "" {
		if _, ok := body["userId"]; !ok {
			body["userId"] = c.userID
		}
	}
	raw, err := c.doRaw(ctx, method, path, body, params)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body map[string]any, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	entry := RequestLog{Method: method, URL: u, Body: body, OccurredAt: time.Now().UTC()}
	resp, err := c.hc.Do(req)
	if err != nil {
		entry.Err = err.Error()
		c.audit(ctx, entry)
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.Err = err.Error()
		c.audit(ctx, entry)
		return nil, fmt.Errorf("read response: %w", err)
	}
	entry.StatusCode = resp.StatusCode

	if resp.StatusCode >= 400 {
		entry.Err = string(data)
		c.audit(ctx, entry)
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrAPI, method, path, resp.StatusCode, truncateBody(data))
	}

	var decoded any
	if json.Unmarshal(data, &decoded) == nil {
		entry.Response = decoded
	}
	c.audit(ctx, entry)
	return data, nil
}

func (c *Client) audit(ctx context.Context, entry RequestLog) {
	if c.logReq == nil {
		return
	}
	c.logReq(ctx, entry)
	log.Debugf(ctx, "crm request: %s %s status=%d", entry.Method, entry.URL, entry.StatusCode)
}

func truncateBody(data []byte) string {
	const max = 512
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
