// Package servicenow provides a REST client for ServiceNow instances.
package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotConfigured is returned when required connection settings are missing.
var ErrNotConfigured = errors.New("servicenow: instance credentials not configured")

// Client is a ServiceNow REST API client.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Config holds ServiceNow client configuration.
type Config struct {
	// InstanceURL is the ServiceNow instance URL (e.g., https://dev12345.service-now.com)
	InstanceURL string
	// Username for basic auth
	Username string
	// Password for basic auth
	Password string
	// Timeout for API requests
	Timeout time.Duration
}

// NewClient creates a new ServiceNow API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.InstanceURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  cfg.InstanceURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Record is a single row from a table API response. Reference fields may be
// returned as {display_value, link} objects when display values are
// requested; Get flattens both shapes.
type Record map[string]any

// Get returns the field value as a string, or empty if absent.
func (r Record) Get(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if dv, ok := t["display_value"].(string); ok {
			return dv
		}
	}
	return fmt.Sprint(v)
}

// QueryOptions specifies filters for querying a table.
type QueryOptions struct {
	// Query is the encoded sysparm_query string.
	Query string
	// Fields restricts the returned columns (sysparm_fields).
	Fields string
	// Limit caps the number of returned rows. Defaults to 100.
	Limit int
}

// GetRecords retrieves rows from an arbitrary table with display values.
func (c *Client) GetRecords(ctx context.Context, table string, opts QueryOptions) ([]Record, error) {
	endpoint := "/api/now/table/" + url.PathEscape(table)

	params := url.Values{}
	params.Set("sysparm_display_value", "true")
	if opts.Limit > 0 {
		params.Set("sysparm_limit", fmt.Sprintf("%d", opts.Limit))
	} else {
		params.Set("sysparm_limit", "100")
	}
	if opts.Query != "" {
		params.Set("sysparm_query", opts.Query)
	}
	if opts.Fields != "" {
		params.Set("sysparm_fields", opts.Fields)
	}

	fullURL := c.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			body = []byte("(failed to read response body)")
		}
		return nil, fmt.Errorf("ServiceNow API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Result []Record `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Result, nil
}

// RecentChanges returns customization records from sys_update_xml created by
// non-system users within the lookback window.
func (c *Client) RecentChanges(ctx context.Context, daysAgo int) ([]Record, error) {
	if daysAgo <= 0 {
		daysAgo = 7
	}
	query := fmt.Sprintf("sys_created_on>=javascript:gs.daysAgo(%d)^sys_created_byNOT INsystem,admin", daysAgo)
	return c.GetRecords(ctx, "sys_update_xml", QueryOptions{Query: query, Limit: 100})
}

// ErrorLogs returns error-level entries (level=2) from syslog for the last
// 24 hours.
func (c *Client) ErrorLogs(ctx context.Context) ([]Record, error) {
	return c.GetRecords(ctx, "syslog", QueryOptions{
		Query: "level=2^sys_created_on>=javascript:gs.hoursAgo(24)",
		Limit: 100,
	})
}

// TableSchema returns the sys_dictionary rows describing a table's columns.
func (c *Client) TableSchema(ctx context.Context, table string) ([]Record, error) {
	return c.GetRecords(ctx, "sys_dictionary", QueryOptions{
		Query: fmt.Sprintf("name=%s^internal_type!=", table),
		Limit: 500,
	})
}
