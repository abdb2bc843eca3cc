// Package tabular reads protocol, substance and symptom records from an
// Airtable base and maps them onto typed catalog records.
package tabular

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfenderov/protokb/internal/apperr"
)

const (
	serviceName    = "airtable"
	defaultBaseURL = "https://api.airtable.com"
	recordPageSize = 100
)

// Config holds Airtable connection configuration.
type Config struct {
	BaseURL           string
	BaseID            string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Record is one raw Airtable row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// Client is a minimal Airtable REST client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	baseID     string
	apiKey     string
	limiter    *rate.Limiter
}

// New creates a Client. Missing credentials are reported on first use.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		baseID:     cfg.BaseID,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// ListRecords returns every record of table, following offset pagination.
func (c *Client) ListRecords(ctx context.Context, table string) ([]Record, error) {
	if c.baseID == "" {
		return nil, apperr.Missing("airtable.base_id")
	}
	if c.apiKey == "" {
		return nil, apperr.Missing("airtable.api_key")
	}

	var (
		records []Record
		offset  string
	)
	for {
		page, err := c.listPage(ctx, table, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

func (c *Client) listPage(ctx context.Context, table, offset string) (*listResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("pageSize", fmt.Sprint(recordPageSize))
	if offset != "" {
		q.Set("offset", offset)
	}
	endpoint := fmt.Sprintf("%s/v0/%s/%s?%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: %w", table, &apperr.RemoteServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		})
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &page, nil
}

// errorMessage extracts the message of an Airtable error body, which is
// either {"error": "CODE"} or {"error": {"type": ..., "message": ...}}.
func errorMessage(body []byte) string {
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Error) == 0 {
		return strings.TrimSpace(string(body))
	}

	var code string
	if json.Unmarshal(e.Error, &code) == nil {
		return code
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &detail) == nil {
		if detail.Message != "" {
			return detail.Type + ": " + detail.Message
		}
		return detail.Type
	}
	return string(e.Error)
}
